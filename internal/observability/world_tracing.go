package observability

import (
	"context"

	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/annel0/polyview/world"

func tracer() oteltrace.Tracer { return otel.Tracer(tracerName) }

func chunkAttrs(pos vec.ChunkPos) oteltrace.SpanStartOption {
	return oteltrace.WithAttributes(
		attribute.Int("chunk.x", pos.X),
		attribute.Int("chunk.z", pos.Z),
	)
}

func finish(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TracedGenerator оборачивает генератор мира в спаны
type TracedGenerator struct {
	Next world.Generator
}

func (g TracedGenerator) Generate(c *world.Chunk) error {
	_, span := tracer().Start(context.Background(), "chunk.generate", chunkAttrs(c.Pos()))
	err := g.Next.Generate(c)
	finish(span, err)
	return err
}

// TracedStore оборачивает хранилище чанков в спаны
type TracedStore struct {
	Next world.ChunkStore
}

func (s TracedStore) LoadSections(pos vec.ChunkPos, globalSize int) ([]*world.Section, bool, error) {
	_, span := tracer().Start(context.Background(), "chunk.load", chunkAttrs(pos))
	sections, found, err := s.Next.LoadSections(pos, globalSize)
	span.SetAttributes(attribute.Bool("chunk.stored", found), attribute.Int("chunk.sections", len(sections)))
	finish(span, err)
	return sections, found, err
}

func (s TracedStore) SaveSections(pos vec.ChunkPos, sections []*world.Section) error {
	_, span := tracer().Start(context.Background(), "chunk.save", chunkAttrs(pos))
	span.SetAttributes(attribute.Int("chunk.sections", len(sections)))
	err := s.Next.SaveSections(pos, sections)
	finish(span, err)
	return err
}
