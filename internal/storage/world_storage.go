package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/palette"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

// ErrNotReady возвращается после закрытия хранилища
var ErrNotReady = errors.New("world storage is closed")

// WorldStorage хранит секции чанков в BadgerDB, сжимая записи zstd.
// Реализует world.ChunkStore.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	world   string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool
}

// chunkRecord - формат записи чанка
type chunkRecord struct {
	X        int             `json:"x"`
	Z        int             `json:"z"`
	Sections []sectionRecord `json:"sections"`
}

// sectionRecord хранит палитру и хранилище секции как есть, в упакованном виде
type sectionRecord struct {
	Y       int      `json:"y"`
	Palette []uint32 `json:"palette,omitempty"` // линейная палитра
	Global  int      `json:"global,omitempty"`  // размер прямой палитры
	Bits    int      `json:"bits,omitempty"`
	Size    int      `json:"size"`
	Data    []uint64 `json:"data,omitempty"`  // упакованные слова
	Cells   []int32  `json:"cells,omitempty"` // распакованные ячейки
}

// NewWorldStorage открывает хранилище мира в dataPath/<world>
func NewWorldStorage(dataPath, worldName string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, worldName)
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	logging.Info("💾 Хранилище мира %s открыто: %s", worldName, dbPath)
	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		world:   worldName,
		encoder: encoder,
		decoder: decoder,
		isReady: true,
	}, nil
}

// Close закрывает хранилище
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.encoder.Close()
	ws.decoder.Close()
	return ws.db.Close()
}

func (ws *WorldStorage) key(pos vec.ChunkPos) []byte {
	return []byte(fmt.Sprintf("chunk:%s:%d:%d", ws.world, pos.X, pos.Z))
}

// SaveSections сохраняет все непустые секции чанка
func (ws *WorldStorage) SaveSections(pos vec.ChunkPos, sections []*world.Section) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	record := chunkRecord{X: pos.X, Z: pos.Z}
	for _, s := range sections {
		if s.IsEmpty() {
			continue
		}
		rec, err := encodeSection(s)
		if err != nil {
			return fmt.Errorf("секция %d чанка %v: %w", s.Y, pos, err)
		}
		record.Sections = append(record.Sections, rec)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ошибка сериализации чанка: %w", err)
	}
	compressed := ws.encoder.EncodeAll(data, nil)

	err = ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(ws.key(pos), compressed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

// LoadSections загружает секции чанка. Секция, чьи данные не сходятся с
// объявленным размером, пропускается с ошибкой в логе.
func (ws *WorldStorage) LoadSections(pos vec.ChunkPos, globalSize int) ([]*world.Section, bool, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, false, ErrNotReady
	}

	var compressed []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(ws.key(pos))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	data, err := ws.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка распаковки чанка %v: %w", pos, err)
	}
	var record chunkRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("ошибка десериализации чанка %v: %w", pos, err)
	}

	sections := make([]*world.Section, 0, len(record.Sections))
	for _, rec := range record.Sections {
		s, err := decodeSection(rec, globalSize)
		if err != nil {
			logging.LogMalformedSection(pos.X, pos.Z, rec.Y, err, nil)
			continue
		}
		sections = append(sections, s)
	}
	return sections, true, nil
}

// DeleteChunk удаляет сохранённый чанк
func (ws *WorldStorage) DeleteChunk(pos vec.ChunkPos) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}
	return ws.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(ws.key(pos))
	})
}

func encodeSection(s *world.Section) (sectionRecord, error) {
	rec := sectionRecord{Y: s.Y, Size: s.Blocks.Len()}

	switch p := s.Blocks.Palette().(type) {
	case *palette.Linear:
		for _, id := range p.Values() {
			rec.Palette = append(rec.Palette, uint32(id))
		}
	case palette.Global:
		rec.Global = p.Size
	default:
		return rec, fmt.Errorf("неизвестный тип палитры %T", p)
	}

	switch st := s.Blocks.Storage().(type) {
	case *palette.PackedStorage:
		rec.Bits = st.Bits()
		rec.Data = append([]uint64(nil), st.Raw()...)
	default:
		rec.Cells = make([]int32, 0, st.Len())
		st.ForEach(func(_, value int) {
			rec.Cells = append(rec.Cells, int32(value))
		})
	}
	return rec, nil
}

func decodeSection(rec sectionRecord, globalSize int) (*world.Section, error) {
	var p palette.Palette
	if len(rec.Palette) > 0 {
		values := make([]block.StateID, len(rec.Palette))
		seen := make(map[block.StateID]struct{}, len(rec.Palette))
		for i, id := range rec.Palette {
			state := block.StateID(id)
			if _, dup := seen[state]; dup {
				// NewLinear схлопнул бы повтор и сдвинул все следующие индексы
				return nil, fmt.Errorf("%w: состояние %d повторяется в палитре", palette.ErrMalformedStorage, id)
			}
			seen[state] = struct{}{}
			values[i] = state
		}
		p = palette.NewLinear(values...)
	} else {
		p = palette.Global{Size: rec.Global}
	}

	var st palette.Storage
	if rec.Cells != nil {
		if len(rec.Cells) != rec.Size {
			return nil, fmt.Errorf("%w: %d ячеек при размере %d", palette.ErrMalformedStorage, len(rec.Cells), rec.Size)
		}
		for i, v := range rec.Cells {
			if v < 0 {
				return nil, fmt.Errorf("%w: ячейка %d отрицательна (%d)", palette.ErrMalformedStorage, i, v)
			}
		}
		st = palette.ArrayStorageOf(rec.Cells)
	} else {
		packed, err := palette.NewPackedStorage(rec.Bits, rec.Size, rec.Data)
		if err != nil {
			return nil, err
		}
		st = packed
	}

	return world.SectionOf(rec.Y, palette.ContainerOf(p, st, globalSize)), nil
}
