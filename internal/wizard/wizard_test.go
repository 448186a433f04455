package wizard

import (
	"testing"

	"github.com/annel0/polyview/internal/vec"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingViewer struct {
	id      uuid.UUID
	updates []Update
}

func newViewer() *recordingViewer {
	return &recordingViewer{id: uuid.New()}
}

func (v *recordingViewer) ID() uuid.UUID             { return v.id }
func (v *recordingViewer) SendWizardUpdate(u Update) { v.updates = append(v.updates, u) }

func (v *recordingViewer) kinds() []UpdateKind {
	out := make([]UpdateKind, 0, len(v.updates))
	for _, u := range v.updates {
		out = append(out, u.Kind)
	}
	return out
}

type panicWizard struct {
	Base
}

func (w *panicWizard) OnTick(uint64) { panic("сломанный визард") }

func TestBaseVisibilityIsASet(t *testing.T) {
	b := NewBase(Info{Pos: vec.Vec3{X: 1, Y: 2, Z: 3}})
	v := newViewer()

	b.AddPlayer(v)
	b.AddPlayer(v)
	assert.Equal(t, 1, b.ViewerCount(), "игрок должен быть в наборе ровно один раз")
	assert.True(t, b.HasViewer(v.ID()))

	b.RemovePlayer(v)
	assert.Equal(t, 0, b.ViewerCount())
}

func TestBaseRemoveIsIdempotent(t *testing.T) {
	b := NewBase(Info{})
	v := newViewer()
	b.AddPlayer(v)

	b.OnRemove()
	b.OnRemove()
	assert.True(t, b.Removed())
	assert.Equal(t, 0, b.ViewerCount())

	b.AddPlayer(v)
	assert.Equal(t, 0, b.ViewerCount(), "снятый визард не принимает зрителей")
}

func TestDisplayWizardLifecycle(t *testing.T) {
	pos := vec.Vec3{X: 10, Y: 64, Z: -5}
	w := NewDisplayWizard(Info{Pos: pos}, 42, 20)
	a, b := newViewer(), newViewer()

	w.AddPlayer(a)
	w.AddPlayer(b)
	w.AddPlayer(a)
	require.Equal(t, []UpdateKind{UpdateSpawn}, a.kinds())
	assert.Equal(t, pos, a.updates[0].Pos)
	assert.Equal(t, w.EntityID(), a.updates[0].EntityID)

	w.OnTick(19)
	w.OnTick(20)
	assert.Equal(t, 1, w.Frame())
	assert.Equal(t, []UpdateKind{UpdateSpawn, UpdateAnimate}, b.kinds())

	w.RemovePlayer(b)
	assert.Equal(t, []UpdateKind{UpdateSpawn, UpdateAnimate, UpdateDespawn}, b.kinds())

	w.OnRemove()
	w.OnRemove()
	assert.Equal(t, []UpdateKind{UpdateSpawn, UpdateAnimate, UpdateDespawn}, a.kinds(),
		"снятие должно убрать сущность ровно один раз")

	w.OnTick(40)
	assert.Equal(t, 1, w.Frame(), "снятый визард не тикает")
}

func TestDisplayWizardUniqueEntityIDs(t *testing.T) {
	a := NewDisplayWizard(Info{}, 1, 0)
	b := NewDisplayWizard(Info{}, 1, 0)
	assert.NotEqual(t, a.EntityID(), b.EntityID())
}

func TestTickerAddRemoveTick(t *testing.T) {
	ticker := NewTicker()
	w := NewDisplayWizard(Info{}, 1, 1)
	v := newViewer()
	w.AddPlayer(v)

	ticker.Add(w)
	ticker.Add(w)
	assert.Equal(t, 1, ticker.Len())
	assert.True(t, ticker.Contains(w))

	ticker.Tick(1)
	assert.Equal(t, 1, w.Frame())

	ticker.Remove(w)
	ticker.Remove(w)
	assert.Equal(t, 0, ticker.Len())
	ticker.Tick(2)
	assert.Equal(t, 1, w.Frame(), "снятый с тиков визард не должен тикать")
}

func TestTickerSurvivesPanickingWizard(t *testing.T) {
	ticker := NewTicker()
	bad := &panicWizard{Base: NewBase(Info{})}
	good := NewDisplayWizard(Info{}, 1, 1)

	ticker.Add(bad)
	ticker.Add(good)
	assert.NotPanics(t, func() { ticker.Tick(1) })
	assert.Equal(t, 1, good.Frame(), "паника одного визарда не должна мешать другим")
}

func TestGuardReportsFailure(t *testing.T) {
	w := &panicWizard{Base: NewBase(Info{})}
	assert.False(t, Guard("tick", w, func() { w.OnTick(0) }))
	assert.True(t, Guard("tick", w, func() {}))
}
