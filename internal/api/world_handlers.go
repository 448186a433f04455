package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/gin-gonic/gin"
)

var errBadCoords = errors.New("координаты должны быть целыми числами")

func intParams(c *gin.Context, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			return nil, errBadCoords
		}
		out[i] = v
	}
	return out, nil
}

func chunkParam(c *gin.Context) (vec.ChunkPos, bool) {
	xz, err := intParams(c, "x", "z")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return vec.ChunkPos{}, false
	}
	return vec.ChunkPos{X: xz[0], Z: xz[1]}, true
}

func blockParam(c *gin.Context) (vec.Vec3, bool) {
	xyz, err := intParams(c, "x", "y", "z")
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return vec.Vec3{}, false
	}
	return vec.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, true
}

// worldStatus переводит ошибки мира в HTTP-статусы
func worldStatus(err error) int {
	switch {
	case errors.Is(err, world.ErrChunkNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, world.ErrUnknownState), errors.Is(err, world.ErrOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, world.ErrChunkDiscarded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// mappingQuery разбирает ?mapping=; пусто - nil (все маппинги)
func (rs *RestServer) mappingQuery(c *gin.Context) (polymap.PolyMap, bool) {
	name := c.Query("mapping")
	if name == "" {
		return nil, true
	}
	m, found := rs.mappings.Get(name)
	if !found {
		fail(c, http.StatusBadRequest, "Неизвестный маппинг "+name)
		return nil, false
	}
	return m, true
}

// handleChunkWizards возвращает визардов чанка
func (rs *RestServer) handleChunkWizards(c *gin.Context) {
	pos, valid := chunkParam(c)
	if !valid {
		return
	}
	m, valid := rs.mappingQuery(c)
	if !valid {
		return
	}

	wizards, err := rs.world.ChunkWizards(pos, m)
	if err != nil {
		fail(c, worldStatus(err), err.Error())
		return
	}
	if wizards == nil {
		wizards = []world.WizardInfo{}
	}
	ok(c, http.StatusOK, "Визарды чанка", gin.H{"chunk": pos, "wizards": wizards})
}

// handleLoadChunk загружает (или генерирует) чанк
func (rs *RestServer) handleLoadChunk(c *gin.Context) {
	pos, valid := chunkParam(c)
	if !valid {
		return
	}
	chunk, err := rs.world.LoadChunk(pos)
	if err != nil {
		fail(c, worldStatus(err), err.Error())
		return
	}
	ok(c, http.StatusOK, "Чанк загружен", gin.H{"chunk": pos, "sections": len(chunk.Sections())})
}

// handleUnloadChunk выгружает чанк, снимая всех его визардов
func (rs *RestServer) handleUnloadChunk(c *gin.Context) {
	pos, valid := chunkParam(c)
	if !valid {
		return
	}
	if err := rs.world.UnloadChunk(pos); err != nil {
		fail(c, worldStatus(err), err.Error())
		return
	}
	ok(c, http.StatusOK, "Чанк выгружен", gin.H{"chunk": pos})
}

type blockView struct {
	Pos     vec.Vec3                 `json:"pos"`
	State   block.StateID            `json:"state"`
	Name    string                   `json:"name"`
	Client  map[string]block.StateID `json:"client"`
	Wizards []world.WizardInfo       `json:"wizards"`
}

// handleGetBlock возвращает состояние блока и его вид для каждого маппинга
func (rs *RestServer) handleGetBlock(c *gin.Context) {
	pos, valid := blockParam(c)
	if !valid {
		return
	}

	state := rs.world.StateAt(pos)
	view := blockView{
		Pos:     pos,
		State:   state,
		Name:    rs.world.Blocks().Name(state),
		Client:  make(map[string]block.StateID),
		Wizards: []world.WizardInfo{},
	}
	for _, name := range rs.mappings.Names() {
		m, _ := rs.mappings.Get(name)
		view.Client[name] = m.ClientState(state)
		if info, found := rs.world.WizardAt(pos, m); found {
			view.Wizards = append(view.Wizards, info)
		}
	}
	ok(c, http.StatusOK, "Блок", view)
}

// SetBlockRequest - либо глобальный ID состояния, либо имя блока с вариантом
type SetBlockRequest struct {
	State   *block.StateID `json:"state"`
	Block   string         `json:"block"`
	Variant int            `json:"variant"`
}

func (rs *RestServer) resolveState(req SetBlockRequest) (block.StateID, bool) {
	if req.State != nil {
		return *req.State, true
	}
	blocks := rs.world.Blocks()
	id, found := blocks.BlockByName(req.Block)
	if !found {
		return block.AirState, false
	}
	return blocks.StateOf(id, req.Variant)
}

// handleSetBlock ставит блок
func (rs *RestServer) handleSetBlock(c *gin.Context) {
	pos, valid := blockParam(c)
	if !valid {
		return
	}

	var req SetBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	state, found := rs.resolveState(req)
	if !found {
		fail(c, http.StatusBadRequest, "Неизвестный блок или вариант")
		return
	}

	prev, err := rs.world.SetBlock(pos, state)
	if err != nil {
		fail(c, worldStatus(err), err.Error())
		return
	}
	logging.Info("🧱 %s: %v %s → %s", operatorName(c), pos, rs.world.Blocks().Name(prev), rs.world.Blocks().Name(state))
	ok(c, http.StatusOK, "Блок установлен", gin.H{"pos": pos, "state": state, "prev": prev})
}

// MoveBlockRequest - перенос блока вместе с его визардами
type MoveBlockRequest struct {
	From vec.Vec3 `json:"from"`
	To   vec.Vec3 `json:"to"`
}

// handleMoveBlock переносит блок. Снятые визарды исходной позиции не
// переносятся: на новом месте создаются свежие, а старые снимаются здесь.
func (rs *RestServer) handleMoveBlock(c *gin.Context) {
	var req MoveBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	detached, err := rs.world.MoveBlock(req.From, req.To)
	// снятые визарды гасятся и при ошибке: в мир они уже не вернутся
	mappings := make([]string, 0, len(detached))
	for m, wz := range detached {
		wizard.Guard("remove", wz, wz.OnRemove)
		mappings = append(mappings, m.Name())
	}
	if err != nil {
		fail(c, worldStatus(err), err.Error())
		return
	}
	logging.Info("🧱 %s: перенос %v → %v", operatorName(c), req.From, req.To)
	ok(c, http.StatusOK, "Блок перенесён", gin.H{"from": req.From, "to": req.To, "detached": mappings})
}
