package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/session"
	"github.com/annel0/polyview/internal/vec"
	"github.com/annel0/polyview/internal/wizard"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type playerView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Mapping  string    `json:"mapping"`
	JoinedAt time.Time `json:"joined_at"`
	Pending  int       `json:"pending"`
	Dropped  uint64    `json:"dropped"`
	Watching int       `json:"watching"`
}

func (rs *RestServer) describePlayer(p *session.Player) playerView {
	return playerView{
		ID:       p.ID().String(),
		Name:     p.Name(),
		Mapping:  p.Mapping().Name(),
		JoinedAt: p.JoinedAt(),
		Pending:  p.Pending(),
		Dropped:  p.Dropped(),
		Watching: len(rs.world.Watching(p.ID())),
	}
}

type updateView struct {
	Kind     string   `json:"kind"`
	EntityID int32    `json:"entity_id"`
	Pos      vec.Vec3 `json:"pos"`
	Client   uint32   `json:"client"`
	Frame    int      `json:"frame"`
	Tick     uint64   `json:"tick"`
}

func describeUpdates(updates []wizard.Update) []updateView {
	out := make([]updateView, len(updates))
	for i, u := range updates {
		out[i] = updateView{
			Kind:     u.Kind.String(),
			EntityID: u.EntityID,
			Pos:      u.Pos,
			Client:   uint32(u.Client),
			Frame:    u.Frame,
			Tick:     u.Tick,
		}
	}
	return out
}

func (rs *RestServer) playerParam(c *gin.Context) (*session.Player, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Неверный ID игрока")
		return nil, false
	}
	p, found := rs.sessions.Get(id)
	if !found {
		fail(c, http.StatusNotFound, "Игрок не найден")
		return nil, false
	}
	return p, true
}

// JoinRequest - подключение игрока с маппингом и центром видимости
type JoinRequest struct {
	Name    string `json:"name" binding:"required"`
	Mapping string `json:"mapping"`
	X       int    `json:"x"`
	Z       int    `json:"z"`
}

// handleJoin подключает игрока и делает видимыми чанки вокруг него
func (rs *RestServer) handleJoin(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	p, err := rs.sessions.Join(c.Request.Context(), req.Name, req.Mapping)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrUnknownMapping) || errors.Is(err, session.ErrEmptyName) {
			status = http.StatusBadRequest
		}
		fail(c, status, err.Error())
		return
	}

	center := vec.ChunkPos{X: req.X, Z: req.Z}
	if err := rs.world.UpdateView(p, center, rs.viewDistance); err != nil {
		logging.Error("❌ Не удалось показать чанки игроку %s: %v", p.Name(), err)
		rs.world.Disconnect(p)
		rs.sessions.Leave(p.ID())
		fail(c, worldStatus(err), err.Error())
		return
	}
	ok(c, http.StatusCreated, "Игрок подключён", rs.describePlayer(p))
}

// ViewRequest - новый центр видимости игрока в координатах чанка
type ViewRequest struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// handleUpdateView сдвигает видимость игрока
func (rs *RestServer) handleUpdateView(c *gin.Context) {
	p, found := rs.playerParam(c)
	if !found {
		return
	}
	var req ViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if err := rs.world.UpdateView(p, vec.ChunkPos{X: req.X, Z: req.Z}, rs.viewDistance); err != nil {
		fail(c, worldStatus(err), err.Error())
		return
	}
	ok(c, http.StatusOK, "Видимость обновлена", rs.describePlayer(p))
}

// handleLeave отключает игрока
func (rs *RestServer) handleLeave(c *gin.Context) {
	p, found := rs.playerParam(c)
	if !found {
		return
	}
	rs.world.Disconnect(p)
	rs.sessions.Leave(p.ID())
	ok(c, http.StatusOK, "Игрок отключён", gin.H{"id": p.ID().String()})
}

// handleListPlayers возвращает подключённых игроков
func (rs *RestServer) handleListPlayers(c *gin.Context) {
	players := rs.sessions.List()
	out := make([]playerView, 0, len(players))
	for _, p := range players {
		out = append(out, rs.describePlayer(p))
	}
	ok(c, http.StatusOK, "Игроки", out)
}

// handleGetPlayer возвращает одного игрока
func (rs *RestServer) handleGetPlayer(c *gin.Context) {
	p, found := rs.playerParam(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, "Игрок", rs.describePlayer(p))
}

// handlePlayerUpdates забирает накопленные обновления визардов игрока
func (rs *RestServer) handlePlayerUpdates(c *gin.Context) {
	p, found := rs.playerParam(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, "Обновления", describeUpdates(p.Drain()))
}
