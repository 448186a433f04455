package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/polyview/internal/auth"
	"github.com/annel0/polyview/internal/eventbus"
	"github.com/annel0/polyview/internal/gen"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/session"
	"github.com/annel0/polyview/internal/storage"
	"github.com/annel0/polyview/internal/world"
	"github.com/annel0/polyview/internal/world/block"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	rs       *RestServer
	world    *world.World
	sessions *session.Manager
	mappings *polymap.Set
	bus      eventbus.EventBus
}

func newTestServer(t *testing.T, issuer *auth.Issuer, ops *auth.OperatorRepository) *testServer {
	t.Helper()

	blocks := block.Defaults()
	mappings, err := polymap.BuildSet(polymap.DefaultFile(), blocks, polymap.DefaultKinds())
	require.NoError(t, err)
	terrain, err := gen.NewTerrain(gen.DefaultConfig(), blocks)
	require.NoError(t, err)

	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { _ = bus.Close() })

	sessions := session.NewManager(mappings, storage.NewMemoryPrefStore(), 256)
	w := world.New(world.Options{
		Name:       "test",
		Blocks:     blocks,
		Maps:       world.MapResolverFunc(sessions.MapOf),
		Generator:  terrain,
		Bus:        bus,
		MinSection: 0,
		MaxSection: 7,
	})
	t.Cleanup(func() { _ = w.Close() })

	rs := NewRestServer(Config{
		World:       w,
		Sessions:    sessions,
		Mappings:    mappings,
		Bus:         bus,
		Operators:   ops,
		Issuer:      issuer,
		Webhooks:    NewWebhookForwarder(nil, time.Millisecond),
		Registry:    prometheus.NewRegistry(),
		StreamEvery: 5 * time.Millisecond,
	})
	return &testServer{rs: rs, world: w, sessions: sessions, mappings: mappings, bus: bus}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, req)

	var resp apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec.Code, resp
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (ts *testServer) join(t *testing.T, name, mapping string) playerView {
	t.Helper()
	code, resp := ts.do(t, http.MethodPost, "/api/players", "", JoinRequest{Name: name, Mapping: mapping})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	return decode[playerView](t, resp.Data)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"world":"test"`)
}

func TestMappings(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	code, resp := ts.do(t, http.MethodGet, "/api/mappings", "", nil)
	require.Equal(t, http.StatusOK, code)

	data := decode[struct {
		Default  string `json:"default"`
		Mappings []struct {
			Name        string `json:"name"`
			VanillaLike bool   `json:"vanilla_like"`
			Wizards     bool   `json:"wizards"`
		} `json:"mappings"`
	}](t, resp.Data)
	assert.Equal(t, "vanilla", data.Default)
	names := make([]string, 0, len(data.Mappings))
	for _, m := range data.Mappings {
		names = append(names, m.Name)
		if m.Name == "native" {
			assert.False(t, m.Wizards)
		}
	}
	assert.ElementsMatch(t, []string{"vanilla", "legacy", "native"}, names)
}

func TestWizardLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	p := ts.join(t, "alice", "vanilla")
	assert.Equal(t, "vanilla", p.Mapping)
	assert.Equal(t, 1, p.Watching)

	code, resp := ts.do(t, http.MethodPut, "/api/blocks/1/100/1", "", SetBlockRequest{Block: "polyview:glowing_ore"})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = ts.do(t, http.MethodGet, "/api/blocks/1/100/1", "", nil)
	require.Equal(t, http.StatusOK, code)
	view := decode[struct {
		Name    string             `json:"name"`
		Client  map[string]uint32  `json:"client"`
		Wizards []world.WizardInfo `json:"wizards"`
	}](t, resp.Data)
	assert.Equal(t, "polyview:glowing_ore", view.Name)
	require.Len(t, view.Wizards, 1)
	assert.Equal(t, "vanilla", view.Wizards[0].Mapping)
	assert.Equal(t, 1, view.Wizards[0].Viewers)

	stone, _ := ts.world.Blocks().BlockByName("minecraft:stone")
	stoneState, _ := ts.world.Blocks().DefaultState(stone)
	assert.Equal(t, uint32(stoneState), view.Client["vanilla"])

	code, resp = ts.do(t, http.MethodGet, "/api/players/"+p.ID+"/updates", "", nil)
	require.Equal(t, http.StatusOK, code)
	updates := decode[[]updateView](t, resp.Data)
	require.NotEmpty(t, updates)
	assert.Equal(t, "spawn", updates[len(updates)-1].Kind)

	code, _ = ts.do(t, http.MethodPost, "/api/blocks/move", "", map[string]any{
		"from": map[string]int{"x": 1, "y": 100, "z": 1},
		"to":   map[string]int{"x": 2, "y": 9999, "z": 2},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	_, resp = ts.do(t, http.MethodGet, "/api/blocks/1/100/1", "", nil)
	kept := decode[struct {
		Name    string             `json:"name"`
		Wizards []world.WizardInfo `json:"wizards"`
	}](t, resp.Data)
	assert.Equal(t, "polyview:glowing_ore", kept.Name, "неудачный перенос не трогает блок")
	assert.Len(t, kept.Wizards, 1)

	code, resp = ts.do(t, http.MethodPost, "/api/blocks/move", "", map[string]any{
		"from": map[string]int{"x": 1, "y": 100, "z": 1},
		"to":   map[string]int{"x": 2, "y": 100, "z": 2},
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	moved := decode[struct {
		Detached []string `json:"detached"`
	}](t, resp.Data)
	assert.Equal(t, []string{"vanilla"}, moved.Detached)

	_, resp = ts.do(t, http.MethodGet, "/api/blocks/2/100/2", "", nil)
	view = decode[struct {
		Name    string             `json:"name"`
		Client  map[string]uint32  `json:"client"`
		Wizards []world.WizardInfo `json:"wizards"`
	}](t, resp.Data)
	assert.Len(t, view.Wizards, 1)

	code, _ = ts.do(t, http.MethodDelete, "/api/players/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, ts.sessions.Len())
	assert.Empty(t, ts.world.Watching(uuid.MustParse(p.ID)))
}

func TestChunkEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	code, _ := ts.do(t, http.MethodGet, "/api/chunks/3/3/wizards", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp := ts.do(t, http.MethodPost, "/api/chunks/3/3/load", "", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, _ = ts.do(t, http.MethodGet, "/api/chunks/3/3/wizards?mapping=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/chunks/3/3/wizards?mapping=native", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodGet, "/api/chunks/x/3/wizards", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPut, "/api/blocks/48/500/48", "", SetBlockRequest{Block: "minecraft:stone"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPut, "/api/blocks/48/100/48", "", SetBlockRequest{Block: "minecraft:nothing"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPut, "/api/blocks/160/100/160", "", SetBlockRequest{Block: "minecraft:stone"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodDelete, "/api/chunks/3/3", "", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodDelete, "/api/chunks/3/3", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, resp = ts.do(t, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"chunks":0`)
	assert.Contains(t, string(resp.Data), `"uptime_seconds"`)
	assert.NotContains(t, string(resp.Data), `"prefs"`)
}

func TestJoinErrors(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	code, _ := ts.do(t, http.MethodPost, "/api/players", "", JoinRequest{Name: "bob", Mapping: "missing"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPost, "/api/players", "", map[string]string{"mapping": "vanilla"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/players/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/players/00000000-0000-0000-0000-000000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 0, ts.sessions.Len())
}

func TestUpdateViewMovesWatchedChunks(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	p := ts.join(t, "carol", "legacy")

	code, resp := ts.do(t, http.MethodPut, "/api/players/"+p.ID+"/view", "", ViewRequest{X: 5, Z: -2})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, 1, decode[playerView](t, resp.Data).Watching)

	_, resp = ts.do(t, http.MethodGet, "/api/players", "", nil)
	list := decode[[]playerView](t, resp.Data)
	require.Len(t, list, 1)
	assert.Equal(t, "carol", list[0].Name)
}

func TestAuthFlow(t *testing.T) {
	issuer, err := auth.NewIssuer("", time.Hour)
	require.NoError(t, err)
	ops := auth.NewOperatorRepository()
	adminHash, err := auth.HashPassword("secret")
	require.NoError(t, err)
	_, err = ops.Create("admin", adminHash, true)
	require.NoError(t, err)
	viewerHash, err := auth.HashPassword("viewer")
	require.NoError(t, err)
	_, err = ops.Create("viewer", viewerHash, false)
	require.NoError(t, err)

	ts := newTestServer(t, issuer, ops)

	code, _ := ts.do(t, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = ts.do(t, http.MethodGet, "/api/stats", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	login := func(user, pass string) (int, LoginResponse) {
		data, _ := json.Marshal(LoginRequest{Username: user, Password: pass})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		ts.rs.Handler().ServeHTTP(rec, req)
		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return rec.Code, resp
	}

	code, _ = login("admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, viewer := login("viewer", "viewer")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, viewer.IsAdmin)

	code, _ = ts.do(t, http.MethodGet, "/api/stats", viewer.Token, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = ts.do(t, http.MethodPost, "/api/chunks/0/0/load", viewer.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, admin := login("admin", "secret")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, admin.IsAdmin)
	assert.Equal(t, int64(3600), admin.ExpiresIn)

	code, _ = ts.do(t, http.MethodPost, "/api/chunks/0/0/load", admin.Token, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestLoginDisabledWithoutIssuer(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	code, _ := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "a", Password: "b"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPlayerStream(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	srv := httptest.NewServer(ts.rs.Handler())
	defer srv.Close()

	p := ts.join(t, "dave", "vanilla")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/players/" + p.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	code, resp := ts.do(t, http.MethodPut, "/api/blocks/3/100/3", "", SetBlockRequest{Block: "polyview:crystal"})
	require.Equal(t, http.StatusOK, code, resp.Message)

	// сгенерированный чанк может уже содержать визардов, ищем свой
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var spawned *updateView
	for spawned == nil {
		var updates []updateView
		require.NoError(t, conn.ReadJSON(&updates))
		for i := range updates {
			if updates[i].Pos.X == 3 && updates[i].Pos.Y == 100 && updates[i].Pos.Z == 3 {
				spawned = &updates[i]
			}
		}
	}
	assert.Equal(t, "spawn", spawned.Kind)

	code, _ = ts.do(t, http.MethodDelete, "/api/players/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, code)

	// после отключения игрока сервер закрывает поток
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
			break
		}
	}
}

func TestWebhookForwarding(t *testing.T) {
	var (
		mu       sync.Mutex
		received []string
		attempts int
	)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		attempts++
		// первая попытка падает, чтобы проверить повтор
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("X-Webhook-Signature") != Sign(body, "hook-secret") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		received = append(received, r.Header.Get("X-Event-Type"))
	}))
	defer target.Close()

	ts := newTestServer(t, nil, nil)
	require.NoError(t, ts.rs.webhooks.Start(context.Background(), ts.bus))
	defer ts.rs.webhooks.Stop()

	code, resp := ts.do(t, http.MethodPost, "/api/webhooks", "", CreateWebhookRequest{
		Name:       "audit",
		URL:        target.URL,
		Secret:     "hook-secret",
		Events:     []string{eventbus.TypeChunkLoaded},
		RetryCount: 2,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)
	hook := decode[Webhook](t, resp.Data)
	assert.NotContains(t, string(resp.Data), "hook-secret")

	code, _ = ts.do(t, http.MethodPost, "/api/chunks/0/0/load", "", nil)
	require.Equal(t, http.StatusOK, code)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, eventbus.TypeChunkLoaded, received[0])
	mu.Unlock()

	require.Eventually(t, func() bool {
		list := ts.rs.webhooks.List()
		return len(list) == 1 && list[0].LastUsed != nil
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, ts.rs.webhooks.List()[0].FailureCount)

	code, _ = ts.do(t, http.MethodDelete, "/api/webhooks/99", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = ts.do(t, http.MethodDelete, "/api/webhooks/"+strconv.FormatUint(hook.ID, 10), "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, ts.rs.webhooks.List())
}

func TestWebhookRejectsBadURL(t *testing.T) {
	f := NewWebhookForwarder(nil, 0)
	_, err := f.Add(Webhook{Name: "x", URL: "ftp://example.com"})
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	w, err := f.Add(Webhook{Name: "y", URL: "https://example.com/hook"})
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, w.Events)
	assert.Equal(t, 30, w.Timeout)
}

func TestBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	extract := func(setup func(r *http.Request)) (string, string) {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/players/p/stream?access_token=q", nil)
		setup(c.Request)
		return bearerToken(c)
	}

	token, _ := extract(func(r *http.Request) { r.Header.Set("Authorization", "bearer abc") })
	assert.Equal(t, "abc", token)

	token, reason := extract(func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") })
	assert.Empty(t, token)
	assert.Equal(t, "Неверный формат токена", reason)

	token, _ = extract(func(*http.Request) {})
	assert.Empty(t, token, "query-токен только для websocket")

	token, _ = extract(func(r *http.Request) {
		r.Header.Set("Connection", "Upgrade")
		r.Header.Set("Upgrade", "websocket")
	})
	assert.Equal(t, "q", token)
}
