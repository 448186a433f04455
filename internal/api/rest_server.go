package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/polyview/internal/auth"
	"github.com/annel0/polyview/internal/eventbus"
	"github.com/annel0/polyview/internal/logging"
	"github.com/annel0/polyview/internal/middleware"
	"github.com/annel0/polyview/internal/polymap"
	"github.com/annel0/polyview/internal/session"
	"github.com/annel0/polyview/internal/world"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RestServer - HTTP API над миром: статистика, визарды чанков, блоки, игроки
type RestServer struct {
	router    *gin.Engine
	server    *http.Server
	world     *world.World
	sessions  *session.Manager
	mappings  *polymap.Set
	bus       eventbus.EventBus
	operators *auth.OperatorRepository
	issuer    *auth.Issuer
	webhooks  *WebhookForwarder
	metrics   *ServerMetrics
	prefStats StatsReporter
	upgrader  websocket.Upgrader

	viewDistance int
	streamEvery  time.Duration
}

// Config содержит зависимости REST сервера
type Config struct {
	Port         string // ":8088"
	World        *world.World
	Sessions     *session.Manager
	Mappings     *polymap.Set
	Bus          eventbus.EventBus // может быть nil
	Operators    *auth.OperatorRepository
	Issuer       *auth.Issuer // nil - аутентификация выключена
	Webhooks     *WebhookForwarder
	ViewDistance int
	// Registry - регистр метрик; nil - prometheus.DefaultRegisterer
	Registry *prometheus.Registry
	// StreamEvery - период отправки обновлений в websocket
	StreamEvery time.Duration
	// Logger - логгер запросов; nil - логгер по умолчанию
	Logger *logging.Logger
	// PrefStats - раздел prefs в /api/stats; nil - раздела нет
	PrefStats StatsReporter
}

// StatsReporter отдаёт произвольные счётчики для /api/stats
type StatsReporter interface {
	Stats() map[string]interface{}
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.StreamEvery <= 0 {
		config.StreamEvery = 50 * time.Millisecond
	}
	if config.Operators == nil {
		config.Operators = auth.NewOperatorRepository()
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if config.Registry != nil {
		registerer, gatherer = config.Registry, config.Registry
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())
	router.Use(otelgin.Middleware("polyview_api"))
	promMw := middleware.NewPrometheusMiddleware("polyview_api", registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	rs := &RestServer{
		router:       router,
		world:        config.World,
		sessions:     config.Sessions,
		mappings:     config.Mappings,
		bus:          config.Bus,
		operators:    config.Operators,
		issuer:       config.Issuer,
		webhooks:     config.Webhooks,
		metrics:      NewServerMetrics(),
		prefStats:    config.PrefStats,
		viewDistance: config.ViewDistance,
		streamEvery:  config.StreamEvery,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	rs.server = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.POST("/auth/login", rs.handleLogin)

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/stats", rs.handleStats)
		protected.GET("/mappings", rs.handleMappings)
		protected.GET("/chunks/:x/:z/wizards", rs.handleChunkWizards)
		protected.GET("/blocks/:x/:y/:z", rs.handleGetBlock)
		protected.GET("/players", rs.handleListPlayers)
		protected.GET("/players/:id", rs.handleGetPlayer)
		protected.GET("/players/:id/updates", rs.handlePlayerUpdates)
		protected.GET("/players/:id/stream", rs.handlePlayerStream)

		admin := protected.Group("/")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/chunks/:x/:z/load", rs.handleLoadChunk)
			admin.DELETE("/chunks/:x/:z", rs.handleUnloadChunk)
			admin.PUT("/blocks/:x/:y/:z", rs.handleSetBlock)
			admin.POST("/blocks/move", rs.handleMoveBlock)
			admin.POST("/players", rs.handleJoin)
			admin.PUT("/players/:id/view", rs.handleUpdateView)
			admin.DELETE("/players/:id", rs.handleLeave)

			admin.GET("/webhooks", rs.handleListWebhooks)
			admin.POST("/webhooks", rs.handleCreateWebhook)
			admin.DELETE("/webhooks/:id", rs.handleDeleteWebhook)
		}
	}
}

// Handler возвращает корневой обработчик (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler { return rs.router }

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	logging.Info("🌐 REST API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("REST API: %w", err)
	}
	return nil
}

// Stop корректно останавливает сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, GenericResponse{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, GenericResponse{Success: false, Message: message})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"world":  rs.world.Name(),
		"tick":   rs.world.CurrentTick(),
		"time":   time.Now().Unix(),
	})
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	Message   string `json:"message"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
	ExpiresIn int64  `json:"expires_in,omitempty"`
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	if rs.issuer == nil {
		c.JSON(http.StatusNotFound, LoginResponse{Message: "Аутентификация выключена"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	op, err := rs.operators.ValidateCredentials(req.Username, req.Password)
	if err != nil {
		logging.Warn("🔐 Неудачный вход оператора %s", req.Username)
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}

	token, err := rs.issuer.Generate(op)
	if err != nil {
		logging.Error("❌ Ошибка выпуска токена для %s: %v", op.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	logging.Info("🔐 Оператор %s вошёл", op.Username)
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		Message:   "Успешный вход",
		IsAdmin:   op.IsAdmin,
		ExpiresIn: int64(rs.issuer.TTL().Seconds()),
	})
}

// handleStats возвращает статистику мира, сессий и процесса
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"world":   rs.world.Stats(),
		"players": rs.sessions.Len(),
		"server":  rs.metrics.Snapshot(),
	}
	if rs.bus != nil {
		stats["events"] = rs.bus.Metrics()
	}
	if rs.prefStats != nil {
		stats["prefs"] = rs.prefStats.Stats()
	}
	ok(c, http.StatusOK, "Статистика получена", stats)
}

// handleMappings возвращает доступные маппинги
func (rs *RestServer) handleMappings(c *gin.Context) {
	type mappingInfo struct {
		Name        string `json:"name"`
		VanillaLike bool   `json:"vanilla_like"`
		Wizards     bool   `json:"wizards"`
		Polys       int    `json:"polys"`
	}

	out := make([]mappingInfo, 0)
	for _, name := range rs.mappings.Names() {
		m, _ := rs.mappings.Get(name)
		out = append(out, mappingInfo{
			Name:        name,
			VanillaLike: m.IsVanillaLike(),
			Wizards:     m.HasBlockWizards(),
			Polys:       m.Polys(),
		})
	}
	ok(c, http.StatusOK, "Маппинги", gin.H{
		"default":  rs.mappings.Default().Name(),
		"mappings": out,
	})
}
