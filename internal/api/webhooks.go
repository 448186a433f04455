package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/annel0/polyview/internal/eventbus"
	"github.com/annel0/polyview/internal/logging"
	"github.com/gin-gonic/gin"
)

// ErrInvalidWebhook возвращается при добавлении webhook'а без корректного URL
var ErrInvalidWebhook = errors.New("invalid webhook")

// Webhook - внешний получатель событий мира
type Webhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Secret       string     `json:"-"`
	Events       []string   `json:"events"` // "*" - все события
	RetryCount   int        `json:"retry_count"`
	Timeout      int        `json:"timeout"` // секунды
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

func (w *Webhook) subscribed(eventType string) bool {
	for _, ev := range w.Events {
		if ev == eventType || ev == "*" {
			return true
		}
	}
	return false
}

// WebhookForwarder пересылает события шины во внешние webhook'и
type WebhookForwarder struct {
	mu       sync.RWMutex
	webhooks map[uint64]*Webhook
	nextID   uint64

	client  *http.Client
	backoff time.Duration
	queue   chan *eventbus.Envelope
	sub     eventbus.Subscription

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWebhookForwarder создаёт пересыльщик; backoff - базовая пауза между попытками
func NewWebhookForwarder(client *http.Client, backoff time.Duration) *WebhookForwarder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &WebhookForwarder{
		webhooks: make(map[uint64]*Webhook),
		nextID:   1,
		client:   client,
		backoff:  backoff,
		queue:    make(chan *eventbus.Envelope, 1000),
	}
}

// Start подписывается на шину и запускает воркера отправки
func (f *WebhookForwarder) Start(ctx context.Context, bus eventbus.EventBus) error {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case f.queue <- ev:
		default:
			logging.Warn("⚠️ Очередь webhook'ов переполнена, событие %s пропущено", ev.EventType)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("подписка webhook'ов: %w", err)
	}
	f.sub = sub
	f.cancel = cancel

	f.wg.Add(1)
	go f.worker(ctx)
	return nil
}

// Stop отписывается от шины и ждёт завершения воркера
func (f *WebhookForwarder) Stop() {
	if f.sub != nil {
		f.sub.Unsubscribe()
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *WebhookForwarder) worker(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.dispatch(ctx, ev)
		}
	}
}

func (f *WebhookForwarder) dispatch(ctx context.Context, ev *eventbus.Envelope) {
	f.mu.RLock()
	targets := make([]Webhook, 0, len(f.webhooks))
	for _, w := range f.webhooks {
		if w.subscribed(ev.EventType) {
			targets = append(targets, *w)
		}
	}
	f.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		logging.Error("❌ Ошибка маршалинга события %s: %v", ev.EventType, err)
		return
	}

	var wg sync.WaitGroup
	for _, w := range targets {
		wg.Add(1)
		go func(w Webhook) {
			defer wg.Done()
			f.record(w.ID, f.deliver(ctx, w, ev.EventType, body))
		}(w)
	}
	wg.Wait()
}

// deliver отправляет тело с повторами; запрос создаётся заново на каждую попытку
func (f *WebhookForwarder) deliver(ctx context.Context, w Webhook, eventType string, body []byte) bool {
	for attempt := 0; attempt <= w.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(attempt) * f.backoff):
			}
		}

		status, err := f.post(ctx, w, eventType, body)
		if err == nil && status >= 200 && status < 300 {
			logging.Debug("✅ Событие %s отправлено в webhook %s", eventType, w.Name)
			return true
		}
		if err != nil {
			logging.Warn("⚠️ Попытка %d/%d для webhook %s: %v", attempt+1, w.RetryCount+1, w.Name, err)
		} else {
			logging.Warn("⚠️ Webhook %s вернул статус %d на попытке %d", w.Name, status, attempt+1)
		}
	}
	return false
}

func (f *WebhookForwarder) post(ctx context.Context, w Webhook, eventType string, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(w.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PolyView/1.0")
	req.Header.Set("X-Event-Type", eventType)
	if w.Secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(body, w.Secret))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (f *WebhookForwarder) record(id uint64, success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, found := f.webhooks[id]
	if !found {
		return
	}
	now := time.Now()
	w.LastUsed = &now
	if !success {
		w.FailureCount++
	}
}

// Sign возвращает HMAC-SHA256 подпись тела в формате "sha256=<hex>"
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Add регистрирует webhook
func (f *WebhookForwarder) Add(w Webhook) (Webhook, error) {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Webhook{}, fmt.Errorf("%w: url %q", ErrInvalidWebhook, w.URL)
	}
	if len(w.Events) == 0 {
		w.Events = []string{"*"}
	}
	if w.Timeout <= 0 {
		w.Timeout = 30
	}
	if w.RetryCount < 0 {
		w.RetryCount = 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	w.ID = f.nextID
	f.nextID++
	w.CreatedAt = time.Now()
	w.FailureCount = 0
	w.LastUsed = nil
	f.webhooks[w.ID] = &w
	return w, nil
}

// List возвращает webhook'и, упорядоченные по ID
func (f *WebhookForwarder) List() []Webhook {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Webhook, 0, len(f.webhooks))
	for _, w := range f.webhooks {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete удаляет webhook
func (f *WebhookForwarder) Delete(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, found := f.webhooks[id]; !found {
		return false
	}
	delete(f.webhooks, id)
	return true
}

// CreateWebhookRequest - тело запроса на добавление webhook'а
type CreateWebhookRequest struct {
	Name       string   `json:"name" binding:"required"`
	URL        string   `json:"url" binding:"required"`
	Secret     string   `json:"secret"`
	Events     []string `json:"events"`
	RetryCount int      `json:"retry_count"`
	Timeout    int      `json:"timeout"`
}

func (rs *RestServer) handleListWebhooks(c *gin.Context) {
	if rs.webhooks == nil {
		fail(c, http.StatusServiceUnavailable, "Webhook'и отключены")
		return
	}
	ok(c, http.StatusOK, "Webhook'и", rs.webhooks.List())
}

func (rs *RestServer) handleCreateWebhook(c *gin.Context) {
	if rs.webhooks == nil {
		fail(c, http.StatusServiceUnavailable, "Webhook'и отключены")
		return
	}
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	w, err := rs.webhooks.Add(Webhook{
		Name:       req.Name,
		URL:        req.URL,
		Secret:     req.Secret,
		Events:     req.Events,
		RetryCount: req.RetryCount,
		Timeout:    req.Timeout,
	})
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	logging.Info("🔗 Добавлен webhook %s (%s)", w.Name, w.URL)
	ok(c, http.StatusCreated, "Webhook добавлен", w)
}

func (rs *RestServer) handleDeleteWebhook(c *gin.Context) {
	if rs.webhooks == nil {
		fail(c, http.StatusServiceUnavailable, "Webhook'и отключены")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "Неверный ID webhook'а")
		return
	}
	if !rs.webhooks.Delete(id) {
		fail(c, http.StatusNotFound, "Webhook не найден")
		return
	}
	ok(c, http.StatusOK, "Webhook удалён", gin.H{"id": id})
}
