package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/polyview/internal/logging"
	"github.com/nats-io/nats.go"
)

// NATSInvalidator рассылает инвалидации кеша маппингов между узлами через NATS.
//
// Каждое сообщение несёт номер узла-отправителя и его возрастающий Seq.
// Свои сообщения и Seq не больше уже виденного от того же узла отбрасываются,
// поэтому повторная доставка не сбрасывает кеш дважды, а два настоящих
// изменения одного игрока подряд доходят оба.
type NATSInvalidator struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	seq     atomic.Uint64

	mu      sync.Mutex
	sub     *nats.Subscription
	handler InvalidationHandler
	lastSeq map[string]uint64 // узел -> последний принятый Seq

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	published atomic.Int64
	received  atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// InvalidatorConfig - настройки подключения к NATS
type InvalidatorConfig struct {
	NATSURL       string
	Subject       string // по умолчанию polyview.cache.invalidation
	MaxReconnects int
	ReconnectWait time.Duration
}

// InvalidationMessage - тело сообщения об инвалидации
type InvalidationMessage struct {
	Key    string `json:"key"`
	NodeID string `json:"node_id"`
	Seq    uint64 `json:"seq"`
	SentAt int64  `json:"sent_at"` // unix ms, для отладки задержек
}

// NewNATSInvalidator подключается к NATS от имени узла nodeID
func NewNATSInvalidator(cfg InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if cfg.Subject == "" {
		cfg.Subject = "polyview.cache.invalidation"
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 10
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("polyview-cache-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn("⚠️ NATS инвалидации: соединение потеряно: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("🔌 NATS инвалидации: переподключились к %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS %s: %w", cfg.NATSURL, err)
	}

	n := newInvalidator(cfg.Subject, nodeID)
	n.conn = conn
	logging.Info("📨 NATS инвалидации: %s, subject %s, узел %s", cfg.NATSURL, cfg.Subject, nodeID)
	return n, nil
}

func newInvalidator(subject, nodeID string) *NATSInvalidator {
	return &NATSInvalidator{
		subject: subject,
		nodeID:  nodeID,
		lastSeq: make(map[string]uint64),
		stopCh:  make(chan struct{}),
	}
}

// Publish сообщает остальным узлам, что key устарел
func (n *NATSInvalidator) Publish(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(InvalidationMessage{
		Key:    key,
		NodeID: n.nodeID,
		Seq:    n.seq.Add(1),
		SentAt: time.Now().UnixMilli(),
	})
	if err != nil {
		n.failed.Add(1)
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.failed.Add(1)
		return fmt.Errorf("публикация инвалидации %s: %w", key, err)
	}
	n.published.Add(1)
	return nil
}

// Subscribe принимает инвалидации других узлов, пока не отменён ctx или не вызван Close
func (n *NATSInvalidator) Subscribe(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub != nil {
		return errors.New("инвалидации уже подписаны")
	}

	sub, err := n.conn.Subscribe(n.subject, n.onMessage)
	if err != nil {
		return fmt.Errorf("подписка на %s: %w", n.subject, err)
	}
	n.sub = sub
	n.handler = handler

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()
	return nil
}

// Close отписывается и закрывает соединение. Повторный вызов ничего не делает.
func (n *NATSInvalidator) Close() error {
	n.closeOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		n.unsubscribe()
		if n.conn != nil {
			n.conn.Close()
		}
	})
	return nil
}

// Stats - счётчики рассылки, попадают в раздел prefs ответа /api/stats
func (n *NATSInvalidator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"published": n.published.Load(),
		"received":  n.received.Load(),
		"dropped":   n.dropped.Load(),
		"failed":    n.failed.Load(),
		"connected": n.conn != nil && n.conn.IsConnected(),
	}
}

func (n *NATSInvalidator) onMessage(msg *nats.Msg) {
	n.received.Add(1)
	var m InvalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		n.failed.Add(1)
		logging.Error("❌ Битое сообщение инвалидации: %v", err)
		return
	}
	n.dispatch(m)
}

// dispatch вызывает обработчик для новых чужих сообщений
func (n *NATSInvalidator) dispatch(m InvalidationMessage) {
	if !n.accept(m) {
		n.dropped.Add(1)
		return
	}
	n.mu.Lock()
	handler := n.handler
	n.mu.Unlock()
	if handler == nil {
		return
	}
	if err := handler(m.Key); err != nil {
		n.failed.Add(1)
		logging.Error("❌ Инвалидация %s от узла %s: %v", m.Key, m.NodeID, err)
	}
}

// accept отсекает свои сообщения и повторы по Seq
func (n *NATSInvalidator) accept(m InvalidationMessage) bool {
	if m.NodeID == n.nodeID {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if m.Seq <= n.lastSeq[m.NodeID] {
		return false
	}
	n.lastSeq[m.NodeID] = m.Seq
	return true
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sub == nil {
		return
	}
	if err := n.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		logging.Warn("⚠️ Отписка от инвалидаций: %v", err)
	}
	n.sub = nil
}
