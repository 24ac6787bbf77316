package sse

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event represents a Server-Sent Event
type Event struct {
	EventType string `json:"event"`
	Data      string `json:"data"`
}

// Subscription 一个组织范围内的事件订阅。
// 持有者必须调用Close释放，否则监听器会随Hub一直存活。
type Subscription struct {
	ID     string
	OrgID  string
	UserID string
	Events chan Event

	hub  *Hub
	once sync.Once
}

// Close 注销订阅并关闭事件通道，可安全重复调用
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s.ID)
	})
}

// Hub manages live invoice-change subscriptions per organization
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe 注册订阅并返回句柄
func (h *Hub) Subscribe(orgID, userID string) *Subscription {
	sub := &Subscription{
		ID:     uuid.New().String(),
		OrgID:  orgID,
		UserID: userID,
		Events: make(chan Event, 16),
		hub:    h,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("SSE subscription registered",
		zap.String("id", sub.ID),
		zap.String("org_id", orgID),
		zap.String("user_id", userID),
		zap.Int("total", total),
	)
	return sub
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		close(sub.Events)
		delete(h.subs, id)
		h.logger.Debug("SSE subscription removed",
			zap.String("id", id),
			zap.Int("total", len(h.subs)),
		)
	}
}

// Broadcast 向组织内所有订阅者发送事件
func (h *Hub) Broadcast(orgID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.OrgID != orgID {
			continue
		}
		select {
		case sub.Events <- event:
		default:
			h.logger.Warn("SSE subscriber buffer full, skipping event",
				zap.String("id", sub.ID))
		}
	}
}

// Count 当前订阅数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishInvoiceEvent 发布发票变更事件
func (h *Hub) PublishInvoiceEvent(orgID, invoiceID, action string) {
	payload, _ := json.Marshal(map[string]string{
		"invoice_id": invoiceID,
		"action":     action,
	})
	h.Broadcast(orgID, Event{
		EventType: "invoice_update",
		Data:      string(payload),
	})
}
