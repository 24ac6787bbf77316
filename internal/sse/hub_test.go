package sse

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHubBroadcastScopedToOrg(t *testing.T) {
	hub := NewHub(zap.NewNop())

	subA := hub.Subscribe("org-a", "user-1")
	subB := hub.Subscribe("org-b", "user-2")
	defer subA.Close()
	defer subB.Close()

	hub.PublishInvoiceEvent("org-a", "inv-1", "created")

	select {
	case ev := <-subA.Events:
		if ev.EventType != "invoice_update" {
			t.Errorf("unexpected event type %q", ev.EventType)
		}
		if !strings.Contains(ev.Data, "inv-1") || !strings.Contains(ev.Data, "created") {
			t.Errorf("unexpected payload %q", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("org-a subscriber did not receive event")
	}

	select {
	case ev := <-subB.Events:
		t.Fatalf("org-b subscriber should not receive org-a event, got %+v", ev)
	default:
	}
}

func TestSubscriptionCloseRemovesListener(t *testing.T) {
	hub := NewHub(zap.NewNop())

	sub := hub.Subscribe("org-a", "user-1")
	if hub.Count() != 1 {
		t.Fatalf("expected 1 subscription, got %d", hub.Count())
	}

	sub.Close()
	if hub.Count() != 0 {
		t.Fatalf("expected 0 subscriptions after close, got %d", hub.Count())
	}

	// 通道已关闭
	if _, open := <-sub.Events; open {
		t.Error("events channel should be closed")
	}

	// 重复Close安全
	sub.Close()

	// 关闭后的广播不会panic也不会投递
	hub.Broadcast("org-a", Event{EventType: "invoice_update", Data: "{}"})
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	sub := hub.Subscribe("org-a", "user-1")
	defer sub.Close()

	// 填满缓冲后继续广播不能阻塞
	for i := 0; i < 32; i++ {
		hub.Broadcast("org-a", Event{EventType: "invoice_update", Data: "{}"})
	}

	if got := len(sub.Events); got != cap(sub.Events) {
		t.Errorf("expected full buffer of %d, got %d", cap(sub.Events), got)
	}
}
