package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	eb := NewEventBus()

	var mu sync.Mutex
	var got []Event
	done := make(chan struct{}, 1)

	eb.Subscribe(EventTradeClosed, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		done <- struct{}{}
	})

	eb.PublishTradeOpened("ETH-USDT-SWAP", "long", 3500, 0.5)
	eb.PublishTradeClosed("ETH-USDT-SWAP", "long", "take_profit", 3500, 3600, 0.5, 50, 0.028)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != EventTradeClosed {
		t.Errorf("expected %s, got %s", EventTradeClosed, got[0].Type)
	}
	if got[0].Data["exit_reason"] != "take_profit" {
		t.Errorf("unexpected exit_reason: %v", got[0].Data["exit_reason"])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp should be set on publish")
	}
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	eb := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(3)

	var mu sync.Mutex
	count := 0
	eb.SubscribeAll(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
		wg.Done()
	})

	eb.PublishPriceUpdate("ETH-USDT-SWAP", 3500)
	eb.PublishDecision("ETH-USDT-SWAP", "hold", "low", "sideways market", 3500, false)
	eb.PublishError("bot", "collect failed", nil)

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for all-event subscriber")
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}
}

func TestHistoryEvictsOldestAndReturnsNewestFirst(t *testing.T) {
	h := NewHistory(3)

	for _, sym := range []string{"a", "b", "c", "d"} {
		h.Record(Event{Type: EventPriceUpdate, Data: map[string]interface{}{"symbol": sym}})
	}

	recent := h.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected 3 events after eviction, got %d", len(recent))
	}
	if recent[0].Data["symbol"] != "d" || recent[2].Data["symbol"] != "b" {
		t.Errorf("unexpected order: %v, %v", recent[0].Data["symbol"], recent[2].Data["symbol"])
	}

	if got := h.Recent(1); len(got) != 1 || got[0].Data["symbol"] != "d" {
		t.Errorf("limit 1 should return only the newest event, got %v", got)
	}

	if n := h.Clear(); n != 3 {
		t.Errorf("expected 3 cleared, got %d", n)
	}
	if len(h.Recent(0)) != 0 {
		t.Error("history should be empty after clear")
	}
}
