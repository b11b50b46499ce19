package render

import (
	"testing"
	"time"
)

func collect(t *testing.T, ch <-chan Event, max int) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
			if len(out) >= max {
				return out
			}
		case <-timeout:
			t.Fatalf("timeout waiting for events, got %d", len(out))
		}
	}
}

func TestHubMonotonicPercent(t *testing.T) {
	h := NewHub()
	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 10})
	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 30})
	// 乱序到达的旧进度不得回退
	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 20})

	ev, ok := h.Snapshot("j1")
	if !ok {
		t.Fatal("expected snapshot")
	}
	if ev.Percent != 30 {
		t.Fatalf("percent regressed: got %v", ev.Percent)
	}
}

func TestHubSingleTerminalEvent(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("j1")
	defer cancel()

	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 50})
	h.Publish(Event{Type: EventComplete, JobID: "j1", Percent: 100, ResultAssetID: "ast1"})
	// 终态后的发布一律忽略
	h.Publish(Event{Type: EventComplete, JobID: "j1", Percent: 100})
	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 101})

	events := collect(t, ch, 10)
	terminals := 0
	for _, ev := range events {
		if ev.Type == EventComplete || ev.Type == EventError {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal event, got %d in %+v", terminals, events)
	}
	last := events[len(events)-1]
	if last.Type != EventComplete || last.ResultAssetID != "ast1" {
		t.Fatalf("unexpected final event %+v", last)
	}
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe("j1")
	ch2, cancel2 := h.Subscribe("j1")
	defer cancel1()
	defer cancel2()

	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 40})
	h.Publish(Event{Type: EventError, JobID: "j1", Error: "boom"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		events := collect(t, ch, 10)
		if len(events) == 0 {
			t.Fatalf("subscriber %d got no events", i)
		}
		if last := events[len(events)-1]; last.Type != EventError || last.Error != "boom" {
			t.Fatalf("subscriber %d unexpected final event %+v", i, last)
		}
	}
}

func TestHubLateSubscriber(t *testing.T) {
	h := NewHub()
	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 80})
	h.Publish(Event{Type: EventComplete, JobID: "j1", Percent: 100, ResultAssetID: "ast9"})

	// 任务已终态，订阅立即补发终态并关闭
	ch, cancel := h.Subscribe("j1")
	defer cancel()
	events := collect(t, ch, 10)
	if len(events) != 1 || events[0].Type != EventComplete || events[0].ResultAssetID != "ast9" {
		t.Fatalf("unexpected replay %+v", events)
	}
}

func TestHubCancelIdempotent(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("j1")
	cancel()
	cancel()
	// 取消后的发布不得恐慌
	h.Publish(Event{Type: EventProgress, JobID: "j1", Percent: 10})
}
