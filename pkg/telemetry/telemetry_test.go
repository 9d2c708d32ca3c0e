package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"assetbridge/pkg/httpx"
)

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) Observe(ev Event) {
	c.mu.Lock()
	c.ids = append(c.ids, ev.ID)
	c.mu.Unlock()
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	c := &collector{}
	d := NewDispatcher(c, 16)
	for _, id := range []string{"a", "b", "c"} {
		d.Observe(Event{ID: id})
	}
	d.Close()
	if strings.Join(c.ids, ",") != "a,b,c" {
		t.Fatalf("unexpected delivery order: %v", c.ids)
	}
	// after close events are dropped, not delivered or panicking
	d.Observe(Event{ID: "late"})
	if d.Dropped() != 1 {
		t.Fatalf("expected late event to be dropped, got %d", d.Dropped())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	var got []string
	obs := ObserverFunc(func(ev Event) {
		once.Do(func() { close(started) })
		<-release
		mu.Lock()
		got = append(got, ev.ID)
		mu.Unlock()
	})

	d := NewDispatcher(obs, 1)
	d.Observe(Event{ID: "1"})
	<-started // observer now holds event 1
	d.Observe(Event{ID: "2"}) // queued
	d.Observe(Event{ID: "3"}) // queue full
	if d.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", d.Dropped())
	}
	close(release)
	d.Close()
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("unexpected delivered events: %v", got)
	}
}

func TestDispatcherRecoversObserverPanic(t *testing.T) {
	c := &collector{}
	calls := 0
	obs := Multi{
		ObserverFunc(func(ev Event) {
			calls++
			if ev.ID == "boom" {
				panic("observer failure")
			}
		}),
		c,
	}
	d := NewDispatcher(obs, 4)
	d.Observe(Event{ID: "boom"})
	d.Observe(Event{ID: "ok"})
	d.Close()
	if calls != 2 {
		t.Fatalf("expected dispatcher to survive panic, calls=%d", calls)
	}
	if len(c.ids) != 1 || c.ids[0] != "ok" {
		t.Fatalf("unexpected events after panic: %v", c.ids)
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := LogObserver{Logger: lg}

	o.Observe(Event{ID: "fast", Kind: KindStatic, State: StateDone, Duration: 1})
	o.Observe(Event{ID: "slow", Kind: KindDynamic, State: StateDone, Duration: 2500})
	o.Observe(Event{ID: "bad", Kind: KindDynamic, State: StateFailed, Err: "handler: boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 records, got %d: %s", len(lines), buf.String())
	}
	want := []struct{ id, msg, level string }{
		{"fast", "exchange_completed", "DEBUG"},
		{"slow", "slow_exchange", "WARN"},
		{"bad", "exchange_failed", "WARN"},
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid json record: %v", err)
		}
		if rec["id"] != want[i].id || rec["msg"] != want[i].msg || rec["level"] != want[i].level {
			t.Fatalf("record %d: got %v want %+v", i, rec, want[i])
		}
	}
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.Observe(Event{Kind: KindStatic, State: StateDone, Encoding: "br", Bytes: 100, Duration: 2, Response: httpx.ResponseSnapshot{Status: 200}})
	m.Observe(Event{Kind: KindStatic, State: StateDone, Encoding: "br", Bytes: 50, Duration: 3, Response: httpx.ResponseSnapshot{Status: 200}})
	m.Observe(Event{Kind: KindDynamic, State: StateAborted, Response: httpx.ResponseSnapshot{Status: 200}})

	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("static", "done", "200")); got != 2 {
		t.Fatalf("expected 2 static exchanges, got %v", got)
	}
	if got := testutil.ToFloat64(m.bytes.WithLabelValues("static", "br")); got != 150 {
		t.Fatalf("expected 150 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.exchanges.WithLabelValues("dynamic", "aborted", "200")); got != 1 {
		t.Fatalf("expected 1 aborted exchange, got %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Fatalf("expected 2 histogram series, got %d", n)
	}

	if _, err := NewMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	d := NewDispatcher(ObserverFunc(func(Event) {}), 1)
	defer d.Close()
	if err := RegisterDropped(reg, d); err != nil {
		t.Fatalf("RegisterDropped: %v", err)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateDone, StateAborted, StateFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateReceived, StateStreamingFile, StateAwaitingHandler, StateStreamingBody} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if NewID() == NewID() {
		t.Fatalf("ids must be unique")
	}
}
