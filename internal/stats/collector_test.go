package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/events"
)

func TestRingBuffer_Wrap(t *testing.T) {
	buf := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Add(float64(i))
	}

	snapshot := buf.Snapshot()
	expected := []float64{2, 3, 4}
	if len(snapshot) != len(expected) {
		t.Fatalf("Expected %d items, got %d", len(expected), len(snapshot))
	}
	for i, v := range snapshot {
		if v != expected[i] {
			t.Errorf("Expected %f at index %d, got %f", expected[i], i, v)
		}
	}
}

func TestRingBuffer_Len(t *testing.T) {
	buf := NewRingBuffer(5)
	if buf.Len() != 0 {
		t.Errorf("Expected length 0, got %d", buf.Len())
	}

	buf.Add(1.0)
	buf.Add(2.0)
	if buf.Len() != 2 {
		t.Errorf("Expected length 2, got %d", buf.Len())
	}

	for i := 0; i < 10; i++ {
		buf.Add(float64(i))
	}
	if buf.Len() != 5 {
		t.Errorf("Expected length 5 (capacity), got %d", buf.Len())
	}
}

type fakeFetcher struct {
	counters map[string]uint64
	err      error
}

func (f *fakeFetcher) FetchCounters() (map[string]uint64, error) {
	return f.counters, f.err
}

func newTestCollector(f CounterFetcher) (*Collector, *clock.MockClock) {
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewCollector(f, 2*time.Second, WithCapacity(5), WithClock(clk)), clk
}

func TestCollector_Rates(t *testing.T) {
	f := &fakeFetcher{counters: map[string]uint64{"wifi.CTRL-EVENT-CONNECTED": 10}}
	c, clk := newTestCollector(f)

	c.tick()
	if got := c.Sparkline("wifi.CTRL-EVENT-CONNECTED"); len(got) != 0 {
		t.Fatalf("Expected no points after the baseline sample, got %v", got)
	}

	clk.Advance(2 * time.Second)
	f.counters = map[string]uint64{
		"wifi.CTRL-EVENT-CONNECTED":    14,
		"wifi.CTRL-EVENT-DISCONNECTED": 3,
	}
	c.tick()

	if got := c.Sparkline("wifi.CTRL-EVENT-CONNECTED"); len(got) != 1 || got[0] != 2 {
		t.Errorf("Expected [2], got %v", got)
	}
	// New series count from zero.
	if got := c.Sparkline("wifi.CTRL-EVENT-DISCONNECTED"); len(got) != 1 || got[0] != 1.5 {
		t.Errorf("Expected [1.5], got %v", got)
	}
}

func TestCollector_ElapsedTime(t *testing.T) {
	f := &fakeFetcher{counters: map[string]uint64{"a": 0}}
	c, clk := newTestCollector(f)
	c.tick()

	// A late sample spreads the delta over the real elapsed time.
	clk.Advance(4 * time.Second)
	f.counters = map[string]uint64{"a": 8}
	c.tick()

	if got := c.Sparkline("a"); len(got) != 1 || got[0] != 2 {
		t.Errorf("Expected [2], got %v", got)
	}
}

func TestCollector_CounterReset(t *testing.T) {
	f := &fakeFetcher{counters: map[string]uint64{"a": 1000}}
	c, clk := newTestCollector(f)
	c.tick()

	clk.Advance(2 * time.Second)
	f.counters = map[string]uint64{"a": 50}
	c.tick()

	if got := c.Sparkline("a"); len(got) != 1 || got[0] != 25 {
		t.Errorf("Expected [25] after counter reset, got %v", got)
	}
}

func TestCollector_AllAndReset(t *testing.T) {
	f := &fakeFetcher{counters: map[string]uint64{"b": 1, "a": 2}}
	c, clk := newTestCollector(f)
	c.tick()
	clk.Advance(2 * time.Second)
	c.tick()

	all := c.All()
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Fatalf("Expected series a, b; got %+v", all)
	}
	if all[0].Total != 2 {
		t.Errorf("Expected total 2, got %d", all[0].Total)
	}

	c.Reset()
	if got := c.All(); len(got) != 0 {
		t.Errorf("Expected 0 series after reset, got %d", len(got))
	}
}

func TestCollector_FetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	c, _ := newTestCollector(f)
	c.tick()
	if got := c.All(); len(got) != 0 {
		t.Errorf("Expected no series, got %d", len(got))
	}
}

func TestCollector_StartStop(t *testing.T) {
	f := &fakeFetcher{counters: map[string]uint64{"a": 1}}
	c := NewCollector(f, 10*time.Millisecond)
	c.Start()
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for len(c.Sparkline("a")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for samples")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop()
}

func TestEventCounter(t *testing.T) {
	hub := events.NewHub()
	ec := NewEventCounter(hub)

	ec.Observe(events.Event{Type: events.EventWifi, Data: events.WifiEventData{Name: "CTRL-EVENT-CONNECTED"}})
	ec.Observe(events.Event{Type: events.EventWifi, Data: events.WifiEventData{Name: "CTRL-EVENT-CONNECTED"}})
	ec.Observe(events.Event{Type: events.EventDriver, Data: events.DriverData{Loaded: true}})
	hub.Publish(events.Event{Type: events.EventDHCP})

	counts, err := ec.FetchCounters()
	if err != nil {
		t.Fatal(err)
	}
	if counts["wifi.CTRL-EVENT-CONNECTED"] != 2 {
		t.Errorf("Expected 2 connected events, got %d", counts["wifi.CTRL-EVENT-CONNECTED"])
	}
	if counts[SeriesPublished] != 1 {
		t.Errorf("Expected 1 published, got %d", counts[SeriesPublished])
	}
	if _, ok := counts[SeriesDropped]; !ok {
		t.Error("Expected a dropped series")
	}
}

func TestEventCounter_Run(t *testing.T) {
	hub := events.NewHub()
	ec := NewEventCounter(hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ec.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.EmitWifiEvent("wlan0", "s1", "CTRL-EVENT-SCAN-RESULTS", "CTRL-EVENT-SCAN-RESULTS", false)
		counts, _ := ec.FetchCounters()
		if counts["wifi.CTRL-EVENT-SCAN-RESULTS"] > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for counted event")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	hub := events.NewHub()
	svc := NewService(hub, nil)
	if svc.Status().Running {
		t.Fatal("service should not run before Start")
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !svc.Status().Running {
		t.Error("service should run after Start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.EmitWifiEvent("wlan0", "s1", "CTRL-EVENT-CONNECTED", "CTRL-EVENT-CONNECTED", false)
		counts, _ := svc.counter.FetchCounters()
		if counts["wifi.CTRL-EVENT-CONNECTED"] > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for counted event")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
