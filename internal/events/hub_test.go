package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHub_PublishSubscribe(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10, EventWifi)

	hub.EmitWifiEvent("wlan0", "s1", "CTRL-EVENT-CONNECTED", "IFNAME=wlan0 CTRL-EVENT-CONNECTED", false)

	select {
	case e := <-ch:
		if e.Type != EventWifi {
			t.Errorf("expected EventWifi, got %s", e.Type)
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
		data, ok := e.Data.(WifiEventData)
		if !ok {
			t.Fatal("expected WifiEventData")
		}
		if data.Name != "CTRL-EVENT-CONNECTED" {
			t.Errorf("expected CTRL-EVENT-CONNECTED, got %s", data.Name)
		}
		if data.Iface != "wlan0" {
			t.Errorf("expected wlan0, got %s", data.Iface)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHub_TerminalEventType(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventTerminating)

	hub.EmitWifiEvent("wlan0", "s1", "CTRL-EVENT-TERMINATING", "CTRL-EVENT-TERMINATING - connection closed", true)

	select {
	case e := <-ch:
		if e.Type != EventTerminating {
			t.Errorf("expected EventTerminating, got %s", e.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestHub_GlobalSubscription(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10)

	hub.EmitLifecycle("station", "start", nil)
	hub.EmitDriver(true, nil)
	hub.EmitDHCP("wlan0", "", "", errors.New("no offer"))

	received := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ch:
			received++
		case <-time.After(100 * time.Millisecond):
		}
	}

	if received != 3 {
		t.Errorf("expected 3 events, got %d", received)
	}
}

func TestHub_TypeFiltering(t *testing.T) {
	hub := NewHub()

	ch := hub.Subscribe(10, EventLifecycle, EventDriver)

	hub.Publish(Event{Type: EventWifi, Source: "test"})
	hub.Publish(Event{Type: EventLifecycle, Source: "test"})
	hub.Publish(Event{Type: EventPropChanged, Source: "test"})
	hub.Publish(Event{Type: EventDriver, Source: "test"})

	received := 0
	for {
		select {
		case <-ch:
			received++
		case <-time.After(50 * time.Millisecond):
			goto done
		}
	}
done:

	if received != 2 {
		t.Errorf("expected 2 events, got %d", received)
	}
}

func TestHub_LifecycleError(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1, EventLifecycle)

	hub.EmitLifecycle("p2p", "stop", errors.New("timed out"))

	e := <-ch
	data := e.Data.(LifecycleData)
	if data.OK {
		t.Error("expected OK=false")
	}
	if data.Error != "timed out" {
		t.Errorf("expected error text, got %q", data.Error)
	}
}

func TestHub_NonBlocking(t *testing.T) {
	hub := NewHub()

	_ = hub.Subscribe(1, EventWifi)

	for i := 0; i < 10; i++ {
		hub.Publish(Event{Type: EventWifi, Source: "test"})
	}

	published, dropped := hub.Stats()
	if published != 10 {
		t.Errorf("expected 10 published, got %d", published)
	}
	if dropped < 9 {
		t.Errorf("expected at least 9 dropped, got %d", dropped)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(10, EventWifi)
	all := hub.Subscribe(10)

	hub.Unsubscribe(ch)
	hub.Unsubscribe(all)
	hub.Publish(Event{Type: EventWifi, Source: "test"})

	select {
	case <-ch:
		t.Error("unsubscribed channel received an event")
	case <-all:
		t.Error("unsubscribed global channel received an event")
	default:
	}
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe(1000, EventWifi)

	var wg sync.WaitGroup
	const numPublishers = 10
	const eventsPerPublisher = 100

	for i := 0; i < numPublishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerPublisher; j++ {
				hub.Publish(Event{Type: EventWifi, Source: "test"})
			}
		}()
	}

	wg.Wait()

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			goto done
		}
	}
done:

	if received < numPublishers*eventsPerPublisher/2 {
		t.Errorf("expected at least %d events, got %d", numPublishers*eventsPerPublisher/2, received)
	}
	if published, _ := hub.Stats(); published != numPublishers*eventsPerPublisher {
		t.Errorf("expected %d published, got %d", numPublishers*eventsPerPublisher, published)
	}
}
