package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan LineReceivedEvent, 1)

	unsub := bus.Subscribe(func(e LineReceivedEvent) {
		received <- e
	})
	defer unsub()

	event := LineReceivedEvent{
		Port:      "/dev/ttyUSB0",
		Text:      "A001",
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.Text != event.Text {
		t.Errorf("Expected text %s, got %s", event.Text, got.Text)
	}
}

func TestBus_PreservesOrder(t *testing.T) {
	bus := New()
	received := make(chan string, 100)

	unsub := bus.Subscribe(func(e LineReceivedEvent) {
		received <- e.Text
	})
	defer unsub()

	for i := range 100 {
		bus.Publish(LineReceivedEvent{Text: fmt.Sprintf("L%03d", i)})
	}

	for i := range 100 {
		select {
		case got := <-received:
			if want := fmt.Sprintf("L%03d", i); got != want {
				t.Fatalf("Event %d: expected %s, got %s", i, want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for event %d", i)
		}
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan ModeChangedEvent, 1)
	received2 := make(chan ModeChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e ModeChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e ModeChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(ModeChangedEvent{From: "idle", To: "reading"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamErrorEvent, 1)

	unsub := bus.Subscribe(func(e StreamErrorEvent) {
		received <- e
	})

	bus.Publish(StreamErrorEvent{Port: "/dev/ttyUSB0"})
	<-received

	unsub()

	bus.Publish(StreamErrorEvent{Port: "/dev/ttyUSB1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	lineReceived := make(chan bool, 1)
	stopReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ LineReceivedEvent) {
		lineReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ StreamStoppedEvent) {
		stopReceived <- true
	})
	defer unsub2()

	bus.Publish(LineReceivedEvent{Text: "A001"})
	<-lineReceived

	select {
	case <-stopReceived:
		t.Fatal("Stop subscriber should NOT have received LineReceivedEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(StreamStoppedEvent{Reason: "device"})
	<-stopReceived

	select {
	case <-lineReceived:
		t.Fatal("Line subscriber should NOT have received StreamStoppedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ ConnectionChangedEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(ConnectionChangedEvent{
					Status:    "connected",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"LineReceived", LineReceivedEvent{Text: "A001"}},
		{"StreamStopped", StreamStoppedEvent{Reason: "device"}},
		{"StreamError", StreamErrorEvent{Error: "boom"}},
		{"ModeChanged", ModeChangedEvent{From: "idle", To: "writing"}},
		{"ConnectionChanged", ConnectionChangedEvent{Status: "connected"}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case LineReceivedEvent:
				unsub = bus.Subscribe(func(e LineReceivedEvent) { received <- e })
			case StreamStoppedEvent:
				unsub = bus.Subscribe(func(e StreamStoppedEvent) { received <- e })
			case StreamErrorEvent:
				unsub = bus.Subscribe(func(e StreamErrorEvent) { received <- e })
			case ModeChangedEvent:
				unsub = bus.Subscribe(func(e ModeChangedEvent) { received <- e })
			case ConnectionChangedEvent:
				unsub = bus.Subscribe(func(e ConnectionChangedEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestLineReceivedEventJSON(t *testing.T) {
	data, err := json.Marshal(LineReceivedEvent{Port: "COM3", Text: "B002", Timestamp: "2025-01-27T10:30:00Z"})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if result["data"] != "B002" {
		t.Errorf("Expected line under \"data\" key, got %v", result)
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[StreamStoppedEvent](bus, ch)
	defer unsub()

	bus.Publish(StreamStoppedEvent{Port: "/dev/ttyUSB0", Reason: "device"})

	received := <-ch
	stopped, ok := received.(StreamStoppedEvent)
	if !ok {
		t.Fatalf("Expected StreamStoppedEvent, got %T", received)
	}
	if stopped.Reason != "device" {
		t.Errorf("Expected reason device, got %s", stopped.Reason)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[LineReceivedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(LineReceivedEvent{Text: "A001"})
		done <- true
	}()

	<-done
}

func TestForwardToChannel_OrdersAcrossTypes(t *testing.T) {
	bus := New()
	ch := make(chan any, 300)

	unsub := ForwardToChannel(bus, ch, TypeLineReceived, TypeStreamStopped)
	defer unsub()

	for i := 0; i < 100; i++ {
		bus.Publish(LineReceivedEvent{Text: fmt.Sprintf("L%03d", i)})
		bus.Publish(ModeChangedEvent{From: "idle", To: "reading"})
	}
	bus.Publish(StreamStoppedEvent{Reason: "device"})

	for i := 0; i < 100; i++ {
		select {
		case ev := <-ch:
			line, ok := ev.(LineReceivedEvent)
			if !ok {
				t.Fatalf("Event %d: expected LineReceivedEvent, got %T", i, ev)
			}
			if want := fmt.Sprintf("L%03d", i); line.Text != want {
				t.Fatalf("Expected %s, got %s", want, line.Text)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for line %d", i)
		}
	}

	select {
	case ev := <-ch:
		if _, ok := ev.(StreamStoppedEvent); !ok {
			t.Errorf("Expected StreamStoppedEvent last, got %T", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for stop event")
	}
}

func TestSubscribeToChannel_LogEntries(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[LogEntryEvent](bus, ch)
	defer unsub()

	bus.Publish(LineReceivedEvent{Text: "ignored"})
	bus.Publish(LogEntryEvent{Seq: 7, Message: "hello"})

	select {
	case ev := <-ch:
		entry, ok := ev.(LogEntryEvent)
		if !ok || entry.Seq != 7 {
			t.Errorf("Unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for log entry")
	}
}
