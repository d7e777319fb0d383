package printer

import (
	"errors"
	"testing"
)

// seedConnection inserts a fake-backed connection into the fleet the way
// a successful Connect would, bypassing the network dial.
func seedConnection(t *testing.T, f *Fleet, serial, name string) (*Connection, *fakeTransport) {
	t.Helper()
	c, ft := testConnection(t, f.opts, callbacks{
		onStateUpdate: f.notifyStateUpdate,
		onConnect:     f.notifyConnect,
		onDisconnect:  f.notifyDisconnect,
	})
	c.serial = serial
	c.name = name
	f.mu.Lock()
	f.connections[serial] = c
	f.mu.Unlock()
	return c, ft
}

func TestFleet_ConnectIsIdempotent(t *testing.T) {
	f := NewFleet(Options{})
	seedConnection(t, f, "SERIAL-A", "A")

	// A second connect for a managed serial must not dial again; with no
	// broker reachable, dialling would return an error instead of nil.
	if err := f.Connect("SERIAL-A", "192.168.1.50", "12345678", "A"); err != nil {
		t.Fatalf("Connect on managed serial = %v, want nil", err)
	}
	if f.Count() != 1 {
		t.Errorf("Count() = %d after duplicate connect, want 1", f.Count())
	}
}

func TestFleet_DisconnectRemoves(t *testing.T) {
	f := NewFleet(Options{})
	_, ft := seedConnection(t, f, "SERIAL-A", "A")

	f.Disconnect("SERIAL-A")
	if f.Count() != 0 {
		t.Errorf("Count() = %d after disconnect, want 0", f.Count())
	}
	if ft.IsConnected() {
		t.Error("transport still connected after fleet disconnect")
	}
	// Unknown serials are a no-op.
	f.Disconnect("SERIAL-B")
}

func TestFleet_DisconnectAll(t *testing.T) {
	f := NewFleet(Options{})
	_, ftA := seedConnection(t, f, "SERIAL-A", "A")
	_, ftB := seedConnection(t, f, "SERIAL-B", "B")

	f.DisconnectAll()
	if f.Count() != 0 {
		t.Errorf("Count() = %d after DisconnectAll, want 0", f.Count())
	}
	if ftA.IsConnected() || ftB.IsConnected() {
		t.Error("transports still connected after DisconnectAll")
	}
}

func TestFleet_QueriesForUnknownSerial(t *testing.T) {
	f := NewFleet(Options{})

	if f.IsConnected("SERIAL-X") {
		t.Error("IsConnected(unknown) = true")
	}
	if st := f.GetState("SERIAL-X"); st != nil {
		t.Errorf("GetState(unknown) = %+v, want nil", st)
	}
	if _, err := f.Calibrations("SERIAL-X"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Calibrations(unknown) err = %v, want ErrNotConnected", err)
	}
	if _, err := f.PendingAssignments("SERIAL-X"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PendingAssignments(unknown) err = %v, want ErrNotConnected", err)
	}
}

func TestFleet_ConnectionStatusesSorted(t *testing.T) {
	f := NewFleet(Options{})
	seedConnection(t, f, "SERIAL-B", "Bench")
	cA, _ := seedConnection(t, f, "SERIAL-A", "Attic")
	cA.handleSessionLost(nil)

	statuses := f.ConnectionStatuses()
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if statuses[0].Serial != "SERIAL-A" || statuses[1].Serial != "SERIAL-B" {
		t.Errorf("statuses not sorted by serial: %+v", statuses)
	}
	if statuses[0].Connected {
		t.Error("SERIAL-A reported connected after drop with zero grace")
	}
	if !statuses[1].Connected {
		t.Error("SERIAL-B reported disconnected while live")
	}
}

func TestFleet_CallbacksRouteFromConnections(t *testing.T) {
	f := NewFleet(Options{})

	var updates, connects, disconnects []string
	f.OnStateUpdate(func(serial string, _ *PrinterState) { updates = append(updates, serial) })
	f.OnConnect(func(serial string) { connects = append(connects, serial) })
	f.OnDisconnect(func(serial string) { disconnects = append(disconnects, serial) })

	c, _ := seedConnection(t, f, "SERIAL-A", "A")
	c.handleReport([]byte(`{"print": {"mc_percent": 5}}`))
	c.handleSessionLost(nil)

	if len(updates) != 1 || updates[0] != "SERIAL-A" {
		t.Errorf("state updates = %v, want [SERIAL-A]", updates)
	}
	if len(disconnects) != 1 || disconnects[0] != "SERIAL-A" {
		t.Errorf("disconnects = %v, want [SERIAL-A]", disconnects)
	}
	_ = connects

	// Re-registering replaces the previous subscriber.
	f.OnStateUpdate(nil)
	c.handleReport([]byte(`{"print": {"mc_percent": 6}}`))
	if len(updates) != 1 {
		t.Errorf("replaced subscriber still invoked: %v", updates)
	}
}
