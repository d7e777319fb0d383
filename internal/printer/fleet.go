package printer

import (
	"fmt"
	"sort"
	"sync"
)

// Fleet owns the collection of printer connections, keyed by device
// serial. It exposes connect/disconnect/query operations and fans state
// changes out to one registered subscriber per event kind.
//
// The fleet's own map is guarded independently of any individual
// connection's lock, so a stuck session cannot block fleet queries.
//
// All public methods are safe for concurrent use.
type Fleet struct {
	opts   Options
	logger Logger

	mu          sync.RWMutex
	connections map[string]*Connection

	// Callback slots: last registration wins. Invoked synchronously on
	// whichever goroutine delivered the underlying event; consumers that
	// need another execution context marshal the call themselves.
	cbMu          sync.RWMutex
	onStateUpdate func(serial string, state *PrinterState)
	onConnect     func(serial string)
	onDisconnect  func(serial string)
}

// NewFleet creates an empty fleet. Options apply to every connection it
// creates.
func NewFleet(opts Options) *Fleet {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
		opts.Logger = logger
	}
	return &Fleet{
		opts:        opts,
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

// OnStateUpdate registers the subscriber notified after every decoded
// report. Only one subscriber is held; registering again replaces it.
func (f *Fleet) OnStateUpdate(cb func(serial string, state *PrinterState)) {
	f.cbMu.Lock()
	f.onStateUpdate = cb
	f.cbMu.Unlock()
}

// OnConnect registers the subscriber notified when a session comes up.
func (f *Fleet) OnConnect(cb func(serial string)) {
	f.cbMu.Lock()
	f.onConnect = cb
	f.cbMu.Unlock()
}

// OnDisconnect registers the subscriber notified when a session drops.
func (f *Fleet) OnDisconnect(cb func(serial string)) {
	f.cbMu.Lock()
	f.onDisconnect = cb
	f.cbMu.Unlock()
}

// Connect opens a session to the printer and adds it to the fleet.
//
// Idempotent: if a connection for the serial already exists, it logs and
// returns without creating a duplicate session. A failed connect leaves
// no entry behind; retry policy belongs to the caller.
func (f *Fleet) Connect(serial, address, accessCode, name string) error {
	f.mu.Lock()
	if _, exists := f.connections[serial]; exists {
		f.mu.Unlock()
		f.logger.Info("printer already connected", "serial", serial)
		return nil
	}
	f.mu.Unlock()

	conn := newConnection(serial, address, accessCode, name, f.opts, callbacks{
		onStateUpdate: f.notifyStateUpdate,
		onConnect:     f.notifyConnect,
		onDisconnect:  f.notifyDisconnect,
	})

	if err := conn.Connect(); err != nil {
		f.logger.Error("printer connect failed", "serial", serial, "address", address, "error", err)
		return fmt.Errorf("connecting to %s: %w", serial, err)
	}

	f.mu.Lock()
	// A concurrent Connect for the same serial may have won the race;
	// keep the existing session and fold this one.
	if existing, exists := f.connections[serial]; exists && existing != conn {
		f.mu.Unlock()
		conn.Disconnect()
		f.logger.Info("printer already connected", "serial", serial)
		return nil
	}
	f.connections[serial] = conn
	f.mu.Unlock()

	f.logger.Info("printer connected", "serial", serial, "address", address, "name", name)
	return nil
}

// Disconnect tears down and removes the printer's session.
// A no-op for serials the fleet does not manage.
func (f *Fleet) Disconnect(serial string) {
	f.mu.Lock()
	conn, ok := f.connections[serial]
	delete(f.connections, serial)
	f.mu.Unlock()

	if ok {
		conn.Disconnect()
	}
}

// DisconnectAll tears down every session. Used at shutdown.
func (f *Fleet) DisconnectAll() {
	f.mu.Lock()
	conns := make([]*Connection, 0, len(f.connections))
	for _, c := range f.connections {
		conns = append(conns, c)
	}
	f.connections = make(map[string]*Connection)
	f.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
}

// Get returns the live connection for a serial.
func (f *Fleet) Get(serial string) (*Connection, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	conn, ok := f.connections[serial]
	return conn, ok
}

// IsConnected reports the printer's connectivity, grace window included.
func (f *Fleet) IsConnected(serial string) bool {
	conn, ok := f.Get(serial)
	return ok && conn.Connected()
}

// GetState returns a deep copy of the printer's live state, or nil if the
// fleet does not manage the serial.
func (f *Fleet) GetState(serial string) *PrinterState {
	conn, ok := f.Get(serial)
	if !ok {
		return nil
	}
	return conn.State()
}

// ConnectionStatuses returns a connectivity summary for every managed
// printer, ordered by serial.
func (f *Fleet) ConnectionStatuses() []ConnectionStatus {
	f.mu.RLock()
	conns := make([]*Connection, 0, len(f.connections))
	for _, c := range f.connections {
		conns = append(conns, c)
	}
	f.mu.RUnlock()

	statuses := make([]ConnectionStatus, 0, len(conns))
	for _, c := range conns {
		statuses = append(statuses, ConnectionStatus{
			Serial:    c.Serial(),
			Name:      c.Name(),
			Connected: c.Connected(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Serial < statuses[j].Serial
	})
	return statuses
}

// PendingAssignments returns the staged bindings for a printer.
// Returns ErrNotConnected for serials the fleet does not manage.
func (f *Fleet) PendingAssignments(serial string) ([]PendingAssignment, error) {
	conn, ok := f.Get(serial)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}
	return conn.PendingAssignments(), nil
}

// Calibrations returns the cached calibration profiles for a printer.
// Returns ErrNotConnected for serials the fleet does not manage.
func (f *Fleet) Calibrations(serial string) ([]CalibrationProfile, error) {
	conn, ok := f.Get(serial)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, serial)
	}
	return conn.Calibrations(), nil
}

// Count returns the number of managed connections.
func (f *Fleet) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.connections)
}

func (f *Fleet) notifyStateUpdate(serial string, state *PrinterState) {
	f.cbMu.RLock()
	cb := f.onStateUpdate
	f.cbMu.RUnlock()
	if cb != nil {
		cb(serial, state)
	}
}

func (f *Fleet) notifyConnect(serial string) {
	f.cbMu.RLock()
	cb := f.onConnect
	f.cbMu.RUnlock()
	if cb != nil {
		cb(serial)
	}
}

func (f *Fleet) notifyDisconnect(serial string) {
	f.cbMu.RLock()
	cb := f.onDisconnect
	f.cbMu.RUnlock()
	if cb != nil {
		cb(serial)
	}
}
