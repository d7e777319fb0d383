package printer

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Device session constants.
const (
	// devicePort is the MQTT-over-TLS port the printer's built-in broker
	// listens on.
	devicePort = 8883

	// deviceUsername is the fixed protocol username; the per-device
	// access code is the password.
	deviceUsername = "bblp"

	// defaultKeepAlive matches the interval the vendor clients use.
	defaultKeepAlive = 60 * time.Second

	// defaultPublishTimeout bounds how long a command publish may wait
	// for the transport to accept it.
	defaultPublishTimeout = 5 * time.Second

	// disconnectQuiesce is the time (ms) paho waits for in-flight
	// messages on a deliberate disconnect.
	disconnectQuiesce = 250

	// tlsMinVersion is the minimum TLS version accepted from devices.
	tlsMinVersion = tls.VersionTLS12
)

// Logger is the logging interface used by the printer package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// transport abstracts the device MQTT session so tests can substitute a
// recording fake for the paho client.
type transport interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Options configures a Connection's session behaviour.
type Options struct {
	// GracePeriod keeps Connected() true for this long after an
	// unexpected drop, masking momentary network blips.
	GracePeriod time.Duration

	// ConnectTimeout bounds the transport + authentication step of
	// Connect.
	ConnectTimeout time.Duration

	// QoS for report subscriptions and request publishes.
	QoS byte

	// Logger is optional; a no-op logger is used when nil.
	Logger Logger
}

// callbacks are invoked from the session's network goroutine.
// They are fixed at construction time, so no lock guards them.
type callbacks struct {
	onStateUpdate func(serial string, state *PrinterState)
	onConnect     func(serial string)
	onDisconnect  func(serial string)
}

// Connection owns one live session to one physical printer.
//
// It composes the telemetry decoder, the calibration cache, and the
// staged-assignment store. All mutable state is guarded by a single
// per-connection mutex; locks are never shared between connections.
type Connection struct {
	serial     string
	address    string
	accessCode string
	name       string

	opts   Options
	logger Logger
	cbs    callbacks

	mu        sync.Mutex
	transport transport
	live      bool
	lastDrop  time.Time

	state       *PrinterState
	cals        *calibrationTable
	assignments *assignmentStore

	seq atomic.Uint64
}

// newConnection creates an unconnected session object. Call Connect to
// open the transport.
func newConnection(serial, address, accessCode, name string, opts Options, cbs callbacks) *Connection {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Connection{
		serial:      serial,
		address:     address,
		accessCode:  accessCode,
		name:        name,
		opts:        opts,
		logger:      logger,
		cbs:         cbs,
		state:       NewPrinterState(),
		cals:        newCalibrationTable(),
		assignments: newAssignmentStore(),
	}
}

// Serial returns the device identifier this connection manages.
func (c *Connection) Serial() string { return c.serial }

// Name returns the display name given at connect time.
func (c *Connection) Name() string { return c.name }

// Connect opens the TLS MQTT session to the device, authenticates,
// subscribes to its report channel, and primes state with a full push.
//
// Certificate validation is skipped: the devices present self-signed
// certificates and are assumed reachable only on a trusted local network.
//
// Returns ErrConnectFailed (wrapped) if the transport or authentication
// step fails within the configured timeout. No retry is attempted here;
// retry policy belongs to the caller.
func (c *Connection) Connect() error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("ssl://%s:%d", c.address, devicePort))
	opts.SetClientID("spooldock_" + c.serial)
	opts.SetUsername(deviceUsername)
	opts.SetPassword(c.accessCode)
	opts.SetTLSConfig(&tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // self-signed device certs on a trusted LAN
		MinVersion:         tlsMinVersion,
	})
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetConnectTimeout(c.opts.ConnectTimeout)
	opts.SetCleanSession(true)

	// The transport layer re-dials dropped sessions on its own; the grace
	// window masks the gap. Failed *initial* connects are never retried.
	opts.SetAutoReconnect(true)

	opts.SetOnConnectHandler(func(client pahomqtt.Client) {
		c.handleSessionUp(client)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleSessionLost(err)
	})

	client := pahomqtt.NewClient(opts)

	// Install the transport before dialling: the OnConnect handler runs
	// on paho's goroutine and publishes through it immediately.
	c.mu.Lock()
	c.transport = &pahoTransport{client: client, qos: c.opts.QoS}
	c.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(c.opts.ConnectTimeout) {
		c.dropTransport()
		return fmt.Errorf("%w: timeout after %v", ErrConnectFailed, c.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.dropTransport()
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return nil
}

// dropTransport discards a transport whose initial dial failed.
func (c *Connection) dropTransport() {
	c.mu.Lock()
	if t := c.transport; t != nil {
		c.transport = nil
		c.mu.Unlock()
		t.Disconnect(0)
		return
	}
	c.mu.Unlock()
}

// handleSessionUp runs on the network goroutine after every successful
// connect, including transport-level re-dials.
func (c *Connection) handleSessionUp(client pahomqtt.Client) {
	c.mu.Lock()
	c.live = true
	c.lastDrop = time.Time{}
	c.mu.Unlock()

	reportTopic := fmt.Sprintf("device/%s/report", c.serial)
	token := client.Subscribe(reportTopic, c.opts.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.handleReport(msg.Payload())
	})
	if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
		c.logger.Error("report subscription failed", "serial", c.serial, "error", token.Error())
	}

	// Prime state and the calibration cache without waiting for the next
	// periodic report.
	c.RequestFullState()
	c.RequestCalibrations()

	c.logger.Info("printer session up", "serial", c.serial, "topic", reportTopic)

	if c.cbs.onConnect != nil {
		c.cbs.onConnect(c.serial)
	}
}

// handleSessionLost records an unexpected drop. The grace window starts
// here; the transport keeps re-dialling in the background.
func (c *Connection) handleSessionLost(err error) {
	c.mu.Lock()
	c.live = false
	c.lastDrop = time.Now()
	c.mu.Unlock()

	c.logger.Warn("printer session lost", "serial", c.serial, "error", err)

	if c.cbs.onDisconnect != nil {
		c.cbs.onDisconnect(c.serial)
	}
}

// Disconnect deliberately tears the session down. Unlike an unexpected
// drop there is no grace window: Connected() is false immediately.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.live = false
	c.lastDrop = time.Time{}
	c.cals.clear()
	c.mu.Unlock()

	if t != nil {
		t.Disconnect(disconnectQuiesce)
	}
	c.logger.Info("printer disconnected", "serial", c.serial)
}

// Connected reports whether the printer should be treated as reachable.
// True while the session is live, and for the grace window after an
// unexpected drop so momentary blips do not flap through to the UI.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live {
		return true
	}
	if c.lastDrop.IsZero() {
		return false
	}
	return time.Since(c.lastDrop) < c.opts.GracePeriod
}

// State returns a deep copy of the current printer state, safe to read
// while the decoder keeps running.
func (c *Connection) State() *PrinterState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.DeepCopy()
}

// Calibrations returns the cached flow-coefficient profiles.
func (c *Connection) Calibrations() []CalibrationProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cals.list()
}

// handleReport processes one raw report message from the device.
// Malformed payloads are logged and dropped; one bad message must never
// terminate a live session.
func (c *Connection) handleReport(payload []byte) {
	var report map[string]any
	if err := json.Unmarshal(payload, &report); err != nil {
		c.logger.Debug("dropping malformed report", "serial", c.serial, "error", err)
		return
	}

	// Only the print namespace carries telemetry and command
	// acknowledgements; other namespaces are ignored.
	printData, ok := asMap(report["print"])
	if !ok {
		return
	}

	var executed []PendingAssignment

	c.mu.Lock()
	if profiles, isCalResponse := decodeCalibrations(printData); isCalResponse {
		c.cals.replace(profiles)
	}

	transitions := decodePrint(c.state, c.cals, printData)
	for _, key := range transitions {
		if a, staged := c.assignments.take(key); staged {
			executed = append(executed, a)
		}
	}

	snapshot := c.state.DeepCopy()
	c.mu.Unlock()

	// Publishes happen outside the lock: a slow transport must not block
	// concurrent state reads.
	for _, a := range executed {
		c.executeAssignment(a)
	}

	if c.cbs.onStateUpdate != nil {
		c.cbs.onStateUpdate(c.serial, snapshot)
	}
}

// executeAssignment issues the staged commands for a slot that just
// received material. Fire-and-forget: failures are logged, and the
// assignment is already removed either way.
func (c *Connection) executeAssignment(a PendingAssignment) {
	ok := c.SetFilament(a.AmsID, a.TrayID, FilamentSetting{
		TrayInfoIdx:   a.TrayInfoIdx,
		TrayType:      a.TrayType,
		TrayColor:     a.TrayColor,
		NozzleTempMin: a.NozzleTempMin,
		NozzleTempMax: a.NozzleTempMax,
		SettingID:     a.SettingID,
	})
	if !ok {
		c.logger.Warn("staged filament command not accepted",
			"serial", c.serial, "ams_id", a.AmsID, "tray_id", a.TrayID, "spool_id", a.SpoolID)
	}

	if a.CalibrationIdx != nil {
		if !c.SetCalibration(a.AmsID, a.TrayID, *a.CalibrationIdx, a.FilamentID, a.NozzleDiameter) {
			c.logger.Warn("staged calibration command not accepted",
				"serial", c.serial, "ams_id", a.AmsID, "tray_id", a.TrayID, "cali_idx", *a.CalibrationIdx)
		}
	}

	c.logger.Info("staged assignment executed",
		"serial", c.serial, "ams_id", a.AmsID, "tray_id", a.TrayID, "spool_id", a.SpoolID)
}

// ─── Assignment operations ─────────────────────────────────────────

// StageAssignment records a spool-to-slot binding to execute once the
// slot reports material. Staging twice for the same slot overwrites.
func (c *Connection) StageAssignment(a PendingAssignment) {
	c.mu.Lock()
	c.assignments.stage(a)
	c.mu.Unlock()

	c.logger.Info("assignment staged",
		"serial", c.serial, "ams_id", a.AmsID, "tray_id", a.TrayID, "spool_id", a.SpoolID)
}

// CancelAssignment removes a staged binding.
// Returns false if nothing was staged for the slot.
func (c *Connection) CancelAssignment(amsID, trayID int) bool {
	c.mu.Lock()
	removed := c.assignments.cancel(amsID, trayID)
	c.mu.Unlock()

	if removed {
		c.logger.Info("assignment cancelled", "serial", c.serial, "ams_id", amsID, "tray_id", trayID)
	}
	return removed
}

// GetPendingAssignment returns the staged binding for a slot, if any.
func (c *Connection) GetPendingAssignment(amsID, trayID int) (PendingAssignment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignments.get(amsID, trayID)
}

// PendingAssignments returns all staged bindings for this connection.
func (c *Connection) PendingAssignments() []PendingAssignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assignments.all()
}

// ─── Command operations ────────────────────────────────────────────

// FilamentSetting carries the slot identity written by SetFilament.
type FilamentSetting struct {
	TrayInfoIdx   string
	TrayType      string
	TrayColor     string
	NozzleTempMin int
	NozzleTempMax int
	SettingID     string
}

// SetFilament writes a slot's filament identity.
// Returns false if not connected or the publish was not accepted; true
// means the transport took the message, not that the printer applied it.
func (c *Connection) SetFilament(amsID, trayID int, s FilamentSetting) bool {
	return c.publish(printEnvelope{Print: filamentSettingCommand{
		Command:       "ams_filament_setting",
		SequenceID:    c.nextSequenceID(),
		AmsID:         amsID,
		TrayID:        trayID,
		TrayInfoIdx:   s.TrayInfoIdx,
		TrayColor:     s.TrayColor,
		TrayType:      s.TrayType,
		NozzleTempMin: s.NozzleTempMin,
		NozzleTempMax: s.NozzleTempMax,
		SettingID:     s.SettingID,
	}})
}

// SetCalibration binds a stored calibration profile to a slot.
func (c *Connection) SetCalibration(amsID, trayID, calIdx int, filamentID, nozzleDiameter string) bool {
	return c.publish(printEnvelope{Print: calibrationSelectCommand{
		Command:        "extrusion_cali_sel",
		SequenceID:     c.nextSequenceID(),
		AmsID:          amsID,
		TrayID:         trayID,
		CalIdx:         calIdx,
		FilamentID:     filamentID,
		NozzleDiameter: nozzleDiameter,
	}})
}

// SetFlowCoefficient writes a slot's K value directly.
func (c *Connection) SetFlowCoefficient(amsID, trayID int, kValue float64) bool {
	return c.publish(printEnvelope{Print: flowCoefficientCommand{
		Command:    "extrusion_cali",
		SequenceID: c.nextSequenceID(),
		AmsID:      amsID,
		TrayID:     trayID,
		KValue:     kValue,
	}})
}

// ResetSlot forces the device to re-read a slot's embedded tag.
func (c *Connection) ResetSlot(amsID, slotID int) bool {
	return c.publish(printEnvelope{Print: amsControlCommand{
		Command:    "ams_control",
		SequenceID: c.nextSequenceID(),
		Param:      "refresh_rfid",
		AmsID:      amsID,
		SlotID:     slotID,
	}})
}

// RequestCalibrations asks the device for its calibration table; the
// response replaces the cache when it arrives as telemetry.
func (c *Connection) RequestCalibrations() bool {
	return c.publish(printEnvelope{Print: calibrationQueryCommandMsg{
		Command:    "extrusion_cali_get",
		SequenceID: c.nextSequenceID(),
	}})
}

// RequestFullState asks the device to push its complete state.
func (c *Connection) RequestFullState() bool {
	return c.publish(pushingEnvelope{Pushing: pushAllCommand{
		Command:    "pushall",
		SequenceID: c.nextSequenceID(),
	}})
}

// publish marshals a command envelope onto the device's request channel.
func (c *Connection) publish(envelope any) bool {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	if t == nil || !t.IsConnected() {
		return false
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		c.logger.Error("marshalling command failed", "serial", c.serial, "error", err)
		return false
	}

	topic := fmt.Sprintf("device/%s/request", c.serial)
	if err := t.Publish(topic, payload); err != nil {
		c.logger.Warn("command publish failed", "serial", c.serial, "topic", topic, "error", err)
		return false
	}
	return true
}

// nextSequenceID returns a monotonically increasing per-session sequence
// id, formatted the way the firmware expects.
func (c *Connection) nextSequenceID() string {
	return strconv.FormatUint(c.seq.Add(1), 10)
}

// pahoTransport adapts the paho client to the transport interface.
type pahoTransport struct {
	client pahomqtt.Client
	qos    byte
}

func (p *pahoTransport) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("publish timeout after %v", defaultPublishTimeout)
	}
	return token.Error()
}

func (p *pahoTransport) IsConnected() bool {
	return p.client.IsConnected()
}

func (p *pahoTransport) Disconnect(quiesce uint) {
	p.client.Disconnect(quiesce)
}
