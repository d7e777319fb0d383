package discovery

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spooldock/spooldock-core/internal/infrastructure/config"
	"github.com/spooldock/spooldock-core/internal/infrastructure/logging"
)

const (
	defaultTTL     = 300 * time.Second
	maxDatagram    = 2048
	pruneInterval  = 30 * time.Second
	deviceURN      = "urn:bambulab-com:device:3dprinter"
	headerSerial   = "usn"
	headerLocation = "location"
	headerName     = "devname.bambu.com"
	headerModel    = "devmodel.bambu.com"
)

// Printer is one device seen on the network within the TTL window.
type Printer struct {
	Serial    string    `json:"serial"`
	Name      string    `json:"name,omitempty"`
	Model     string    `json:"model,omitempty"`
	IPAddress string    `json:"ip_address"`
	LastSeen  time.Time `json:"last_seen"`
}

// Listener receives announcement datagrams and caches the senders.
type Listener struct {
	cfg    config.DiscoveryConfig
	logger *logging.Logger
	ttl    time.Duration

	mu      sync.RWMutex
	seen    map[string]Printer
	conn    net.PacketConn
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New creates a listener. Call Start to begin receiving announcements.
func New(cfg config.DiscoveryConfig, logger *logging.Logger) *Listener {
	ttl := defaultTTL
	if cfg.TTL > 0 {
		ttl = time.Duration(cfg.TTL) * time.Second
	}
	return &Listener{
		cfg:    cfg,
		logger: logger,
		ttl:    ttl,
		seen:   make(map[string]Printer),
	}
}

// Start binds the UDP port and launches the receive loop. It returns
// immediately; announcements are processed in the background until the
// context is cancelled or Close is called.
func (l *Listener) Start(ctx context.Context) error {
	if !l.cfg.Enabled {
		l.logger.Info("discovery disabled")
		return nil
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", l.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding discovery port %d: %w", l.cfg.Port, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	l.conn = conn
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true
	l.mu.Unlock()

	go l.receiveLoop(runCtx, conn)

	l.logger.Info("discovery listening", "port", l.cfg.Port, "ttl", l.ttl.String())
	return nil
}

// Close stops the receive loop and releases the UDP port.
func (l *Listener) Close() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	cancel := l.cancel
	conn := l.conn
	done := l.done
	l.mu.Unlock()

	cancel()
	err := conn.Close()
	<-done
	return err
}

// Discovered returns printers seen within the TTL window, sorted by
// serial for stable output.
func (l *Listener) Discovered() []Printer {
	cutoff := time.Now().Add(-l.ttl)

	l.mu.RLock()
	out := make([]Printer, 0, len(l.seen))
	for _, p := range l.seen {
		if p.LastSeen.After(cutoff) {
			out = append(out, p)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

func (l *Listener) receiveLoop(ctx context.Context, conn net.PacketConn) {
	defer close(l.done)

	buf := make([]byte, maxDatagram)
	lastPrune := time.Now()

	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Closed socket ends the loop, transient errors do not.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			l.logger.Debug("discovery read ended", "error", err)
			return
		}

		l.handleDatagram(buf[:n], addr)

		if time.Since(lastPrune) > pruneInterval {
			l.prune()
			lastPrune = time.Now()
		}
	}
}

func (l *Listener) handleDatagram(data []byte, addr net.Addr) {
	p, ok := parseAnnouncement(data)
	if !ok {
		return
	}
	if p.IPAddress == "" {
		if udp, isUDP := addr.(*net.UDPAddr); isUDP {
			p.IPAddress = udp.IP.String()
		}
	}
	p.LastSeen = time.Now()

	l.mu.Lock()
	_, known := l.seen[p.Serial]
	l.seen[p.Serial] = p
	l.mu.Unlock()

	if !known {
		l.logger.Info("printer discovered",
			"serial", p.Serial, "name", p.Name, "model", p.Model, "ip", p.IPAddress)
	}
}

func (l *Listener) prune() {
	cutoff := time.Now().Add(-l.ttl)

	l.mu.Lock()
	for serial, p := range l.seen {
		if !p.LastSeen.After(cutoff) {
			delete(l.seen, serial)
		}
	}
	l.mu.Unlock()
}

// parseAnnouncement extracts printer identity from an SSDP-style
// datagram. The first line is a request line (NOTIFY * HTTP/1.1);
// subsequent lines are "Header: value" pairs. Datagrams without a
// serial, or for a different device type when an NT header is present,
// are rejected.
func parseAnnouncement(data []byte) (Printer, bool) {
	var p Printer

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	first := true
	sawURN := false
	hasNT := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			continue
		}
		if line == "" {
			break
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "nt":
			hasNT = true
			if strings.HasPrefix(value, deviceURN) {
				sawURN = true
			}
		case headerSerial:
			p.Serial = value
		case headerLocation:
			p.IPAddress = value
		case headerName:
			p.Name = value
		case headerModel:
			p.Model = value
		}
	}

	if p.Serial == "" {
		return Printer{}, false
	}
	if hasNT && !sawURN {
		return Printer{}, false
	}
	return p, true
}
