package can

import (
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// BusHealth is a snapshot of a SocketCAN interface's controller state taken
// from `ip -details -statistics link show`.
type BusHealth struct {
	Timestamp      time.Time
	Interface      string
	State          string
	BusState       string
	Bitrate        int
	TXErrorCounter int
	RXErrorCounter int
	RXErrors       uint64
	TXErrors       uint64
	BusErrors      int
	BusOff         uint64
	ErrorWarning   uint64
	ErrorPassive   uint64
	Restarts       uint64
}

// Degraded reports whether the controller has left the error-active state or
// has recorded bus-off events.
func (h BusHealth) Degraded() bool {
	return (h.BusState != "" && h.BusState != "ERROR-ACTIVE") || h.BusOff > 0
}

// Monitor periodically samples interface health so a live capture can notice
// controller-level trouble that never shows up as frames.
type Monitor struct {
	ifname     string
	interval   time.Duration
	healthChan chan BusHealth
	stopChan   chan struct{}
	log        *zap.SugaredLogger
}

// NewMonitor creates a bus-health monitor for the specified interface.
func NewMonitor(ifname string, interval time.Duration, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		ifname:     ifname,
		interval:   interval,
		healthChan: make(chan BusHealth, 10),
		stopChan:   make(chan struct{}),
		log:        log,
	}
}

// Start begins sampling.
func (m *Monitor) Start() {
	go m.sampleLoop()
}

// Stop stops the monitor.
func (m *Monitor) Stop() {
	close(m.stopChan)
	close(m.healthChan)
}

// Health returns the channel for receiving health snapshots.
func (m *Monitor) Health() <-chan BusHealth {
	return m.healthChan
}

func (m *Monitor) sampleLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()

	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Monitor) sample() {
	health, err := m.readIPStats()
	if err != nil {
		m.log.Warnw("failed to sample interface health",
			"interface", m.ifname, "error", err)
		return
	}

	health.Timestamp = time.Now()
	health.Interface = m.ifname
	if health.Degraded() {
		m.log.Warnw("CAN controller degraded", "interface", m.ifname,
			"bus_state", health.BusState, "bus_off", health.BusOff)
	}

	select {
	case m.healthChan <- health:
	default:
		m.log.Warnw("health channel full, dropping sample", "interface", m.ifname)
	}
}

func (m *Monitor) readIPStats() (BusHealth, error) {
	cmd := exec.Command("ip", "-details", "-statistics", "link", "show", m.ifname)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return BusHealth{}, errors.Wrapf(err, "failed to execute ip command (output: %s)", string(output))
	}

	return parseIPOutput(string(output)), nil
}

var (
	reLinkState    = regexp.MustCompile(`<([^>]+)>`)
	reBitrate      = regexp.MustCompile(`bitrate (\d+)`)
	reBusState     = regexp.MustCompile(`state ([A-Z-]+)`)
	reBerrCounter  = regexp.MustCompile(`berr-counter tx (\d+) rx (\d+)`)
	reRestarted    = regexp.MustCompile(`re-started (\d+)`)
	reBusError     = regexp.MustCompile(`bus-error (\d+)`)
	reErrorWarning = regexp.MustCompile(`error-warning (\d+)`)
	reErrorPassive = regexp.MustCompile(`error-passive (\d+)`)
	reBusOff       = regexp.MustCompile(`bus-off (\d+)`)
)

// parseIPOutput extracts the fault-relevant fields from ip link output.
func parseIPOutput(output string) BusHealth {
	health := BusHealth{}
	lines := strings.Split(output, "\n")

	for i, rawLine := range lines {
		line := strings.TrimSpace(rawLine)

		if i == 0 {
			// Example: "3: can0: <NOARP,UP,LOWER_UP,ECHO> mtu 16 qdisc pfifo_fast state UP ..."
			if m := reLinkState.FindStringSubmatch(line); m != nil {
				if strings.Contains(m[1], "UP") {
					health.State = "UP"
				} else {
					health.State = "DOWN"
				}
			}
		}

		if strings.Contains(line, "bitrate") {
			if m := reBitrate.FindStringSubmatch(line); m != nil {
				health.Bitrate, _ = strconv.Atoi(m[1])
			}
		}

		if strings.Contains(line, "can state") {
			// Example: "can state ERROR-ACTIVE (berr-counter tx 0 rx 0) restart-ms 0"
			if m := reBusState.FindStringSubmatch(line); m != nil {
				health.BusState = m[1]
			}
			if m := reBerrCounter.FindStringSubmatch(line); m != nil {
				health.TXErrorCounter, _ = strconv.Atoi(m[1])
				health.RXErrorCounter, _ = strconv.Atoi(m[2])
			}
		}

		if strings.Contains(line, "RX:") && i+1 < len(lines) {
			fields := strings.Fields(lines[i+1])
			if len(fields) >= 3 {
				health.RXErrors, _ = strconv.ParseUint(fields[2], 10, 64)
			}
		}
		if strings.Contains(line, "TX:") && i+1 < len(lines) {
			fields := strings.Fields(lines[i+1])
			if len(fields) >= 3 {
				health.TXErrors, _ = strconv.ParseUint(fields[2], 10, 64)
			}
		}

		if m := reRestarted.FindStringSubmatch(line); m != nil {
			health.Restarts, _ = strconv.ParseUint(m[1], 10, 64)
		}
		if m := reBusError.FindStringSubmatch(line); m != nil {
			health.BusErrors, _ = strconv.Atoi(m[1])
		}
		if m := reErrorWarning.FindStringSubmatch(line); m != nil {
			health.ErrorWarning, _ = strconv.ParseUint(m[1], 10, 64)
		}
		if m := reErrorPassive.FindStringSubmatch(line); m != nil {
			health.ErrorPassive, _ = strconv.ParseUint(m[1], 10, 64)
		}
		if m := reBusOff.FindStringSubmatch(line); m != nil {
			health.BusOff, _ = strconv.ParseUint(m[1], 10, 64)
		}
	}

	return health
}
