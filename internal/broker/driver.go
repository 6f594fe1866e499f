package broker

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/indihub/internal/message"
	"github.com/nerrad567/indihub/internal/transport"
)

// DriverKind distinguishes local driver processes from remote brokers.
type DriverKind int

const (
	KindLocal DriverKind = iota
	KindRemote
)

// String returns "local" or "remote".
func (k DriverKind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "local"
}

// DriverState is where a driver is in its lifecycle.
type DriverState int

const (
	StateInactive DriverState = iota
	StateStarting
	StateActive
	StatePendingRestart
	StateRetired
)

// String returns a short name for the state.
func (s DriverState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StatePendingRestart:
		return "pending_restart"
	case StateRetired:
		return "retired"
	default:
		return "inactive"
	}
}

// Driver is a local driver process or a remote broker connection.
type Driver struct {
	Name string

	kind  DriverKind
	state DriverState
	// gen changes whenever the transport is replaced or torn down, so
	// goroutines from an earlier incarnation can be recognised.
	gen uint64

	// env is passed to exec-mode local drivers.
	env transport.LocalSpec

	remoteDevice string
	host         string
	port         int

	devices  []string
	snoops   []Property
	conn     io.ReadWriteCloser
	queue    *message.Queue
	restarts int
	started  time.Time
}

// live reports whether the driver currently takes traffic.
func (d *Driver) live() bool {
	return d.state == StateStarting || d.state == StateActive
}

// alive reports whether the driver still counts as work to serve.
func (d *Driver) alive() bool {
	return d.state != StateInactive && d.state != StateRetired
}

func (d *Driver) serves(device string) bool {
	for _, dev := range d.devices {
		if dev == device {
			return true
		}
	}
	return false
}

func (d *Driver) addDevice(device string) bool {
	if device == "" || d.serves(device) {
		return false
	}
	d.devices = append(d.devices, device)
	return true
}

// addSnoop registers interest in another driver's property unless an
// existing snoop already covers it. New snoops start with BLOBs disabled.
func (d *Driver) addSnoop(device, name string) bool {
	if d.matchSnoop(device, name) != nil {
		return false
	}
	d.snoops = append(d.snoops, Property{Device: device, Name: name})
	return true
}

// matchSnoop returns the snoop covering (device, name), or nil.
func (d *Driver) matchSnoop(device, name string) *Property {
	for i := range d.snoops {
		if d.snoops[i].matches(device, name) {
			return &d.snoops[i]
		}
	}
	return nil
}

func (d *Driver) hostPort() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

// isRemoteSpec reports whether a driver name uses [device]@host[:port].
func isRemoteSpec(name string) bool {
	return strings.Contains(name, "@")
}

// parseRemoteSpec splits [device]@host[:port]. The port defaults to
// DefaultPort.
func parseRemoteSpec(spec string) (device, host string, port int, err error) {
	device, addr, ok := strings.Cut(spec, "@")
	if !ok || addr == "" {
		return "", "", 0, fmt.Errorf("%w: %q", ErrBadRemoteSpec, spec)
	}

	host, port = addr, DefaultPort
	if strings.Contains(addr, ":") {
		h, p, splitErr := net.SplitHostPort(addr)
		if splitErr != nil {
			return "", "", 0, fmt.Errorf("%w: %q: %v", ErrBadRemoteSpec, spec, splitErr)
		}
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n <= 0 || n > 65535 {
			return "", "", 0, fmt.Errorf("%w: %q: bad port %q", ErrBadRemoteSpec, spec, p)
		}
		host, port = h, n
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("%w: %q: missing host", ErrBadRemoteSpec, spec)
	}
	return device, host, port, nil
}
