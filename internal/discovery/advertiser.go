// Package discovery advertises the hub over mDNS/DNS-SD as _indi._tcp so
// clients can find it without a configured address.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/indihub/internal/broker"
)

const (
	// ServiceType is the DNS-SD service the hub registers.
	ServiceType = "_indi._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."

	// ProtocolVersion is advertised in the TXT record.
	ProtocolVersion = "1.7"

	// maxTXTLen is the DNS limit for a single TXT string.
	maxTXTLen = 255
)

// ErrNotStarted is returned by Update before Start.
var ErrNotStarted = errors.New("discovery: advertiser not started")

// Config selects what and where to advertise.
type Config struct {
	Instance string // defaults to the host name
	Domain   string // defaults to "local."
	Port     int
}

// server is the part of *zeroconf.Server the advertiser uses.
type server interface {
	SetText(text []string)
	Shutdown()
}

type registerFunc func(instance, service, domain string, port int, text []string) (server, error)

func zeroconfRegister(instance, service, domain string, port int, text []string) (server, error) {
	// nil interfaces means every multicast-capable interface.
	var ifaces []net.Interface
	return zeroconf.Register(instance, service, domain, port, text, ifaces)
}

// Advertiser keeps one service registration alive and refreshes its TXT
// record as drivers come and go. It implements telemetry.Observer.
type Advertiser struct {
	cfg      Config
	register registerFunc

	mu      sync.Mutex
	srv     server
	drivers []string
}

// NewAdvertiser creates an advertiser. Nothing is registered until Start.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Instance = "indihub on " + host
		} else {
			cfg.Instance = "indihub"
		}
	}
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	return &Advertiser{cfg: cfg, register: zeroconfRegister}
}

// Start registers the service with the given driver names in the TXT
// record. Starting twice replaces the earlier registration.
func (a *Advertiser) Start(drivers []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.srv != nil {
		a.srv.Shutdown()
		a.srv = nil
	}

	drivers = slices.Clone(drivers)
	slices.Sort(drivers)
	srv, err := a.register(a.cfg.Instance, ServiceType, a.cfg.Domain, a.cfg.Port, TXT(drivers))
	if err != nil {
		return fmt.Errorf("registering %s service: %w", ServiceType, err)
	}
	a.srv = srv
	a.drivers = drivers
	return nil
}

// Update replaces the advertised driver list. Unchanged lists are not
// re-announced.
func (a *Advertiser) Update(drivers []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.srv == nil {
		return ErrNotStarted
	}
	drivers = slices.Clone(drivers)
	slices.Sort(drivers)
	if slices.Equal(drivers, a.drivers) {
		return nil
	}
	a.srv.SetText(TXT(drivers))
	a.drivers = drivers
	return nil
}

// Observe advertises the drivers that are starting or active in snap.
func (a *Advertiser) Observe(snap broker.Snapshot) {
	var names []string
	for _, d := range snap.Drivers {
		if d.State == "active" || d.State == "starting" {
			names = append(names, d.Name)
		}
	}
	_ = a.Update(names) //nolint:errcheck // not started means discovery is off
}

// Stop withdraws the registration.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv != nil {
		a.srv.Shutdown()
		a.srv = nil
	}
}

// TXT builds the TXT strings for a driver list. The driver list is cut at
// a name boundary to fit one TXT string.
func TXT(drivers []string) []string {
	txt := []string{
		"txtvers=1",
		"protocol=" + ProtocolVersion,
		fmt.Sprintf("ndrivers=%d", len(drivers)),
	}
	if len(drivers) == 0 {
		return txt
	}

	const key = "drivers="
	var b strings.Builder
	b.WriteString(key)
	for i, name := range drivers {
		sep := ""
		if i > 0 {
			sep = ","
		}
		if b.Len()+len(sep)+len(name) > maxTXTLen {
			break
		}
		b.WriteString(sep)
		b.WriteString(name)
	}
	if b.Len() > len(key) {
		txt = append(txt, b.String())
	}
	return txt
}
