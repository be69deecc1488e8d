package discovery

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Port is the accessory's TCP port. Required.
	Port int

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes _hap._tcp records for accessories served by this
// process, such as the simulated accessory of the CLI.
type Advertiser struct {
	config   AdvertiserConfig
	factory  MDNSServerFactory
	log      logging.LeveledLogger
	mu       sync.Mutex
	services map[string]MDNSServer
	closed   bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, ErrInvalidPort
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	a := &Advertiser{
		config:   config,
		factory:  factory,
		services: make(map[string]MDNSServer),
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// Advertise starts announcing record under the given instance name.
func (a *Advertiser) Advertise(instance string, record Record) error {
	if instance == "" {
		return ErrInvalidInstanceName
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("advertiser: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if _, exists := a.services[instance]; exists {
		return ErrAlreadyStarted
	}
	return a.register(instance, record)
}

// Update replaces the record announced for instance, for example after
// the status flags change because a controller paired.
func (a *Advertiser) Update(instance string, record Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("advertiser: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	server, exists := a.services[instance]
	if !exists {
		return ErrNotStarted
	}
	server.Shutdown()
	delete(a.services, instance)
	return a.register(instance, record)
}

// register must be called with mu held.
func (a *Advertiser) register(instance string, record Record) error {
	txt := record.Encode()
	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%s service=%s port=%d", instance, ServiceHAP, a.config.Port)
		a.log.Tracef("TXT records: %v", txt)
	}

	server, err := a.factory.Register(instance, ServiceHAP, DefaultDomain, a.config.Port, txt, a.config.Interfaces)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", instance, err)
	}
	a.services[instance] = server

	if a.log != nil {
		a.log.Infof("Advertising %q (%s)", instance, record.ID)
	}
	return nil
}

// Stop stops advertising instance.
func (a *Advertiser) Stop(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	server, exists := a.services[instance]
	if !exists {
		return ErrNotStarted
	}
	server.Shutdown()
	delete(a.services, instance)
	return nil
}

// Instances returns the advertised instance names, sorted.
func (a *Advertiser) Instances() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.services))
	for name := range a.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close stops all advertisements. Further calls to Advertise fail.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	for name, server := range a.services {
		server.Shutdown()
		delete(a.services, name)
	}
	return nil
}
