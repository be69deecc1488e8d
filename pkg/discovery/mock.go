package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver provides a mock mDNS resolver for testing without real network I/O.
// Registered entries are delivered once and the entries channel is closed
// afterwards.
type MockMDNSResolver struct {
	mu       sync.RWMutex
	services map[string][]*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{
		services: make(map[string][]*zeroconf.ServiceEntry),
	}
}

// RegisterService registers a service that will be returned by Browse/Lookup.
func (m *MockMDNSResolver) RegisterService(service string, entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[service] = append(m.services[service], entry)
}

// ClearServices removes all registered services.
func (m *MockMDNSResolver) ClearServices() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = make(map[string][]*zeroconf.ServiceEntry)
}

func (m *MockMDNSResolver) snapshot(service string) []*zeroconf.ServiceEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*zeroconf.ServiceEntry(nil), m.services[service]...)
}

// Browse implements MDNSResolver.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	go m.deliver(ctx, m.snapshot(service), "", entries)
	return nil
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	go m.deliver(ctx, m.snapshot(service), instance, entries)
	return nil
}

func (m *MockMDNSResolver) deliver(ctx context.Context, svcEntries []*zeroconf.ServiceEntry, instance string, entries chan<- *zeroconf.ServiceEntry) {
	defer close(entries)
	for _, entry := range svcEntries {
		if instance != "" && entry.Instance != instance {
			continue
		}
		select {
		case entries <- entry:
		case <-ctx.Done():
			return
		}
	}
}

// MockAccessoryService creates a _hap._tcp service entry for testing.
func MockAccessoryService(instance string, port int, ip net.IP, record Record) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, ServiceHAP, DefaultDomain)
	entry.HostName = instance + ".local."
	entry.Port = port
	if ip.To4() != nil {
		entry.AddrIPv4 = []net.IP{ip}
	} else {
		entry.AddrIPv6 = []net.IP{ip}
	}
	entry.Text = record.Encode()
	return entry
}

// MockServerFactory records registrations instead of announcing them.
type MockServerFactory struct {
	mu      sync.Mutex
	servers map[string]*MockServer
}

// MockServer is a registration made through MockServerFactory.
type MockServer struct {
	Instance string
	Service  string
	Port     int
	Text     []string

	mu       sync.Mutex
	shutdown bool
}

// NewMockServerFactory creates a new mock server factory.
func NewMockServerFactory() *MockServerFactory {
	return &MockServerFactory{servers: make(map[string]*MockServer)}
}

// Register implements MDNSServerFactory.
func (f *MockServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &MockServer{
		Instance: instance,
		Service:  service,
		Port:     port,
		Text:     append([]string(nil), txt...),
	}
	f.servers[instance] = s
	return s, nil
}

// Server returns the latest registration for instance, or nil.
func (f *MockServerFactory) Server(instance string) *MockServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.servers[instance]
}

// Shutdown implements MDNSServer.
func (s *MockServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
}

// IsShutdown reports whether Shutdown was called.
func (s *MockServer) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}
