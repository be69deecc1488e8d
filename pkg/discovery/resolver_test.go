package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/test"
)

func newTestResolver(t *testing.T, mock *MockMDNSResolver) *Resolver {
	t.Helper()
	r, err := NewResolver(ResolverConfig{
		MDNSResolver:  mock,
		BrowseTimeout: time.Second,
		LookupTimeout: time.Second,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func TestResolver_Browse(t *testing.T) {
	defer test.CheckRoutines(t)()

	mock := NewMockMDNSResolver()
	mock.RegisterService(ServiceHAP, MockAccessoryService("Lamp", 51826, net.ParseIP("192.168.1.20"), Record{
		ID: "AA:BB:CC:DD:EE:01", Model: "Lamp1,1", Status: StatusNotPaired,
	}))
	mock.RegisterService(ServiceHAP, MockAccessoryService("Fan", 51827, net.ParseIP("fd00::20"), Record{
		ID: "AA:BB:CC:DD:EE:02", Model: "Fan1,1",
	}))
	// Broken TXT records are skipped.
	broken := zeroconf.NewServiceEntry("Broken", ServiceHAP, DefaultDomain)
	broken.Text = []string{"md=NoID"}
	mock.RegisterService(ServiceHAP, broken)

	r := newTestResolver(t, mock)
	services, err := r.Browse(context.Background(), ServiceTypeHAP)
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}

	var got []Service
	for svc := range services {
		got = append(got, svc)
	}
	if len(got) != 2 {
		t.Fatalf("Browse() returned %d services, want 2", len(got))
	}

	lamp := got[0]
	if lamp.Instance != "Lamp" || lamp.Type != ServiceTypeHAP {
		t.Errorf("service = %s/%s, want Lamp/HAP", lamp.Instance, lamp.Type)
	}
	if lamp.Record.ID != "AA:BB:CC:DD:EE:01" || lamp.Record.Paired() {
		t.Errorf("record = %+v", lamp.Record)
	}
	if lamp.Addr() != "192.168.1.20:51826" {
		t.Errorf("Addr() = %q", lamp.Addr())
	}
	if lamp.Text["md"] != "Lamp1,1" {
		t.Errorf("Text[md] = %q", lamp.Text["md"])
	}
	if got[1].Addr() != "[fd00::20]:51827" {
		t.Errorf("Addr() = %q", got[1].Addr())
	}
}

func TestResolver_BrowseAirPlay(t *testing.T) {
	mock := NewMockMDNSResolver()
	entry := zeroconf.NewServiceEntry("Living Room", ServiceAirPlay, DefaultDomain)
	entry.Port = 7000
	entry.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.5")}
	entry.Text = []string{"deviceid=58:55:CA:1A:E2:88", "features=0x5A7FFFF7,0x1E", "model=AppleTV6,2"}
	mock.RegisterService(ServiceAirPlay, entry)

	r := newTestResolver(t, mock)
	services, err := r.Browse(context.Background(), ServiceTypeAirPlay)
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}

	svc, ok := <-services
	if !ok {
		t.Fatal("Browse() returned no services")
	}
	if svc.Record.ID != "58:55:CA:1A:E2:88" || svc.Addr() != "10.0.0.5:7000" {
		t.Errorf("service = %+v", svc)
	}
	for range services {
	}
}

func TestResolver_BrowseInvalidType(t *testing.T) {
	r := newTestResolver(t, NewMockMDNSResolver())
	if _, err := r.Browse(context.Background(), ServiceTypeUnknown); !errors.Is(err, ErrInvalidServiceType) {
		t.Errorf("Browse() error = %v, want %v", err, ErrInvalidServiceType)
	}
}

func TestResolver_Lookup(t *testing.T) {
	defer test.CheckRoutines(t)()

	mock := NewMockMDNSResolver()
	mock.RegisterService(ServiceHAP, MockAccessoryService("Lamp", 51826, net.ParseIP("192.168.1.20"), Record{
		ID: "AA:BB:CC:DD:EE:01", Model: "Lamp1,1",
	}))
	mock.RegisterService(ServiceHAP, MockAccessoryService("Fan", 51827, net.ParseIP("192.168.1.21"), Record{
		ID: "AA:BB:CC:DD:EE:02", Model: "Fan1,1",
	}))
	r := newTestResolver(t, mock)

	svc, err := r.Lookup(context.Background(), ServiceTypeHAP, "Fan")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if svc.Record.ID != "AA:BB:CC:DD:EE:02" || svc.Port != 51827 {
		t.Errorf("Lookup() = %+v", svc)
	}

	if _, err := r.Lookup(context.Background(), ServiceTypeHAP, "Heater"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Lookup() error = %v, want %v", err, ErrServiceNotFound)
	}
	if _, err := r.Lookup(context.Background(), ServiceTypeHAP, ""); !errors.Is(err, ErrInvalidInstanceName) {
		t.Errorf("Lookup() error = %v, want %v", err, ErrInvalidInstanceName)
	}
}

// blockingResolver never delivers entries and closes the channel when the
// context ends, like zeroconf with nothing on the network.
type blockingResolver struct{}

func (blockingResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	go func() {
		<-ctx.Done()
		close(entries)
	}()
	return nil
}

func (b blockingResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return b.Browse(ctx, service, domain, entries)
}

func TestResolver_LookupTimeout(t *testing.T) {
	defer test.CheckRoutines(t)()

	r, err := NewResolver(ResolverConfig{
		MDNSResolver:  blockingResolver{},
		LookupTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	start := time.Now()
	_, err = r.Lookup(context.Background(), ServiceTypeHAP, "Lamp")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Lookup() error = %v, want %v", err, ErrTimeout)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Lookup() did not honour the timeout")
	}
}

func TestResolver_BrowseCancel(t *testing.T) {
	defer test.CheckRoutines(t)()

	r, err := NewResolver(ResolverConfig{MDNSResolver: blockingResolver{}})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	services, err := r.Browse(ctx, ServiceTypeHAP)
	if err != nil {
		t.Fatalf("Browse failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-services:
		if ok {
			t.Error("unexpected service")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Browse() channel not closed after cancel")
	}
}

func TestResolver_Find(t *testing.T) {
	defer test.CheckRoutines(t)()

	mock := NewMockMDNSResolver()
	for i, id := range []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02", "AA:BB:CC:DD:EE:03"} {
		mock.RegisterService(ServiceHAP, MockAccessoryService("Acc"+id[len(id)-1:], 51826+i, net.IPv4(192, 168, 1, byte(10+i)), Record{
			ID: id, Model: "Acc",
		}))
	}
	r := newTestResolver(t, mock)

	svc, err := r.Find(context.Background(), "aa:bb:cc:dd:ee:02")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if svc.Addr() != "192.168.1.11:51827" {
		t.Errorf("Find() addr = %q", svc.Addr())
	}

	if _, err := r.Find(context.Background(), "AA:BB:CC:DD:EE:09"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Find() error = %v, want %v", err, ErrServiceNotFound)
	}
	if _, err := r.Find(context.Background(), "not-an-id"); !errors.Is(err, ErrInvalidTXTRecord) {
		t.Errorf("Find() error = %v, want %v", err, ErrInvalidTXTRecord)
	}
}

func TestSortIPsByPreference(t *testing.T) {
	ips := []net.IP{
		net.ParseIP("fe80::1"),
		net.ParseIP("169.254.3.4"),
		net.ParseIP("fd12::1"),
		net.ParseIP("2001:db8::1"),
		net.ParseIP("192.168.1.2"),
	}
	want := []string{"192.168.1.2", "2001:db8::1", "fd12::1", "169.254.3.4", "fe80::1"}

	got := SortIPsByPreference(ips)
	for i, ip := range got {
		if ip.String() != want[i] {
			t.Errorf("SortIPsByPreference()[%d] = %s, want %s", i, ip, want[i])
		}
	}
	if ips[0].String() != "fe80::1" {
		t.Error("SortIPsByPreference() modified its input")
	}
}
