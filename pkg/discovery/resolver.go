package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// MDNSResolver is the interface for mDNS service resolution.
// Implementations return immediately and close entries once ctx is done or
// no more entries will arrive, as zeroconf.Resolver does.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// newZeroconfResolver returns the production resolver. *zeroconf.Resolver
// already satisfies MDNSResolver.
func newZeroconfResolver() (MDNSResolver, error) {
	return zeroconf.NewResolver(nil)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers HAP accessories via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// Browse discovers services of the given type. The returned channel is
// closed when the context is cancelled or the browse timeout expires.
// Instances whose TXT record cannot be parsed are skipped.
func (r *Resolver) Browse(ctx context.Context, serviceType ServiceType) (<-chan Service, error) {
	service := serviceType.ServiceString()
	if service == "" {
		return nil, ErrInvalidServiceType
	}

	// Apply browse timeout if context doesn't have a deadline
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := r.resolver.Browse(ctx, service, DefaultDomain, entries); err != nil {
		cancel()
		return nil, fmt.Errorf("discovery: browse %s: %w", service, err)
	}

	results := make(chan Service)
	go func() {
		defer close(results)
		defer cancel()

		for entry := range entries {
			svc, err := r.convert(entry, serviceType)
			if err != nil {
				if r.log != nil {
					r.log.Debugf("Skipping %q: %v", entry.Instance, err)
				}
				continue
			}
			select {
			case results <- *svc:
			case <-ctx.Done():
				// Let the resolver finish and close entries.
				for range entries {
				}
				return
			}
		}
	}()

	return results, nil
}

// Lookup resolves a specific service instance by name.
func (r *Resolver) Lookup(ctx context.Context, serviceType ServiceType, instance string) (*Service, error) {
	service := serviceType.ServiceString()
	if service == "" {
		return nil, ErrInvalidServiceType
	}
	if instance == "" {
		return nil, ErrInvalidInstanceName
	}

	// Apply lookup timeout if context doesn't have a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
		defer cancel()
	}
	lookupCtx, stop := context.WithCancel(ctx)
	defer stop()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := r.resolver.Lookup(lookupCtx, instance, service, DefaultDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: lookup %s: %w", instance, err)
	}
	defer func() {
		stop()
		for range entries {
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctxError(ctx)
				}
				return nil, ErrServiceNotFound
			}
			svc, err := r.convert(entry, serviceType)
			if err != nil {
				return nil, err
			}
			return svc, nil
		case <-ctx.Done():
			return nil, ctxError(ctx)
		}
	}
}

// Find browses _hap._tcp for the accessory with the given pairing
// identifier and returns the first match.
func (r *Resolver) Find(ctx context.Context, accessoryID string) (*Service, error) {
	id, err := NormalizeDeviceID(accessoryID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := r.Browse(ctx, ServiceTypeHAP)
	if err != nil {
		return nil, err
	}
	for svc := range services {
		if svc.Record.ID == id {
			if r.log != nil {
				r.log.Debugf("Found %s at %s", id, svc.Addr())
			}
			return &svc, nil
		}
	}
	return nil, ErrServiceNotFound
}

// convert turns a zeroconf entry into a Service, parsing the TXT record
// according to the service type.
func (r *Resolver) convert(entry *zeroconf.ServiceEntry, serviceType ServiceType) (*Service, error) {
	if entry == nil {
		return nil, ErrServiceNotFound
	}

	var (
		record *Record
		err    error
	)
	switch serviceType {
	case ServiceTypeAirPlay:
		record, err = ParseAirPlayRecord(entry.Text)
	default:
		record, err = ParseRecord(entry.Text)
	}
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return &Service{
		Type:     serviceType,
		Instance: entry.Instance,
		HostName: entry.HostName,
		Port:     entry.Port,
		IPs:      SortIPsByPreference(ips),
		Text:     ParseTXT(entry.Text),
		Record:   *record,
	}, nil
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
