// Package discovery finds HAP accessories on the local network via DNS-SD
// (mDNS) and publishes service records for simulated accessories.
//
// Accessories announce themselves as _hap._tcp; AirPlay receivers that
// accept HAP pairing announce _airplay._tcp with a different TXT layout.
// Both are parsed into a Record so the controller can learn the accessory
// identifier, whether it is already paired and where to connect.
package discovery

import (
	"net"
	"strconv"
)

// ServiceType identifies the type of DNS-SD service.
type ServiceType int

// ServiceType constants.
const (
	// ServiceTypeUnknown represents an unknown or invalid service type.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypeHAP is a HomeKit accessory (_hap._tcp).
	ServiceTypeHAP

	// ServiceTypeAirPlay is an AirPlay receiver (_airplay._tcp).
	ServiceTypeAirPlay
)

// DNS-SD service type strings.
const (
	ServiceHAP     = "_hap._tcp"
	ServiceAirPlay = "_airplay._tcp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."
)

// String returns a human-readable string for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypeHAP:
		return "HAP"
	case ServiceTypeAirPlay:
		return "AirPlay"
	default:
		return "Unknown"
	}
}

// ServiceString returns the DNS-SD service string, or "" for unknown types.
func (s ServiceType) ServiceString() string {
	switch s {
	case ServiceTypeHAP:
		return ServiceHAP
	case ServiceTypeAirPlay:
		return ServiceAirPlay
	default:
		return ""
	}
}

// IsValid reports whether s is a known service type.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypeHAP || s == ServiceTypeAirPlay
}

// Service is a resolved DNS-SD service instance.
type Service struct {
	// Type is the service type the instance was found under.
	Type ServiceType

	// Instance is the DNS-SD instance name, usually the accessory name.
	Instance string

	// HostName is the target host name.
	HostName string

	// Port is the service port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	// Text contains the raw TXT record key-value pairs.
	Text map[string]string

	// Record is the parsed TXT record.
	Record Record
}

// PreferredIP returns the most preferred IP address, or nil if none.
func (s *Service) PreferredIP() net.IP {
	if len(s.IPs) > 0 {
		return s.IPs[0]
	}
	return nil
}

// Addr returns host:port for the preferred address. If no address was
// resolved the host name is used instead.
func (s *Service) Addr() string {
	host := s.HostName
	if ip := s.PreferredIP(); ip != nil {
		host = ip.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}
