package discovery

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// TXT record keys announced by _hap._tcp services.
const (
	TXTKeyConfigNumber    = "c#"
	TXTKeyFeatureFlags    = "ff"
	TXTKeyDeviceID        = "id"
	TXTKeyModel           = "md"
	TXTKeyProtocolVersion = "pv"
	TXTKeyStateNumber     = "s#"
	TXTKeyStatusFlags     = "sf"
	TXTKeyCategory        = "ci"
	TXTKeySetupHash       = "sh"
)

// TXT record keys announced by _airplay._tcp services.
const (
	TXTKeyAirPlayDeviceID  = "deviceid"
	TXTKeyAirPlayFeatures  = "features"
	TXTKeyAirPlayFlags     = "flags"
	TXTKeyAirPlayModel     = "model"
	TXTKeyAirPlayPublicKey = "pk"
)

// DefaultProtocolVersion is assumed when an accessory omits pv.
const DefaultProtocolVersion = "1.0"

// StatusFlags is the sf bitmap of a HAP accessory.
type StatusFlags uint32

// Status flag bits.
const (
	StatusNotPaired     StatusFlags = 0x01
	StatusNotConfigured StatusFlags = 0x02
	StatusProblem       StatusFlags = 0x04
)

// FeatureFlags is the ff bitmap of a HAP accessory, or the 64-bit features
// word of an AirPlay receiver.
type FeatureFlags uint64

// HAP feature flag bits.
const (
	FeatureHardwareAuth FeatureFlags = 0x01
	FeatureSoftwareAuth FeatureFlags = 0x02
)

// Category is the accessory category identifier (ci).
type Category uint16

// A subset of accessory categories.
const (
	CategoryOther       Category = 1
	CategoryBridge      Category = 2
	CategoryFan         Category = 3
	CategoryGarageDoor  Category = 4
	CategoryLightbulb   Category = 5
	CategoryDoorLock    Category = 6
	CategoryOutlet      Category = 7
	CategorySwitch      Category = 8
	CategoryThermostat  Category = 9
	CategorySensor      Category = 10
	CategoryProgSwitch  Category = 15
	CategoryRangeExtend Category = 16
	CategoryIPCamera    Category = 17
	CategoryAppleTV     Category = 24
	CategoryHomePod     Category = 25
	CategorySpeaker     Category = 26
	CategoryAirPort     Category = 27
	CategoryTelevision  Category = 31
)

// Record is the parsed TXT record of an accessory.
type Record struct {
	// ID is the accessory pairing identifier, "AA:BB:CC:DD:EE:FF".
	ID string

	// Model is the model name.
	Model string

	// ConfigNumber changes whenever the accessory database changes.
	ConfigNumber uint32

	// StateNumber is the current state number.
	StateNumber uint32

	// Category is the accessory category.
	Category Category

	// ProtocolVersion is the HAP protocol version.
	ProtocolVersion string

	// Features holds the feature flags.
	Features FeatureFlags

	// Status holds the status flags. Bit meanings are only defined for
	// _hap._tcp records.
	Status StatusFlags

	// SetupHash is the optional sh value.
	SetupHash string

	// PublicKey is the long-term public key announced by AirPlay receivers.
	PublicKey []byte
}

// Paired reports whether a HAP accessory says it already has a controller.
func (r *Record) Paired() bool {
	return r.Status&StatusNotPaired == 0
}

// Validate checks the fields required to announce the record.
func (r *Record) Validate() error {
	if _, err := NormalizeDeviceID(r.ID); err != nil {
		return err
	}
	if r.Model == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyModel)
	}
	return nil
}

// Encode renders the record as _hap._tcp TXT strings.
func (r *Record) Encode() []string {
	pv := r.ProtocolVersion
	if pv == "" {
		pv = DefaultProtocolVersion
	}
	stateNumber := r.StateNumber
	if stateNumber == 0 {
		stateNumber = 1
	}
	configNumber := r.ConfigNumber
	if configNumber == 0 {
		configNumber = 1
	}
	category := r.Category
	if category == 0 {
		category = CategoryOther
	}

	records := []string{
		TXTKeyConfigNumber + "=" + strconv.FormatUint(uint64(configNumber), 10),
		TXTKeyFeatureFlags + "=" + strconv.FormatUint(uint64(r.Features), 10),
		TXTKeyDeviceID + "=" + strings.ToUpper(r.ID),
		TXTKeyModel + "=" + r.Model,
		TXTKeyProtocolVersion + "=" + pv,
		TXTKeyStateNumber + "=" + strconv.FormatUint(uint64(stateNumber), 10),
		TXTKeyStatusFlags + "=" + strconv.FormatUint(uint64(r.Status), 10),
		TXTKeyCategory + "=" + strconv.FormatUint(uint64(category), 10),
	}
	if r.SetupHash != "" {
		records = append(records, TXTKeySetupHash+"="+r.SetupHash)
	}
	return records
}

// ParseTXT parses raw TXT record strings into a map. Keys are matched
// case-insensitively and stored lower case.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string)
	for _, record := range records {
		if idx := strings.IndexByte(record, '='); idx > 0 {
			key := strings.ToLower(record[:idx])
			result[key] = record[idx+1:]
		}
	}
	return result
}

// ParseRecord parses _hap._tcp TXT strings. The id and md keys are
// required; the rest fall back to their defaults when absent.
func ParseRecord(records []string) (*Record, error) {
	m := ParseTXT(records)

	id, err := NormalizeDeviceID(m[TXTKeyDeviceID])
	if err != nil {
		return nil, err
	}
	r := &Record{
		ID:              id,
		Model:           m[TXTKeyModel],
		ProtocolVersion: DefaultProtocolVersion,
		StateNumber:     1,
		SetupHash:       m[TXTKeySetupHash],
	}
	if r.Model == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidTXTRecord, TXTKeyModel)
	}
	if pv, ok := m[TXTKeyProtocolVersion]; ok && pv != "" {
		r.ProtocolVersion = pv
	}

	if v, ok := m[TXTKeyConfigNumber]; ok {
		n, err := parseUint(TXTKeyConfigNumber, v, 32)
		if err != nil {
			return nil, err
		}
		r.ConfigNumber = uint32(n)
	}
	if v, ok := m[TXTKeyStateNumber]; ok {
		n, err := parseUint(TXTKeyStateNumber, v, 32)
		if err != nil {
			return nil, err
		}
		r.StateNumber = uint32(n)
	}
	if v, ok := m[TXTKeyCategory]; ok {
		n, err := parseUint(TXTKeyCategory, v, 16)
		if err != nil {
			return nil, err
		}
		r.Category = Category(n)
	}
	if v, ok := m[TXTKeyFeatureFlags]; ok {
		n, err := parseUint(TXTKeyFeatureFlags, v, 8)
		if err != nil {
			return nil, err
		}
		r.Features = FeatureFlags(n)
	}
	if v, ok := m[TXTKeyStatusFlags]; ok {
		n, err := parseUint(TXTKeyStatusFlags, v, 8)
		if err != nil {
			return nil, err
		}
		r.Status = StatusFlags(n)
	}

	return r, nil
}

// ParseAirPlayRecord parses _airplay._tcp TXT strings. Features are
// announced as one or two comma separated hex words, low word first.
func ParseAirPlayRecord(records []string) (*Record, error) {
	m := ParseTXT(records)

	id, err := NormalizeDeviceID(m[TXTKeyAirPlayDeviceID])
	if err != nil {
		return nil, err
	}
	r := &Record{
		ID:              id,
		Model:           m[TXTKeyAirPlayModel],
		ProtocolVersion: DefaultProtocolVersion,
		StateNumber:     1,
	}

	if v, ok := m[TXTKeyAirPlayFeatures]; ok {
		features, err := parseAirPlayFeatures(v)
		if err != nil {
			return nil, err
		}
		r.Features = features
	}
	if v, ok := m[TXTKeyAirPlayFlags]; ok {
		n, err := parseUint(TXTKeyAirPlayFlags, v, 32)
		if err != nil {
			return nil, err
		}
		r.Status = StatusFlags(n)
	}
	if v, ok := m[TXTKeyAirPlayPublicKey]; ok {
		pk, err := hex.DecodeString(v)
		if err != nil || len(pk) != 32 {
			return nil, fmt.Errorf("%w: %s must be 32 bytes of hex", ErrInvalidTXTRecord, TXTKeyAirPlayPublicKey)
		}
		r.PublicKey = pk
	}

	return r, nil
}

// NormalizeDeviceID validates a six-octet colon separated identifier and
// returns it upper case.
func NormalizeDeviceID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: missing device id", ErrInvalidTXTRecord)
	}
	mac, err := net.ParseMAC(id)
	if err != nil || len(mac) != 6 || strings.Count(id, ":") != 5 {
		return "", fmt.Errorf("%w: device id %q", ErrInvalidTXTRecord, id)
	}
	return strings.ToUpper(id), nil
}

func parseAirPlayFeatures(s string) (FeatureFlags, error) {
	words := strings.Split(s, ",")
	if len(words) > 2 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidTXTRecord, TXTKeyAirPlayFeatures, s)
	}
	var features FeatureFlags
	for i, w := range words {
		n, err := parseUint(TXTKeyAirPlayFeatures, w, 32)
		if err != nil {
			return 0, err
		}
		features |= FeatureFlags(n) << (32 * i)
	}
	return features, nil
}

// parseUint accepts decimal or 0x-prefixed hex.
func parseUint(key, s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	n, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidTXTRecord, key, err)
	}
	return n, nil
}
