package probe

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// Record TTLs per RFC 6762 §10: host-specific records use 120 s, everything
// else 75 minutes.
const (
	hostRecordTTL  = 120
	otherRecordTTL = 4500
)

// Instance is a concrete Service: one advertised DNS-SD service instance on
// the local domain. Renames append an incrementing counter to the instance
// label ("Printer" → "Printer (2)") and the host label ("printer" →
// "printer-2"); the counter only ever grows.
type Instance struct {
	mu       sync.Mutex
	instance string // e.g. "My Printer"
	service  string // e.g. "_http._tcp"
	dom      string // e.g. "local"
	host     string // host label, e.g. "printer"
	port     uint16
	txt      [][]byte
	addrs    []netip.Addr
	sequence int // rename counter; 1 means the original name
}

// NewInstance describes a service to claim. txt entries are key=value byte
// strings; addrs are the host's addresses on the links being claimed.
func NewInstance(instance, service, dom, host string, port uint16, txt [][]byte, addrs []netip.Addr) (*Instance, error) {
	if instance == "" || service == "" || dom == "" || host == "" {
		return nil, fmt.Errorf("instance, service, domain, and host must all be set")
	}
	if !strings.HasPrefix(service, "_") {
		return nil, fmt.Errorf("service type must start with an underscore: %q", service)
	}
	return &Instance{
		instance: instance,
		service:  service,
		dom:      dom,
		host:     host,
		port:     port,
		txt:      txt,
		addrs:    addrs,
		sequence: 1,
	}, nil
}

// FQDN returns the service instance name, e.g. "My Printer._http._tcp.local.".
// The instance portion is a single label and may contain dots and spaces
// (RFC 6763 §4.3).
func (s *Instance) FQDN() domain.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fqdnLocked()
}

func (s *Instance) fqdnLocked() domain.Name {
	labels := []string{s.instanceLabelLocked()}
	labels = append(labels, strings.Split(s.service, ".")...)
	labels = append(labels, s.dom)
	n, err := domain.NameFromLabels(labels)
	if err != nil {
		panic(fmt.Sprintf("invalid service instance name: %v", err))
	}
	return n
}

// Hostname returns the claimed host name, e.g. "printer.local.".
func (s *Instance) Hostname() domain.Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostnameLocked()
}

func (s *Instance) hostnameLocked() domain.Name {
	n, err := domain.NameFromLabels([]string{s.hostLabelLocked(), s.dom})
	if err != nil {
		panic(fmt.Sprintf("invalid host name: %v", err))
	}
	return n
}

func (s *Instance) instanceLabelLocked() string {
	if s.sequence == 1 {
		return s.instance
	}
	return fmt.Sprintf("%s (%d)", s.instance, s.sequence)
}

func (s *Instance) hostLabelLocked() string {
	if s.sequence == 1 {
		return s.host
	}
	return fmt.Sprintf("%s-%d", s.host, s.sequence)
}

// IncrementName bumps the rename counter. The numeric suffix strictly
// increases across the life of the instance.
func (s *Instance) IncrementName() {
	s.mu.Lock()
	s.sequence++
	s.mu.Unlock()
}

// Sequence returns the current rename counter.
func (s *Instance) Sequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Records returns the full record set to publish: SRV and TXT at the
// instance name, the service enumeration PTRs, and address records at the
// host name. SRV, TXT, and addresses are unique (cache-flush); PTRs are
// shared.
func (s *Instance) Records() []domain.ResourceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	fqdn := s.fqdnLocked()
	host := s.hostnameLocked()
	serviceLabels := append(strings.Split(s.service, "."), s.dom)
	serviceName, err := domain.NameFromLabels(serviceLabels)
	if err != nil {
		panic(fmt.Sprintf("invalid service type name: %v", err))
	}
	enumName := domain.MustParseName("_services._dns-sd._udp." + s.dom)

	records := []domain.ResourceRecord{
		{
			Name:       fqdn,
			Class:      domain.RRClassIN,
			CacheFlush: true,
			TTL:        hostRecordTTL,
			Data:       domain.SRVData{Port: s.port, Target: host},
		},
		{
			Name:       fqdn,
			Class:      domain.RRClassIN,
			CacheFlush: true,
			TTL:        otherRecordTTL,
			Data:       domain.TXTData{Strings: s.txt},
		},
		{
			Name:  serviceName,
			Class: domain.RRClassIN,
			TTL:   otherRecordTTL,
			Data:  domain.PTRData{Target: fqdn},
		},
		{
			Name:  enumName,
			Class: domain.RRClassIN,
			TTL:   otherRecordTTL,
			Data:  domain.PTRData{Target: serviceName},
		},
	}
	for _, addr := range s.addrs {
		rr := domain.ResourceRecord{
			Name:       host,
			Class:      domain.RRClassIN,
			CacheFlush: true,
			TTL:        hostRecordTTL,
		}
		if addr.Is4() || addr.Is4In6() {
			rr.Data = domain.AData{Addr: addr.Unmap()}
		} else {
			rr.Data = domain.AAAAData{Addr: addr}
		}
		records = append(records, rr)
	}
	return records
}

var _ Service = &Instance{}
