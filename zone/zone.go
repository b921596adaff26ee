package zone

import (
	"cmp"
	"errors"
	"fmt"
	"github.com/1f349/bluebell/dnssec"
	"github.com/1f349/bluebell/rrset"
	"github.com/1f349/bluebell/utils"
	"github.com/miekg/dns"
	"slices"
	"strings"
	"sync"
)

var (
	ErrNotInZone  = errors.New("record is not in zone")
	ErrMissingSoa = errors.New("zone has no SOA record")
)

// Zone holds the record sets of a single zone. Every method is safe for
// concurrent use, mutations hold the write lock for their whole duration so
// readers never observe a half applied update.
type Zone struct {
	origin string
	mu     *sync.RWMutex
	// names maps lower-cased owner names to the sets at that name
	names map[string]map[uint16]*rrset.RecordSet
}

func New(origin string) *Zone {
	return &Zone{
		origin: dns.CanonicalName(origin),
		mu:     new(sync.RWMutex),
		names:  make(map[string]map[uint16]*rrset.RecordSet),
	}
}

func (z *Zone) Origin() string { return z.origin }

func (z *Zone) checkName(name string) error {
	if !utils.InZone(name, z.origin) {
		return fmt.Errorf("%w: %s not in %s", ErrNotInZone, name, z.origin)
	}
	return nil
}

// Insert adds rr to the zone and reports whether anything changed. RRSIG
// records are stored alongside the set they cover.
func (z *Zone) Insert(rr dns.RR) (bool, error) {
	if err := z.checkName(rr.Header().Name); err != nil {
		return false, err
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.insert(rr, z.serial()), nil
}

// Remove deletes every record with the same rdata as rr.
func (z *Zone) Remove(rr dns.RR) (bool, error) {
	if err := z.checkName(rr.Header().Name); err != nil {
		return false, err
	}
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.remove(rr, z.serial()), nil
}

func coveredType(rr dns.RR) uint16 {
	if sig, ok := rr.(*dns.RRSIG); ok {
		return sig.TypeCovered
	}
	return rr.Header().Rrtype
}

func (z *Zone) set(name string, rrType uint16) *rrset.RecordSet {
	return z.names[strings.ToLower(name)][rrType]
}

func (z *Zone) getOrCreate(name string, rrType uint16, serial uint32) *rrset.RecordSet {
	key := strings.ToLower(name)
	sets := z.names[key]
	if sets == nil {
		sets = make(map[uint16]*rrset.RecordSet)
		z.names[key] = sets
	}
	s := sets[rrType]
	if s == nil {
		s = rrset.New(name, rrType, serial)
		sets[rrType] = s
	}
	return s
}

// prune drops the set if it holds nothing, and the name once it has no sets
func (z *Zone) prune(name string, rrType uint16) {
	key := strings.ToLower(name)
	sets := z.names[key]
	if s := sets[rrType]; s != nil && s.IsEmpty() && len(s.RRSIGs()) == 0 {
		delete(sets, rrType)
	}
	if len(sets) == 0 {
		delete(z.names, key)
	}
}

func (z *Zone) insert(rr dns.RR, serial uint32) bool {
	hdr := rr.Header()
	if sig, ok := rr.(*dns.RRSIG); ok {
		s := z.getOrCreate(hdr.Name, sig.TypeCovered, serial)
		for _, existing := range s.RRSIGs() {
			if rrset.DataEqual(existing, rr) {
				return false
			}
		}
		s.InsertRRSIG(dns.Copy(rr))
		return true
	}

	s := z.getOrCreate(hdr.Name, hdr.Rrtype, serial)
	if s.IsEmpty() {
		s.SetDnsClass(hdr.Class)
	}
	changed := s.Insert(rr, serial)
	z.prune(hdr.Name, hdr.Rrtype)
	return changed
}

func (z *Zone) remove(rr dns.RR, serial uint32) bool {
	hdr := rr.Header()
	s := z.set(hdr.Name, coveredType(rr))
	if s == nil {
		return false
	}

	changed := false
	if _, ok := rr.(*dns.RRSIG); ok {
		sigs := s.RRSIGs()
		s.ClearRRSIGs()
		for _, existing := range sigs {
			if rrset.DataEqual(existing, rr) {
				changed = true
				continue
			}
			s.InsertRRSIG(existing)
		}
	} else {
		changed = s.Remove(rr, serial)
	}
	z.prune(hdr.Name, coveredType(rr))
	return changed
}

// removeSet deletes every record of the type at name, returning true if the
// set existed
func (z *Zone) removeSet(name string, rrType uint16) bool {
	sets := z.names[strings.ToLower(name)]
	s := sets[rrType]
	if s == nil {
		return false
	}
	delete(sets, rrType)
	z.prune(name, rrType)
	return !s.IsEmpty()
}

func (z *Zone) hasRecords(name string) bool {
	for _, s := range z.names[strings.ToLower(name)] {
		if !s.IsEmpty() {
			return true
		}
	}
	return false
}

func (z *Zone) soa() *dns.SOA {
	s := z.set(z.origin, dns.TypeSOA)
	if s == nil {
		return nil
	}
	for rr := range s.All() {
		if soa, ok := rr.(*dns.SOA); ok {
			return soa
		}
	}
	return nil
}

func (z *Zone) serial() uint32 {
	if soa := z.soa(); soa != nil {
		return soa.Serial
	}
	return 0
}

// Soa returns a copy of the apex SOA record, or nil if the zone has none.
func (z *Zone) Soa() *dns.SOA {
	z.mu.RLock()
	defer z.mu.RUnlock()
	soa := z.soa()
	if soa == nil {
		return nil
	}
	return dns.Copy(soa).(*dns.SOA)
}

func (z *Zone) Serial() uint32 {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.serial()
}

// Lookup returns copies of the records of type qtype at name. TypeANY returns
// every set at the name. exists reports whether the name holds any records at
// all, which separates NODATA from NXDOMAIN.
func (z *Zone) Lookup(name string, qtype uint16, dnssecOk bool, supported dnssec.SupportedAlgorithms) (rrs []dns.RR, exists bool) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	sets := z.names[strings.ToLower(name)]
	if qtype == dns.TypeANY {
		for _, t := range sortedTypes(sets) {
			rrs = append(rrs, sets[t].Records(dnssecOk, supported)...)
		}
	} else if s := sets[qtype]; s != nil {
		rrs = s.Records(dnssecOk, supported)
	}
	for i := range rrs {
		rrs[i] = dns.Copy(rrs[i])
	}
	return rrs, z.hasRecords(name)
}

func sortedTypes(sets map[uint16]*rrset.RecordSet) []uint16 {
	types := make([]uint16, 0, len(sets))
	for t := range sets {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (z *Zone) sortedSets() []*rrset.RecordSet {
	out := make([]*rrset.RecordSet, 0, len(z.names))
	for _, sets := range z.names {
		for _, s := range sets {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b *rrset.RecordSet) int {
		// the SOA always comes first
		aSoa, bSoa := a.RecordType() == dns.TypeSOA, b.RecordType() == dns.TypeSOA
		if aSoa != bSoa {
			if aSoa {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(dns.CountLabel(a.Name()), dns.CountLabel(b.Name())); c != 0 {
			return c
		}
		if c := strings.Compare(strings.ToLower(a.Name()), strings.ToLower(b.Name())); c != 0 {
			return c
		}
		return cmp.Compare(a.RecordType(), b.RecordType())
	})
	return out
}

// Records returns a copy of every record and signature in the zone with the
// SOA first, in the order used for zone transfers.
func (z *Zone) Records() []dns.RR {
	z.mu.RLock()
	defer z.mu.RUnlock()

	var out []dns.RR
	for _, s := range z.sortedSets() {
		for rr := range s.All() {
			out = append(out, dns.Copy(rr))
		}
		for _, sig := range s.RRSIGs() {
			out = append(out, dns.Copy(sig))
		}
	}
	return out
}

// ChangedSince returns copies of the records in every set modified after
// serial. Sets emptied by an update are not reported.
func (z *Zone) ChangedSince(serial uint32) []dns.RR {
	z.mu.RLock()
	defer z.mu.RUnlock()

	var out []dns.RR
	for _, s := range z.sortedSets() {
		if s.Serial() <= serial {
			continue
		}
		for rr := range s.All() {
			out = append(out, dns.Copy(rr))
		}
	}
	return out
}

// Len returns the number of record sets held by the zone.
func (z *Zone) Len() int {
	z.mu.RLock()
	defer z.mu.RUnlock()
	n := 0
	for _, sets := range z.names {
		n += len(sets)
	}
	return n
}

// HasName reports whether name exists in the zone, either owning records or
// as an empty non-terminal above names that do.
func (z *Zone) HasName(name string) bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	if z.hasRecords(name) {
		return true
	}
	name = strings.ToLower(dns.Fqdn(name))
	for owner := range z.names {
		if owner != name && dns.IsSubDomain(name, owner) && z.hasRecords(owner) {
			return true
		}
	}
	return false
}
