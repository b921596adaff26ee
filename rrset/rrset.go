package rrset

import (
	"fmt"
	"github.com/1f349/bluebell/dnssec"
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/models"
	"github.com/miekg/dns"
	"iter"
	"strings"
)

// RecordSet holds every record sharing one owner name and type, along with
// the signatures covering them.
//
// A RecordSet performs no locking. The zone owning it must serialise
// mutations and keep readers away while a mutation is in progress.
type RecordSet struct {
	name       string
	recordType uint16
	dnsClass   uint16
	ttl        uint32
	records    []dns.RR
	rrsigs     []dns.RR

	// serial is the zone serial at which the set was last modified, it is
	// used for incremental transfers and re-signing after updates
	serial uint32
}

// New creates an empty RecordSet in class IN. serial should be the current
// serial of the zone SOA record.
func New(name string, recordType uint16, serial uint32) *RecordSet {
	return &RecordSet{
		name:       name,
		recordType: recordType,
		dnsClass:   dns.ClassINET,
		records:    make([]dns.RR, 0),
		serial:     serial,
	}
}

// WithTtl creates an empty RecordSet in class IN with the provided ttl.
func WithTtl(name string, recordType uint16, ttl uint32) *RecordSet {
	return &RecordSet{
		name:       name,
		recordType: recordType,
		dnsClass:   dns.ClassINET,
		ttl:        ttl,
		records:    make([]dns.RR, 0),
	}
}

// FromRecord creates a RecordSet holding only rr.
func FromRecord(rr dns.RR) *RecordSet {
	hdr := rr.Header()
	return &RecordSet{
		name:       hdr.Name,
		recordType: hdr.Rrtype,
		dnsClass:   hdr.Class,
		ttl:        hdr.Ttl,
		records:    []dns.RR{dns.Copy(rr)},
	}
}

func (r *RecordSet) Name() string       { return r.name }
func (r *RecordSet) RecordType() uint16 { return r.recordType }
func (r *RecordSet) DnsClass() uint16   { return r.dnsClass }

// Ttl is the ttl of the most recently inserted record.
func (r *RecordSet) Ttl() uint32 { return r.ttl }

// Serial returns the zone serial at which the set was last modified.
func (r *RecordSet) Serial() uint32 { return r.serial }

// SetDnsClass changes the class of the set and of every stored record.
func (r *RecordSet) SetDnsClass(class uint16) {
	r.dnsClass = class
	for _, rr := range r.records {
		rr.Header().Class = class
	}
}

// SetTtl changes the ttl of the set and of every stored record.
func (r *RecordSet) SetTtl(ttl uint32) {
	r.ttl = ttl
	for _, rr := range r.records {
		rr.Header().Ttl = ttl
	}
}

// Records returns the stored records. When includeSigs is set the signature
// with the best algorithm found in supported is appended, if there is one.
func (r *RecordSet) Records(includeSigs bool, supported dnssec.SupportedAlgorithms) []dns.RR {
	out := make([]dns.RR, 0, len(r.records)+1)
	out = append(out, r.records...)
	if includeSigs {
		if sig := dnssec.SelectSignature(r.rrsigs, supported); sig != nil {
			out = append(out, sig)
		}
	}
	return out
}

// All iterates over the stored records, not including signatures. Each
// traversal observes the current contents of the set.
func (r *RecordSet) All() iter.Seq[dns.RR] {
	return func(yield func(dns.RR) bool) {
		for _, rr := range r.records {
			if !yield(rr) {
				return
			}
		}
	}
}

func (r *RecordSet) Len() int { return len(r.records) }

// IsEmpty is true when there are no records, signatures are not counted.
func (r *RecordSet) IsEmpty() bool { return len(r.records) == 0 }

func (r *RecordSet) RRSIGs() []dns.RR { return r.rrsigs }

// InsertRRSIG stores a signature without any validation.
func (r *RecordSet) InsertRRSIG(rr dns.RR) {
	r.rrsigs = append(r.rrsigs, rr)
}

func (r *RecordSet) ClearRRSIGs() {
	r.rrsigs = nil
}

// updated marks the set as modified at serial, existing signatures no longer
// cover the data
func (r *RecordSet) updated(serial uint32) {
	r.serial = serial
	r.ClearRRSIGs()
}

// NewRecord builds a record from the name, type, class and ttl of the set
// and the provided value, inserts it and returns the stored record with that
// value.
func (r *RecordSet) NewRecord(value models.RecordValue) dns.RR {
	if value.ValueType() != r.recordType {
		panic(fmt.Sprintf("rrset: %s value in %s set", dns.TypeToString[value.ValueType()], dns.TypeToString[r.recordType]))
	}

	rr := value.ValueRR(dns.RR_Header{
		Name:   r.name,
		Rrtype: r.recordType,
		Class:  r.dnsClass,
		Ttl:    r.ttl,
	})
	r.Insert(rr, 0)

	for _, stored := range r.records {
		if DataEqual(stored, rr) {
			return stored
		}
	}
	panic("rrset: inserted record is missing from " + r.name)
}

func (r *RecordSet) checkName(rr dns.RR) {
	if !strings.EqualFold(rr.Header().Name, r.name) {
		panic(fmt.Sprintf("rrset: record %s does not belong to %s", rr.Header().Name, r.name))
	}
}

// Insert adds rr to the set and reports whether the set changed. The ttl of
// the set becomes the ttl of rr.
//
// The replacement rules of RFC 2136 section 1.1.5 apply: a set only ever
// holds a single SOA or CNAME record, an SOA is only replaced by one with a
// greater serial and a record with the same rdata as a stored one replaces
// it.
func (r *RecordSet) Insert(rr dns.RR, serial uint32) bool {
	r.checkName(rr)
	if rr.Header().Rrtype != r.recordType {
		panic(fmt.Sprintf("rrset: %s record in %s set", dns.TypeToString[rr.Header().Rrtype], dns.TypeToString[r.recordType]))
	}

	switch r.recordType {
	case dns.TypeSOA:
		if len(r.records) > 1 {
			panic("rrset: multiple SOA records stored for " + r.name)
		}
		if len(r.records) == 1 {
			existing, ok := r.records[0].(*dns.SOA)
			if !ok {
				panic(fmt.Sprintf("rrset: stored SOA for %s has %T rdata", r.name, r.records[0]))
			}
			soa, ok := rr.(*dns.SOA)
			if !ok {
				logger.Logger.Info("Ignoring SOA update with wrong rdata", "name", r.name, "rdata", fmt.Sprintf("%T", rr))
				return false
			}
			if soa.Serial <= existing.Serial {
				logger.Logger.Info("Ignoring SOA update with stale serial", "name", r.name, "serial", soa.Serial, "existing", existing.Serial)
				return false
			}
		}
		r.records = r.records[:0]
	case dns.TypeCNAME:
		if len(r.records) > 1 {
			panic("rrset: multiple CNAME records stored for " + r.name)
		}
		r.records = r.records[:0]
	}

	for i, stored := range r.records {
		if !DataEqual(stored, rr) {
			continue
		}
		if Equal(stored, rr) {
			return false
		}
		r.records[i] = dns.Copy(rr)
		r.ttl = rr.Header().Ttl
		r.updated(serial)
		return true
	}

	r.records = append(r.records, dns.Copy(rr))
	r.ttl = rr.Header().Ttl
	r.updated(serial)
	return true
}

// Remove deletes every stored record with the same rdata as rr and reports
// whether anything was removed. SOA records are never removed and the last NS
// record is kept.
func (r *RecordSet) Remove(rr dns.RR, serial uint32) bool {
	r.checkName(rr)
	rrType := rr.Header().Rrtype
	if rrType != r.recordType && rrType != dns.TypeANY {
		panic(fmt.Sprintf("rrset: cannot remove %s record from %s set", dns.TypeToString[rrType], dns.TypeToString[r.recordType]))
	}

	switch rrType {
	case dns.TypeNS:
		if len(r.records) <= 1 {
			logger.Logger.Info("Ignoring delete of last NS record", "name", r.name)
			return false
		}
	case dns.TypeSOA:
		logger.Logger.Info("Ignoring delete of SOA record", "name", r.name)
		return false
	}

	// an ANY record matches by rdata alone
	match := rr
	if rrType == dns.TypeANY {
		match = dns.Copy(rr)
		match.Header().Rrtype = r.recordType
	}

	removed := false
	kept := r.records[:0]
	for _, stored := range r.records {
		if DataEqual(stored, match) {
			removed = true
			r.updated(serial)
			continue
		}
		kept = append(kept, stored)
	}
	clear(r.records[len(kept):])
	r.records = kept
	return removed
}
