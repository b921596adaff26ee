package zone

import (
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/rrset"
	"github.com/miekg/dns"
	"math"
	"strings"
)

type setKey struct {
	name   string
	rrType uint16
}

// isMetaType reports types which can never be stored in a zone
func isMetaType(t uint16) bool {
	switch t {
	case dns.TypeANY, dns.TypeAXFR, dns.TypeIXFR, dns.TypeMAILA, dns.TypeMAILB, dns.TypeOPT, dns.TypeTSIG:
		return true
	}
	return false
}

// Update applies a dynamic update as described by RFC 2136. The prerequisites
// are checked first, then every update is prescanned and finally applied while
// holding the write lock. It returns the response code and whether the zone
// changed.
//
// When the zone changes the SOA serial is incremented, unless the update
// itself installed a new SOA. Updates are refused once the serial reaches
// its maximum value.
func (z *Zone) Update(prereqs, updates []dns.RR) (int, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if rcode := z.checkPrerequisites(prereqs); rcode != dns.RcodeSuccess {
		return rcode, false
	}
	if rcode := z.prescan(updates); rcode != dns.RcodeSuccess {
		return rcode, false
	}

	oldSerial := z.serial()
	if oldSerial == math.MaxUint32 {
		// the next serial would wrap to 0 and never replace the SOA
		logger.Logger.Warn("Refusing zone update, SOA serial is exhausted", "zone", z.origin, "serial", oldSerial)
		return dns.RcodeRefused, false
	}
	serial := oldSerial + 1
	changed := false
	for _, rr := range updates {
		if z.applyUpdate(rr, serial) {
			changed = true
		}
	}

	if changed && z.serial() == oldSerial {
		if soa := z.soa(); soa != nil {
			bumped := dns.Copy(soa).(*dns.SOA)
			bumped.Serial = serial
			z.insert(bumped, serial)
		}
	}
	if changed {
		logger.Logger.Info("Applied zone update", "zone", z.origin, "serial", z.serial())
	}
	return dns.RcodeSuccess, changed
}

// checkPrerequisites follows RFC 2136 section 3.2
func (z *Zone) checkPrerequisites(prereqs []dns.RR) int {
	temp := make(map[setKey][]dns.RR)
	for _, rr := range prereqs {
		hdr := rr.Header()
		if hdr.Ttl != 0 {
			return dns.RcodeFormatError
		}
		if z.checkName(hdr.Name) != nil {
			return dns.RcodeNotZone
		}

		switch hdr.Class {
		case dns.ClassANY:
			if hdr.Rdlength != 0 {
				return dns.RcodeFormatError
			}
			if hdr.Rrtype == dns.TypeANY {
				if !z.hasRecords(hdr.Name) {
					return dns.RcodeNameError
				}
			} else if s := z.set(hdr.Name, hdr.Rrtype); s == nil || s.IsEmpty() {
				return dns.RcodeNXRrset
			}
		case dns.ClassNONE:
			if hdr.Rdlength != 0 {
				return dns.RcodeFormatError
			}
			if hdr.Rrtype == dns.TypeANY {
				if z.hasRecords(hdr.Name) {
					return dns.RcodeYXDomain
				}
			} else if s := z.set(hdr.Name, hdr.Rrtype); s != nil && !s.IsEmpty() {
				return dns.RcodeYXRrset
			}
		case dns.ClassINET:
			key := setKey{strings.ToLower(hdr.Name), hdr.Rrtype}
			temp[key] = append(temp[key], rr)
		default:
			return dns.RcodeFormatError
		}
	}

	for key, want := range temp {
		if !z.setMatches(key, want) {
			return dns.RcodeNXRrset
		}
	}
	return dns.RcodeSuccess
}

// setMatches reports whether the stored set holds exactly the rdata in want
func (z *Zone) setMatches(key setKey, want []dns.RR) bool {
	s := z.set(key.name, key.rrType)
	if s == nil {
		return false
	}

	unique := make([]dns.RR, 0, len(want))
	for _, rr := range want {
		dup := false
		for _, u := range unique {
			if rrset.DataEqual(u, rr) {
				dup = true
				break
			}
		}
		if !dup {
			unique = append(unique, rr)
		}
	}
	if s.Len() != len(unique) {
		return false
	}
	for stored := range s.All() {
		found := false
		for _, rr := range unique {
			if rrset.DataEqual(stored, rr) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// prescan follows RFC 2136 section 3.4.1
func (z *Zone) prescan(updates []dns.RR) int {
	for _, rr := range updates {
		hdr := rr.Header()
		if z.checkName(hdr.Name) != nil {
			return dns.RcodeNotZone
		}
		switch hdr.Class {
		case dns.ClassINET:
			if isMetaType(hdr.Rrtype) {
				return dns.RcodeFormatError
			}
		case dns.ClassANY:
			if hdr.Ttl != 0 || hdr.Rdlength != 0 {
				return dns.RcodeFormatError
			}
			if hdr.Rrtype != dns.TypeANY && isMetaType(hdr.Rrtype) {
				return dns.RcodeFormatError
			}
		case dns.ClassNONE:
			if hdr.Ttl != 0 || isMetaType(hdr.Rrtype) {
				return dns.RcodeFormatError
			}
		default:
			return dns.RcodeFormatError
		}
	}
	return dns.RcodeSuccess
}

// applyUpdate follows RFC 2136 section 3.4.2 for a single record
func (z *Zone) applyUpdate(rr dns.RR, serial uint32) bool {
	hdr := rr.Header()
	apex := strings.EqualFold(hdr.Name, z.origin)

	switch hdr.Class {
	case dns.ClassINET:
		if hdr.Rrtype == dns.TypeSOA && !apex {
			return false
		}
		if z.cnameConflict(hdr.Name, hdr.Rrtype) {
			logger.Logger.Info("Ignoring update conflicting with CNAME", "name", hdr.Name, "type", dns.TypeToString[hdr.Rrtype])
			return false
		}
		return z.insert(rr, serial)

	case dns.ClassANY:
		if hdr.Rrtype != dns.TypeANY {
			if apex && (hdr.Rrtype == dns.TypeSOA || hdr.Rrtype == dns.TypeNS) {
				return false
			}
			return z.removeSet(hdr.Name, hdr.Rrtype)
		}
		changed := false
		for t := range z.names[strings.ToLower(hdr.Name)] {
			if apex && (t == dns.TypeSOA || t == dns.TypeNS) {
				continue
			}
			if z.removeSet(hdr.Name, t) {
				changed = true
			}
		}
		return changed

	case dns.ClassNONE:
		if hdr.Rrtype == dns.TypeSOA {
			return false
		}
		del := dns.Copy(rr)
		del.Header().Class = dns.ClassINET
		return z.remove(del, serial)
	}
	return false
}

// cnameConflict reports whether adding rrType at name would mix a CNAME with
// other data
func (z *Zone) cnameConflict(name string, rrType uint16) bool {
	switch rrType {
	case dns.TypeRRSIG, dns.TypeNSEC, dns.TypeNSEC3:
		return false
	}
	for t, s := range z.names[strings.ToLower(name)] {
		if s.IsEmpty() {
			continue
		}
		switch t {
		case dns.TypeRRSIG, dns.TypeNSEC, dns.TypeNSEC3:
			continue
		}
		if (rrType == dns.TypeCNAME) != (t == dns.TypeCNAME) {
			return true
		}
	}
	return false
}
