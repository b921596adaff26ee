package rrset

import (
	"github.com/miekg/dns"
	"strings"
)

// DataEqual reports whether a and b carry the same rdata. The owner name,
// class and ttl are not compared.
func DataEqual(a, b dns.RR) bool {
	if a == nil || b == nil {
		return a == b
	}
	ha, hb := a.Header(), b.Header()
	if ha.Rrtype != hb.Rrtype {
		return false
	}

	// dns.IsDuplicate ignores the ttl but still checks the owner and class, so
	// compare against a copy of b wearing the header of a
	c := dns.Copy(b)
	hc := c.Header()
	hc.Name = ha.Name
	hc.Class = ha.Class
	return dns.IsDuplicate(a, c)
}

// Equal reports whether a and b are the same record in every field.
func Equal(a, b dns.RR) bool {
	if a == nil || b == nil {
		return a == b
	}
	ha, hb := a.Header(), b.Header()
	return strings.EqualFold(ha.Name, hb.Name) &&
		ha.Rrtype == hb.Rrtype &&
		ha.Class == hb.Class &&
		ha.Ttl == hb.Ttl &&
		DataEqual(a, b)
}
