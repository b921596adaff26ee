package utils

import (
	"github.com/julienschmidt/httprouter"
	"github.com/miekg/dns"
)

// GetZoneName reads the zone route parameter as a canonical zone name.
func GetZoneName(params httprouter.Params) (string, bool) {
	name := params.ByName("zone")
	if name == "" {
		return "", false
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return "", false
	}
	return dns.CanonicalName(name), true
}
