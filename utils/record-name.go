package utils

import (
	"github.com/miekg/dns"
	"strings"
)

// ResolveRecordName expands shortened record names relative to the provided zone
//
// The name "" is equivalent to "@"
//
// - ("@", "example.com.") -> "example.com."
// - ("ns1", "example.com.") -> "ns1.example.com."
// - ("ns2.example.com.", "example.org.") -> "ns2.example.com."
// - ("ns3", "") -> "ns3."
func ResolveRecordName(name, zone string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}

	// resolve @ and relative names
	switch name {
	case "@", "":
		name = zone
	default:
		name = name + "." + zone
	}
	return name
}

// SimplifyRecordName shortens the record name relative to the provided zone,
// labels are compared without regard to case
//
// - ("example.com.", "example.com.") -> "@"
// - ("ns1.example.com.", "example.com.") -> "ns1"
// - ("ns1.Example.COM.", "example.com.") -> "ns1"
// - ("ns2.example.com.", "example.org.") -> "ns2.example.com."
func SimplifyRecordName(name, zone string) string {
	if strings.EqualFold(name, zone) {
		return "@"
	}
	suffix := "." + zone
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// InZone reports whether name is the zone apex or below it.
func InZone(name, zone string) bool {
	return dns.IsSubDomain(dns.Fqdn(zone), dns.Fqdn(name))
}
