package models

import (
	"encoding/json"
	"errors"
	"github.com/miekg/dns"
	"net"
	"net/netip"
)

var _ json.Marshaler = (*A)(nil)
var _ json.Unmarshaler = (*A)(nil)
var _ json.Marshaler = (*AAAA)(nil)
var _ json.Unmarshaler = (*AAAA)(nil)

var (
	ErrAddrZone = errors.New("zones are not supported")
	ErrNotIPv4  = errors.New("not an IPv4 address")
	ErrNotIPv6  = errors.New("not an IPv6 address")
)

// parseAddr decodes a JSON string holding an address of the wanted family
func parseAddr(bytes []byte, want4 bool) (net.IP, error) {
	var ip netip.Addr
	err := json.Unmarshal(bytes, &ip)
	if err != nil {
		return nil, err
	}
	if ip.Zone() != "" {
		return nil, ErrAddrZone
	}
	if want4 && !ip.Is4() {
		return nil, ErrNotIPv4
	}
	if !want4 && !ip.Is6() {
		return nil, ErrNotIPv6
	}
	return ip.AsSlice(), nil
}

type A struct {
	net.IP
}

func (a A) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.IP)
}

func (a *A) UnmarshalJSON(bytes []byte) (err error) {
	a.IP, err = parseAddr(bytes, true)
	return
}

func (a A) ValueRR(header dns.RR_Header) dns.RR {
	return &dns.A{Hdr: header, A: a.IP}
}

func (a A) ValueType() uint16 { return dns.TypeA }

func (a A) EncodeValue() string { return a.IP.String() }

type AAAA struct {
	net.IP
}

func (aaaa AAAA) MarshalJSON() ([]byte, error) {
	return json.Marshal(aaaa.IP)
}

func (aaaa *AAAA) UnmarshalJSON(bytes []byte) (err error) {
	aaaa.IP, err = parseAddr(bytes, false)
	return
}

func (aaaa AAAA) ValueRR(header dns.RR_Header) dns.RR {
	return &dns.AAAA{Hdr: header, AAAA: aaaa.IP}
}

func (aaaa AAAA) ValueType() uint16 { return dns.TypeAAAA }

func (aaaa AAAA) EncodeValue() string { return aaaa.IP.String() }
