package models

import (
	"encoding/json"
	"fmt"
	"github.com/miekg/dns"
)

var _ json.Marshaler = (*CNAME)(nil)
var _ json.Unmarshaler = (*CNAME)(nil)
var _ json.Marshaler = (*NS)(nil)
var _ json.Unmarshaler = (*NS)(nil)

// decodeTarget reads a JSON string holding a domain name and returns it fully
// qualified
func decodeTarget(bytes []byte, kind string) (string, error) {
	var target string
	err := json.Unmarshal(bytes, &target)
	if err != nil {
		return "", err
	}
	if _, ok := dns.IsDomainName(target); !ok || target == "" {
		return "", fmt.Errorf("invalid %s value", kind)
	}
	return dns.Fqdn(target), nil
}

type CNAME struct {
	Target string
}

func (cname CNAME) MarshalJSON() ([]byte, error) {
	return json.Marshal(dns.Fqdn(cname.Target))
}

func (cname *CNAME) UnmarshalJSON(bytes []byte) (err error) {
	cname.Target, err = decodeTarget(bytes, "CNAME")
	return
}

func (cname CNAME) ValueRR(header dns.RR_Header) dns.RR {
	return &dns.CNAME{Hdr: header, Target: cname.Target}
}

func (cname CNAME) ValueType() uint16 { return dns.TypeCNAME }

func (cname CNAME) EncodeValue() string { return cname.Target }

type NS struct {
	Ns string
}

func (ns NS) MarshalJSON() ([]byte, error) {
	return json.Marshal(dns.Fqdn(ns.Ns))
}

func (ns *NS) UnmarshalJSON(bytes []byte) (err error) {
	ns.Ns, err = decodeTarget(bytes, "NS")
	return
}

func (ns NS) ValueRR(header dns.RR_Header) dns.RR {
	return &dns.NS{Hdr: header, Ns: ns.Ns}
}

func (ns NS) ValueType() uint16 { return dns.TypeNS }

func (ns NS) EncodeValue() string { return ns.Ns }
