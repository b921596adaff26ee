package models

import (
	"encoding/json"
	"fmt"
	"github.com/gobuffalo/nulls"
	"github.com/miekg/dns"
)

// Record is the API representation of a single resource record, Ttl is
// optional and falls back to the default ttl of the zone.
type Record struct {
	Name  string       `json:"name"`
	Type  uint16       `json:"type"`
	Ttl   nulls.UInt32 `json:"ttl"`
	Value RecordValue  `json:"value"`
}

func (r Record) RR(defaultTtl uint32) dns.RR {
	ttl := defaultTtl
	if r.Ttl.Valid {
		ttl = r.Ttl.UInt32
	}
	return r.Value.ValueRR(dns.RR_Header{
		Name:   r.Name,
		Rrtype: r.Type,
		Class:  dns.ClassINET,
		Ttl:    ttl,
	})
}

func (r *Record) UnmarshalJSON(bytes []byte) error {
	var a struct {
		Name  string          `json:"name"`
		Type  uint16          `json:"type"`
		Ttl   nulls.UInt32    `json:"ttl"`
		Value json.RawMessage `json:"value"`
	}
	err := json.Unmarshal(bytes, &a)
	if err != nil {
		return err
	}
	value, ok := NewValue(a.Type)
	if !ok {
		return fmt.Errorf("unsupported record type %d", a.Type)
	}
	err = json.Unmarshal(a.Value, value)
	if err != nil {
		return err
	}
	*r = Record{Name: a.Name, Type: a.Type, Ttl: a.Ttl, Value: value}
	return nil
}

type RecordValue interface {
	ValueRR(header dns.RR_Header) dns.RR
	ValueType() uint16
	EncodeValue() string
}

// NewValue returns an empty value for the record type, ready to be decoded
// into.
func NewValue(rrType uint16) (RecordValue, bool) {
	switch rrType {
	case dns.TypeA:
		return &A{}, true
	case dns.TypeAAAA:
		return &AAAA{}, true
	case dns.TypeCNAME:
		return &CNAME{}, true
	case dns.TypeMX:
		return &MX{}, true
	case dns.TypeNS:
		return &NS{}, true
	case dns.TypeSOA:
		return &SOA{}, true
	case dns.TypeSRV:
		return &SRV{}, true
	case dns.TypeTXT:
		return &TXT{}, true
	}
	return nil, false
}

// FromRR converts a supported dns.RR into a Record.
func FromRR(rr dns.RR) (*Record, error) {
	hdr := rr.Header()
	var value RecordValue
	switch v := rr.(type) {
	case *dns.A:
		value = &A{IP: v.A}
	case *dns.AAAA:
		value = &AAAA{IP: v.AAAA}
	case *dns.CNAME:
		value = &CNAME{Target: v.Target}
	case *dns.MX:
		value = &MX{Preference: v.Preference, Mx: v.Mx}
	case *dns.NS:
		value = &NS{Ns: v.Ns}
	case *dns.SOA:
		value = &SOA{Ns: v.Ns, Mbox: v.Mbox, Serial: v.Serial, Refresh: v.Refresh, Retry: v.Retry, Expire: v.Expire, Minttl: v.Minttl}
	case *dns.SRV:
		value = &SRV{Priority: v.Priority, Weight: v.Weight, Port: v.Port, Target: v.Target}
	case *dns.TXT:
		value = &TXT{Value: joinTxtValue(v.Txt)}
	default:
		return nil, fmt.Errorf("unsupported record type %s", dns.TypeToString[hdr.Rrtype])
	}
	return &Record{
		Name:  hdr.Name,
		Type:  hdr.Rrtype,
		Ttl:   nulls.NewUInt32(hdr.Ttl),
		Value: value,
	}, nil
}
