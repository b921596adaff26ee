package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/miekg/dns"
)

var _ json.Unmarshaler = (*MX)(nil)

type MX struct {
	Preference uint16 `json:"preference"`
	Mx         string `json:"mx"`
}

func (mx *MX) UnmarshalJSON(bytes []byte) error {
	type inner MX
	var a inner
	err := json.Unmarshal(bytes, &a)
	if err != nil {
		return err
	}
	if _, ok := dns.IsDomainName(a.Mx); !ok || a.Mx == "" {
		return errors.New("invalid MX value")
	}
	*mx = MX(a)
	mx.Mx = dns.Fqdn(mx.Mx)
	return nil
}

func (mx MX) ValueRR(header dns.RR_Header) dns.RR {
	return &dns.MX{
		Hdr:        header,
		Preference: mx.Preference,
		Mx:         mx.Mx,
	}
}

func (mx MX) ValueType() uint16 {
	return dns.TypeMX
}

func (mx MX) EncodeValue() string {
	return fmt.Sprintf("%d\t%s", mx.Preference, mx.Mx)
}
