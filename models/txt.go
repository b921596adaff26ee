package models

import (
	"encoding/json"
	"github.com/miekg/dns"
	"strings"
)

var _ json.Marshaler = (*TXT)(nil)
var _ json.Unmarshaler = (*TXT)(nil)

// maxTxtSegment is the longest character-string allowed in TXT rdata
const maxTxtSegment = 255

type TXT struct {
	Value string
}

func (txt TXT) MarshalJSON() ([]byte, error) {
	return json.Marshal(txt.Value)
}

func (txt *TXT) UnmarshalJSON(bytes []byte) error {
	return json.Unmarshal(bytes, &txt.Value)
}

func (txt TXT) ValueRR(header dns.RR_Header) dns.RR {
	return &dns.TXT{
		Hdr: header,
		Txt: splitTxtValue(txt.Value),
	}
}

func (txt TXT) ValueType() uint16 {
	return dns.TypeTXT
}

func (txt TXT) EncodeValue() string {
	return txt.Value
}

// splitTxtValue cuts a value into character-strings of at most 255 bytes, an
// empty value still produces a single empty string
func splitTxtValue(value string) []string {
	out := make([]string, 0, len(value)/maxTxtSegment+1)
	for len(value) > maxTxtSegment {
		out = append(out, value[:maxTxtSegment])
		value = value[maxTxtSegment:]
	}
	return append(out, value)
}

func joinTxtValue(segments []string) string {
	return strings.Join(segments, "")
}
