package converters

import (
	"errors"
	"fmt"
	"github.com/1f349/bluebell/models"
	"github.com/miekg/dns"
	"net"
	"strconv"
	"strings"
)

type ErrInvalidRecord struct {
	Name   string
	Value  string
	AType  string
	Reason error
}

func (e ErrInvalidRecord) Error() string {
	return fmt.Sprintf("invalid record: name='%s', type='%s', value='%s' because %s", e.Name, e.AType, e.Value, e.Reason)
}

func (e ErrInvalidRecord) Unwrap() error {
	return e.Reason
}

var (
	ErrInvalidSegmentCount = errors.New("invalid segment count")
	ErrUnsupportedType     = errors.New("unsupported record type")
)

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	return uint16(n), err
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	return uint32(n), err
}

func domainSegment(s string) (string, error) {
	if _, ok := dns.IsDomainName(s); !ok || s == "" {
		return "", fmt.Errorf("invalid domain name %q", s)
	}
	return dns.Fqdn(s), nil
}

var Converters = map[uint16]func(data []string) (models.RecordValue, error){
	dns.TypeNS: func(data []string) (models.RecordValue, error) {
		if len(data) != 1 {
			return nil, ErrInvalidSegmentCount
		}
		ns, err := domainSegment(data[0])
		if err != nil {
			return nil, err
		}
		return &models.NS{Ns: ns}, nil
	},
	dns.TypeA: func(data []string) (models.RecordValue, error) {
		if len(data) != 1 {
			return nil, ErrInvalidSegmentCount
		}
		ip := net.ParseIP(data[0]).To4()
		if ip == nil {
			return nil, errors.New("invalid IPv4 address")
		}
		return &models.A{IP: ip}, nil
	},
	dns.TypeAAAA: func(data []string) (models.RecordValue, error) {
		if len(data) != 1 {
			return nil, ErrInvalidSegmentCount
		}
		ip := net.ParseIP(data[0])
		if ip == nil || ip.To4() != nil {
			return nil, errors.New("invalid IPv6 address")
		}
		return &models.AAAA{IP: ip}, nil
	},
	dns.TypeTXT: func(data []string) (models.RecordValue, error) {
		return &models.TXT{Value: strings.Join(data, " ")}, nil
	},
	dns.TypeCNAME: func(data []string) (models.RecordValue, error) {
		if len(data) != 1 {
			return nil, ErrInvalidSegmentCount
		}
		target, err := domainSegment(data[0])
		if err != nil {
			return nil, err
		}
		return &models.CNAME{Target: target}, nil
	},
	dns.TypeMX: func(data []string) (models.RecordValue, error) {
		if len(data) != 2 {
			return nil, ErrInvalidSegmentCount
		}
		preference, err := parseUint16(data[0])
		if err != nil {
			return nil, err
		}
		mx, err := domainSegment(data[1])
		if err != nil {
			return nil, err
		}
		return &models.MX{Preference: preference, Mx: mx}, nil
	},
	dns.TypeSRV: func(data []string) (models.RecordValue, error) {
		if len(data) != 4 {
			return nil, ErrInvalidSegmentCount
		}
		var nums [3]uint16
		for i := range nums {
			n, err := parseUint16(data[i])
			if err != nil {
				return nil, err
			}
			nums[i] = n
		}
		target, err := domainSegment(data[3])
		if err != nil {
			return nil, err
		}
		return &models.SRV{
			Priority: nums[0],
			Weight:   nums[1],
			Port:     nums[2],
			Target:   target,
		}, nil
	},
	dns.TypeSOA: func(data []string) (models.RecordValue, error) {
		if len(data) != 7 {
			return nil, ErrInvalidSegmentCount
		}
		ns, err := domainSegment(data[0])
		if err != nil {
			return nil, err
		}
		mbox, err := domainSegment(data[1])
		if err != nil {
			return nil, err
		}
		var nums [5]uint32
		for i := range nums {
			n, err := parseUint32(data[i+2])
			if err != nil {
				return nil, err
			}
			nums[i] = n
		}
		return &models.SOA{
			Ns:      ns,
			Mbox:    mbox,
			Serial:  nums[0],
			Refresh: nums[1],
			Retry:   nums[2],
			Expire:  nums[3],
			Minttl:  nums[4],
		}, nil
	},
}

// Convert parses a whitespace separated presentation value, such as
// "10 mail.example.com." for an MX record, into a record value.
func Convert(name, rrType, value string) (models.RecordValue, error) {
	t, ok := dns.StringToType[strings.ToUpper(rrType)]
	if !ok {
		return nil, ErrInvalidRecord{Name: name, Value: value, AType: rrType, Reason: ErrUnsupportedType}
	}
	conv, ok := Converters[t]
	if !ok {
		return nil, ErrInvalidRecord{Name: name, Value: value, AType: rrType, Reason: ErrUnsupportedType}
	}
	data := strings.Fields(value)
	if len(data) == 0 {
		return nil, ErrInvalidRecord{Name: name, Value: value, AType: rrType, Reason: ErrInvalidSegmentCount}
	}
	v, err := conv(data)
	if err != nil {
		return nil, ErrInvalidRecord{Name: name, Value: value, AType: rrType, Reason: err}
	}
	return v, nil
}
