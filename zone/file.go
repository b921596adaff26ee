package zone

import (
	"bufio"
	"fmt"
	"github.com/1f349/bluebell/conf"
	"github.com/1f349/bluebell/converters"
	"github.com/1f349/bluebell/models"
	"github.com/1f349/bluebell/utils"
	"github.com/miekg/dns"
	"github.com/spf13/afero"
	"io"
	"strings"
	"time"
)

// Load reads a master file from fs.
func Load(fs afero.Fs, origin, path string) (*Zone, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, origin, path)
}

// Parse reads a zone in master file format. The zone must contain an SOA
// record at origin and every record must be inside the zone.
func Parse(r io.Reader, origin, file string) (*Zone, error) {
	z := New(origin)
	zp := dns.NewZoneParser(r, z.origin, file)

	// inserting data clears the signatures of its set, so signatures listed
	// before the records they cover are held back until the data is loaded
	var sigs []dns.RR
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		if _, isSig := rr.(*dns.RRSIG); isSig {
			sigs = append(sigs, rr)
			continue
		}
		if _, err := z.Insert(rr); err != nil {
			return nil, err
		}
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse zone %s: %w", z.origin, err)
	}
	for _, rr := range sigs {
		if _, err := z.Insert(rr); err != nil {
			return nil, err
		}
	}
	if z.Soa() == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSoa, z.origin)
	}
	return z, nil
}

// WriteZoneFile writes the zone in master file format with names relative to
// the origin.
func (z *Zone) WriteZoneFile(w io.Writer) error {
	bw := bufio.NewWriter(w)
	_, err := fmt.Fprintf(bw, "$ORIGIN %s\n", z.origin)
	if err != nil {
		return err
	}
	for _, rr := range z.Records() {
		hdr := rr.Header()
		full := rr.String()
		// rr.String starts with the owner name followed by a tab
		rest := strings.TrimPrefix(full, hdr.Name)
		_, err = fmt.Fprintf(bw, "%s%s\n", utils.SimplifyRecordName(hdr.Name, z.origin), rest)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// initialSerial follows the YYYYMMDDnn convention
func initialSerial(now time.Time) uint32 {
	year, month, day := now.Date()
	return uint32(year*1e6 + int(month)*1e4 + day*1e2 + 1)
}

// NewFromSoa creates a zone holding only the SOA and NS records built from
// the configured defaults.
func NewFromSoa(origin string, soa conf.SoaConf) *Zone {
	z := New(origin)
	soaSet := z.getOrCreate(z.origin, dns.TypeSOA, 0)
	soaSet.SetTtl(soa.Ttl)
	soaSet.NewRecord(models.SOA{
		Ns:      dns.Fqdn(soa.Ns[0]),
		Mbox:    dns.Fqdn(soa.Mbox),
		Serial:  initialSerial(time.Now()),
		Refresh: soa.Refresh,
		Retry:   soa.Retry,
		Expire:  soa.Expire,
		Minttl:  soa.Ttl,
	})

	serial := z.serial()
	nsSet := z.getOrCreate(z.origin, dns.TypeNS, serial)
	nsSet.SetTtl(soa.Ttl)
	for _, ns := range soa.Ns {
		nsSet.NewRecord(models.NS{Ns: dns.Fqdn(ns)})
	}
	return z
}

// AddRecords inserts records given in text form, names may be relative to
// the origin. Records without a ttl use the SOA minimum.
func (z *Zone) AddRecords(records []conf.RecordConf) error {
	for _, rc := range records {
		name := utils.ResolveRecordName(rc.Name, z.origin)
		value, err := converters.Convert(name, rc.Type, rc.Value)
		if err != nil {
			return err
		}
		ttl := rc.Ttl
		if ttl == 0 {
			if soa := z.Soa(); soa != nil {
				ttl = soa.Minttl
			}
		}
		_, err = z.Insert(value.ValueRR(dns.RR_Header{Name: name, Rrtype: value.ValueType(), Class: dns.ClassINET, Ttl: ttl}))
		if err != nil {
			return err
		}
	}
	return nil
}
