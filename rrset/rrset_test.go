package rrset

import (
	"github.com/1f349/bluebell/dnssec"
	"github.com/1f349/bluebell/models"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"math/rand/v2"
	"net"
	"slices"
	"testing"
)

func mustRR(s string) dns.RR {
	rr, err := dns.NewRR(s)
	if err != nil {
		panic(err)
	}
	return rr
}

func containsRR(records []dns.RR, rr dns.RR) bool {
	return slices.ContainsFunc(records, func(r dns.RR) bool { return Equal(r, rr) })
}

func soaRecord(ns, mbox string, serial uint32) dns.RR {
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 3600},
		Ns:      ns,
		Mbox:    mbox,
		Serial:  serial,
		Refresh: 7200,
		Retry:   3600,
		Expire:  1209600,
		Minttl:  3600,
	}
}

func TestRecordSet_Insert(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)

	insert := mustRR("www.example.com. 86400 IN A 93.184.216.24")
	assert.True(t, rrSet.Insert(insert, 0))
	assert.Len(t, rrSet.Records(false, 0), 1)
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))

	// duplicates are ignored
	assert.False(t, rrSet.Insert(insert, 0))
	assert.Len(t, rrSet.Records(false, 0), 1)
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))

	insert1 := mustRR("www.example.com. 86400 IN A 93.184.216.25")
	assert.True(t, rrSet.Insert(insert1, 0))
	assert.Len(t, rrSet.Records(false, 0), 2)
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))
	assert.True(t, containsRR(rrSet.Records(false, 0), insert1))
}

func TestRecordSet_InsertReplacesTtl(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 1))
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.25"), 1))

	rrSet.InsertRRSIG(mustRR("www.example.com. 86400 IN RRSIG A 13 3 86400 20300101000000 20200101000000 1234 example.com. AAAA"))
	shorter := mustRR("www.example.com. 300 IN A 93.184.216.24")
	assert.True(t, rrSet.Insert(shorter, 2))
	assert.Equal(t, 2, rrSet.Len())
	assert.Equal(t, uint32(300), rrSet.Ttl())
	assert.Equal(t, uint32(2), rrSet.Serial())
	assert.Empty(t, rrSet.RRSIGs())

	// the replacement keeps its position
	assert.True(t, Equal(shorter, rrSet.Records(false, 0)[0]))
}

func TestRecordSet_InsertCopies(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	insert := mustRR("www.example.com. 86400 IN A 93.184.216.24")
	assert.True(t, rrSet.Insert(insert, 0))
	insert.Header().Ttl = 1
	assert.Equal(t, uint32(86400), rrSet.Records(false, 0)[0].Header().Ttl)
}

func TestRecordSet_InsertSoa(t *testing.T) {
	rrSet := New("example.com.", dns.TypeSOA, 0)

	insert := soaRecord("sns.dns.icann.org.", "noc.dns.icann.org.", 2015082403)
	sameSerial := soaRecord("sns.dns.icann.net.", "noc.dns.icann.net.", 2015082403)
	newSerial := soaRecord("sns.dns.icann.net.", "noc.dns.icann.net.", 2015082404)

	assert.True(t, rrSet.Insert(insert, 0))
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))

	// same serial number
	assert.False(t, rrSet.Insert(sameSerial, 0))
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))
	assert.False(t, containsRR(rrSet.Records(false, 0), sameSerial))

	assert.True(t, rrSet.Insert(newSerial, 0))
	assert.False(t, rrSet.Insert(sameSerial, 0))
	assert.False(t, rrSet.Insert(insert, 0))

	assert.Equal(t, 1, rrSet.Len())
	assert.True(t, containsRR(rrSet.Records(false, 0), newSerial))
	assert.False(t, containsRR(rrSet.Records(false, 0), insert))
	assert.False(t, containsRR(rrSet.Records(false, 0), sameSerial))
}

func TestRecordSet_InsertSoaWrongRdata(t *testing.T) {
	rrSet := New("example.com.", dns.TypeSOA, 0)
	assert.True(t, rrSet.Insert(soaRecord("ns1.example.com.", "hostmaster.example.com.", 1), 0))

	bad := &dns.RFC3597{
		Hdr:   dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 3600},
		Rdata: "00",
	}
	assert.False(t, rrSet.Insert(bad, 1))
	assert.Equal(t, 1, rrSet.Len())
}

func TestRecordSet_InsertSoaCorrupted(t *testing.T) {
	bad := &dns.RFC3597{
		Hdr:   dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 3600},
		Rdata: "00",
	}
	rrSet := FromRecord(bad)
	assert.Panics(t, func() {
		rrSet.Insert(soaRecord("ns1.example.com.", "hostmaster.example.com.", 1), 0)
	})
}

func TestRecordSet_InsertCname(t *testing.T) {
	rrSet := New("web.example.com.", dns.TypeCNAME, 0)

	insert := mustRR("web.example.com. 3600 IN CNAME www.example.com.")
	newRecord := mustRR("web.example.com. 3600 IN CNAME w2.example.com.")

	assert.True(t, rrSet.Insert(insert, 0))
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))

	// update the record
	assert.True(t, rrSet.Insert(newRecord, 0))
	assert.False(t, containsRR(rrSet.Records(false, 0), insert))
	assert.True(t, containsRR(rrSet.Records(false, 0), newRecord))
	assert.Equal(t, 1, rrSet.Len())
}

func TestRecordSet_InsertMismatch(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	assert.Panics(t, func() {
		rrSet.Insert(mustRR("web.example.com. 3600 IN A 10.0.0.1"), 0)
	})
	assert.Panics(t, func() {
		rrSet.Insert(mustRR("www.example.com. 3600 IN AAAA fd01::1"), 0)
	})
	assert.NotPanics(t, func() {
		rrSet.Insert(mustRR("WWW.Example.COM. 3600 IN A 10.0.0.1"), 0)
	})
}

func TestRecordSet_InsertUnique(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		rr := &dns.A{
			Hdr: dns.RR_Header{Name: "www.example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: uint32(r.IntN(3))},
			A:   net.IPv4(10, 0, 0, byte(r.IntN(16))),
		}
		rrSet.Insert(rr, 0)

		records := rrSet.Records(false, 0)
		for i := range records {
			for j := i + 1; j < len(records); j++ {
				assert.False(t, DataEqual(records[i], records[j]))
			}
		}
	}
}

func TestRecordSet_Remove(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)

	insert := mustRR("www.example.com. 86400 IN A 93.184.216.24")
	insert1 := mustRR("www.example.com. 86400 IN A 93.184.216.25")

	assert.True(t, rrSet.Insert(insert, 0))
	assert.True(t, rrSet.Insert(insert1, 0))

	assert.True(t, rrSet.Remove(insert, 0))
	assert.False(t, rrSet.Remove(insert, 0))
	assert.True(t, rrSet.Remove(insert1, 0))
	assert.False(t, rrSet.Remove(insert1, 0))
	assert.True(t, rrSet.IsEmpty())
}

func TestRecordSet_RemoveIgnoresTtl(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 0))
	rrSet.InsertRRSIG(mustRR("www.example.com. 86400 IN RRSIG A 13 3 86400 20300101000000 20200101000000 1234 example.com. AAAA"))

	assert.True(t, rrSet.Remove(mustRR("www.example.com. 0 NONE A 93.184.216.24"), 7))
	assert.True(t, rrSet.IsEmpty())
	assert.Empty(t, rrSet.RRSIGs())
	assert.Equal(t, uint32(7), rrSet.Serial())
}

func TestRecordSet_RemoveAny(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 3)
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 3))
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.34"), 3))

	// rdata that matches nothing stored
	empty := &dns.ANY{Hdr: dns.RR_Header{Name: "www.example.com.", Rrtype: dns.TypeANY, Class: dns.ClassANY}}
	assert.False(t, rrSet.Remove(empty, 4))
	assert.Equal(t, 2, rrSet.Len())
	assert.Equal(t, uint32(3), rrSet.Serial())

	anyRecord := mustRR("www.example.com. 0 IN A 93.184.216.24")
	anyRecord.Header().Rrtype = dns.TypeANY
	assert.True(t, rrSet.Remove(anyRecord, 4))
	assert.Equal(t, 1, rrSet.Len())
	assert.Equal(t, uint32(4), rrSet.Serial())
	assert.False(t, containsRR(rrSet.Records(false, 0), mustRR("www.example.com. 86400 IN A 93.184.216.24")))
	assert.Equal(t, dns.TypeANY, anyRecord.Header().Rrtype)

	assert.Panics(t, func() {
		rrSet.Remove(mustRR("www.example.com. 3600 IN AAAA fd01::1"), 4)
	})
}

func TestRecordSet_RemoveSoa(t *testing.T) {
	rrSet := New("example.com.", dns.TypeSOA, 0)
	insert := soaRecord("sns.dns.icann.org.", "noc.dns.icann.org.", 2015082403)

	assert.True(t, rrSet.Insert(insert, 0))
	assert.False(t, rrSet.Remove(insert, 0))
	assert.True(t, containsRR(rrSet.Records(false, 0), insert))
}

func TestRecordSet_RemoveNs(t *testing.T) {
	rrSet := New("example.com.", dns.TypeNS, 0)

	ns1 := mustRR("example.com. 86400 IN NS a.iana-servers.net.")
	ns2 := mustRR("example.com. 86400 IN NS b.iana-servers.net.")

	assert.True(t, rrSet.Insert(ns1, 0))
	assert.True(t, rrSet.Insert(ns2, 0))

	// ok to remove one, but not two
	assert.True(t, rrSet.Remove(ns1, 0))
	assert.False(t, rrSet.Remove(ns2, 0))

	// check that we can swap which ones are removed
	assert.True(t, rrSet.Insert(ns1, 0))

	assert.True(t, rrSet.Remove(ns2, 0))
	assert.False(t, rrSet.Remove(ns1, 0))
	assert.Equal(t, 1, rrSet.Len())
}

func TestRecordSet_SignatureInvalidation(t *testing.T) {
	sig := mustRR("www.example.com. 86400 IN RRSIG A 13 3 86400 20300101000000 20200101000000 1234 example.com. AAAA")
	rrSet := New("www.example.com.", dns.TypeA, 0)
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 1))

	rrSet.InsertRRSIG(sig)
	assert.Len(t, rrSet.RRSIGs(), 1)

	// a rejected insert keeps the signatures
	assert.False(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 2))
	assert.Len(t, rrSet.RRSIGs(), 1)
	assert.Equal(t, uint32(1), rrSet.Serial())

	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.25"), 2))
	assert.Empty(t, rrSet.RRSIGs())
	assert.Equal(t, uint32(2), rrSet.Serial())

	rrSet.InsertRRSIG(sig)
	assert.True(t, rrSet.Remove(mustRR("www.example.com. 86400 IN A 93.184.216.25"), 3))
	assert.Empty(t, rrSet.RRSIGs())
	assert.Equal(t, uint32(3), rrSet.Serial())

	rrSet.InsertRRSIG(sig)
	rrSet.ClearRRSIGs()
	assert.Empty(t, rrSet.RRSIGs())
}

func TestRecordSet_GetFilter(t *testing.T) {
	makeSig := func(alg uint8) dns.RR {
		return &dns.RRSIG{
			Hdr:         dns.RR_Header{Name: ".", Rrtype: dns.TypeRRSIG, Class: dns.ClassINET, Ttl: 3600},
			TypeCovered: dns.TypeA,
			Algorithm:   alg,
			SignerName:  ".",
		}
	}
	rrsigRsa := makeSig(dns.RSASHA256)
	rrsigEcp256 := makeSig(dns.ECDSAP256SHA256)
	rrsigEcp384 := makeSig(dns.ECDSAP384SHA384)
	rrsigEd25519 := makeSig(dns.ED25519)

	a := mustRR(". 3600 IN A 93.184.216.24")

	rrSet := FromRecord(a)
	rrSet.InsertRRSIG(rrsigRsa)
	rrSet.InsertRRSIG(rrsigEcp256)
	rrSet.InsertRRSIG(rrsigEcp384)
	rrSet.InsertRRSIG(rrsigEd25519)

	records := rrSet.Records(true, dnssec.AllAlgorithms())
	assert.Len(t, records, 2)
	assert.True(t, Equal(a, records[0]))
	assert.Same(t, rrsigEd25519, records[1])

	records = rrSet.Records(true, dnssec.NewSupportedAlgorithms(dns.ECDSAP384SHA384))
	assert.Len(t, records, 2)
	assert.Same(t, rrsigEcp384, records[1])

	records = rrSet.Records(true, dnssec.NewSupportedAlgorithms(dns.RSASHA256, dns.ECDSAP256SHA256))
	assert.Same(t, rrsigEcp256, records[1])

	// nothing supported means nothing appended
	assert.Len(t, rrSet.Records(true, dnssec.NewSupportedAlgorithms(dns.RSASHA1)), 1)
	assert.Len(t, rrSet.Records(false, dnssec.AllAlgorithms()), 1)
}

func TestRecordSet_SetTtlAndClass(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 0))
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 600 IN A 93.184.216.25"), 0))
	assert.Equal(t, uint32(600), rrSet.Ttl())

	rrSet.SetTtl(60)
	rrSet.SetDnsClass(dns.ClassCHAOS)
	assert.Equal(t, uint32(60), rrSet.Ttl())
	assert.Equal(t, uint16(dns.ClassCHAOS), rrSet.DnsClass())
	for rr := range rrSet.All() {
		assert.Equal(t, uint32(60), rr.Header().Ttl)
		assert.Equal(t, uint16(dns.ClassCHAOS), rr.Header().Class)
	}
}

func TestRecordSet_All(t *testing.T) {
	rrSet := New("www.example.com.", dns.TypeA, 0)
	rrSet.InsertRRSIG(mustRR("www.example.com. 86400 IN RRSIG A 13 3 86400 20300101000000 20200101000000 1234 example.com. AAAA"))
	assert.True(t, rrSet.IsEmpty())

	seq := rrSet.All()
	assert.Empty(t, slices.Collect(seq))

	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.24"), 0))
	assert.True(t, rrSet.Insert(mustRR("www.example.com. 86400 IN A 93.184.216.25"), 0))

	// the same sequence observes later inserts and can be restarted
	assert.Len(t, slices.Collect(seq), 2)
	assert.Len(t, slices.Collect(seq), 2)
	for rr := range seq {
		assert.Equal(t, dns.TypeA, rr.Header().Rrtype)
		break
	}
}

func TestRecordSet_Constructors(t *testing.T) {
	rrSet := New("example.com.", dns.TypeMX, 42)
	assert.Equal(t, "example.com.", rrSet.Name())
	assert.Equal(t, dns.TypeMX, rrSet.RecordType())
	assert.Equal(t, uint16(dns.ClassINET), rrSet.DnsClass())
	assert.Equal(t, uint32(0), rrSet.Ttl())
	assert.Equal(t, uint32(42), rrSet.Serial())

	rrSet = WithTtl("example.com.", dns.TypeMX, 300)
	assert.Equal(t, uint32(300), rrSet.Ttl())
	assert.Equal(t, uint32(0), rrSet.Serial())
	assert.True(t, rrSet.IsEmpty())

	rrSet = FromRecord(mustRR("example.com. 120 CH TXT \"hello\""))
	assert.Equal(t, dns.TypeTXT, rrSet.RecordType())
	assert.Equal(t, uint16(dns.ClassCHAOS), rrSet.DnsClass())
	assert.Equal(t, uint32(120), rrSet.Ttl())
	assert.Equal(t, 1, rrSet.Len())
	assert.Empty(t, rrSet.RRSIGs())
}

func TestRecordSet_NewRecord(t *testing.T) {
	rrSet := WithTtl("example.com.", dns.TypeA, 300)
	rr := rrSet.NewRecord(&models.A{IP: net.IPv4(10, 0, 0, 1)})
	assert.Equal(t, "example.com.\t300\tIN\tA\t10.0.0.1", rr.String())
	assert.Equal(t, 1, rrSet.Len())

	// a duplicate value returns the stored record
	again := rrSet.NewRecord(&models.A{IP: net.IPv4(10, 0, 0, 1)})
	assert.Same(t, rr, again)
	assert.Equal(t, 1, rrSet.Len())

	assert.Panics(t, func() {
		rrSet.NewRecord(&models.NS{Ns: "ns1.example.com."})
	})
}

func TestDataEqual(t *testing.T) {
	a := mustRR("example.com. 300 IN A 10.0.0.1")
	assert.True(t, DataEqual(a, mustRR("example.com. 60 IN A 10.0.0.1")))
	assert.True(t, DataEqual(a, mustRR("example.com. 0 NONE A 10.0.0.1")))
	assert.False(t, DataEqual(a, mustRR("example.com. 300 IN A 10.0.0.2")))
	assert.False(t, DataEqual(a, mustRR("example.com. 300 IN AAAA ::1")))
	assert.True(t, Equal(a, mustRR("example.com. 300 IN A 10.0.0.1")))
	assert.False(t, Equal(a, mustRR("example.com. 60 IN A 10.0.0.1")))
	assert.False(t, Equal(a, mustRR("example.com. 300 CH A 10.0.0.1")))
}
