package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"github.com/1f349/bluebell/dnssec"
	"github.com/1f349/bluebell/resolver"
	"github.com/1f349/bluebell/zone"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"math/big"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"
)

const testZone = `$ORIGIN example.com.
$TTL 300
@	IN	SOA	ns1.example.com. hostmaster.example.com. 2024010101 7200 3600 1209600 300
@	IN	NS	ns1.example.com.
www	IN	A	192.0.2.2
`

func selfSignedCert(t *testing.T) tls.Certificate {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	assert.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	assert.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

type testServer struct {
	server  *DnsServer
	udpAddr string
	tcpAddr string
	tlsAddr string
}

func startTestServer(t *testing.T) *testServer {
	z, err := zone.Parse(strings.NewReader(testZone), "example.com.", "test")
	assert.NoError(t, err)
	res := resolver.NewResolver(dnssec.AllAlgorithms())
	loopback := []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8")}
	res.AddZone(z, resolver.Acl{Update: loopback, Transfer: loopback})

	udp, err := net.ListenPacket("udp", "127.0.0.1:0")
	assert.NoError(t, err)
	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	tlsLn, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)

	srv := NewDnsServer(tcp, udp, res)
	srv.SetTls(tlsLn, &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}})
	srv.Run()
	t.Cleanup(srv.Close)

	return &testServer{
		server:  srv,
		udpAddr: udp.LocalAddr().String(),
		tcpAddr: tcp.Addr().String(),
		tlsAddr: tlsLn.Addr().String(),
	}
}

func TestDnsServer_Query(t *testing.T) {
	ts := startTestServer(t)

	for _, i := range []struct {
		net  string
		addr string
	}{
		{"udp", ts.udpAddr},
		{"tcp", ts.tcpAddr},
		{"tcp-tls", ts.tlsAddr},
	} {
		t.Run(i.net, func(t *testing.T) {
			c := &dns.Client{Net: i.net, Timeout: 2 * time.Second, TLSConfig: &tls.Config{InsecureSkipVerify: true}}
			req := new(dns.Msg)
			req.SetQuestion("www.example.com.", dns.TypeA)

			var resp *dns.Msg
			assert.Eventually(t, func() bool {
				var err error
				resp, _, err = c.Exchange(req, i.addr)
				return err == nil
			}, 5*time.Second, 50*time.Millisecond)
			assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
			assert.True(t, resp.Authoritative)
			assert.Len(t, resp.Answer, 1)
			assert.Equal(t, "192.0.2.2", resp.Answer[0].(*dns.A).A.String())
		})
	}
}

func TestDnsServer_NoQuestion(t *testing.T) {
	ts := startTestServer(t)
	c := &dns.Client{Net: "tcp", Timeout: 2 * time.Second}
	req := new(dns.Msg)
	req.Id = dns.Id()
	resp, _, err := c.Exchange(req, ts.tcpAddr)
	assert.NoError(t, err)
	assert.Equal(t, dns.RcodeFormatError, resp.Rcode)
}

func TestDnsServer_NotImplemented(t *testing.T) {
	ts := startTestServer(t)
	c := &dns.Client{Net: "tcp", Timeout: 2 * time.Second}
	req := new(dns.Msg)
	req.SetNotify("example.com.")
	req.Opcode = dns.OpcodeStatus
	resp, _, err := c.Exchange(req, ts.tcpAddr)
	assert.NoError(t, err)
	assert.Equal(t, dns.RcodeNotImplemented, resp.Rcode)
}

func TestDnsServer_Update(t *testing.T) {
	ts := startTestServer(t)
	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}

	rr, err := dns.NewRR("api.example.com. 300 IN A 192.0.2.10")
	assert.NoError(t, err)
	req := new(dns.Msg)
	req.SetUpdate("example.com.")
	req.Insert([]dns.RR{rr})
	resp, _, err := c.Exchange(req, ts.udpAddr)
	assert.NoError(t, err)
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)

	q := new(dns.Msg)
	q.SetQuestion("api.example.com.", dns.TypeA)
	resp, _, err = c.Exchange(q, ts.udpAddr)
	assert.NoError(t, err)
	assert.Len(t, resp.Answer, 1)
}

func TestDnsServer_Transfer(t *testing.T) {
	ts := startTestServer(t)

	tr := new(dns.Transfer)
	req := new(dns.Msg)
	req.SetAxfr("example.com.")
	env, err := tr.In(req, ts.tcpAddr)
	assert.NoError(t, err)

	var rrs []dns.RR
	for e := range env {
		assert.NoError(t, e.Error)
		rrs = append(rrs, e.RR...)
	}
	// SOA, NS, A and the closing SOA
	assert.Len(t, rrs, 4)
	assert.IsType(t, &dns.SOA{}, rrs[0])
	assert.IsType(t, &dns.SOA{}, rrs[3])

	// transfers are not served over UDP
	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := c.Exchange(req, ts.udpAddr)
	assert.NoError(t, err)
	assert.Equal(t, dns.RcodeRefused, resp.Rcode)
}

func TestDnsServer_Truncate(t *testing.T) {
	ts := startTestServer(t)
	z, ok := ts.server.resolver.Zone("example.com.")
	assert.True(t, ok)
	for i := range 100 {
		_, err := z.Insert(&dns.TXT{
			Hdr: dns.RR_Header{Name: "big.example.com.", Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 300},
			Txt: []string{strings.Repeat("x", 50), string(rune('a' + i%26)), strings.Repeat("y", i)},
		})
		assert.NoError(t, err)
	}

	req := new(dns.Msg)
	req.SetQuestion("big.example.com.", dns.TypeTXT)
	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := c.Exchange(req, ts.udpAddr)
	assert.NoError(t, err)
	assert.True(t, resp.Truncated)

	c.Net = "tcp"
	resp, _, err = c.Exchange(req, ts.tcpAddr)
	assert.NoError(t, err)
	assert.False(t, resp.Truncated)
	assert.Len(t, resp.Answer, 100)
}
