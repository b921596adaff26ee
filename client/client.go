package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/1f349/bluebell/logger"
	"github.com/miekg/dns"
	"net"
	"time"
)

// DefaultTimeout is used when no timeout is provided to New.
const DefaultTimeout = 5 * time.Second

var ErrUnknownNetwork = errors.New("unknown network")

// Client sends queries, updates and transfer requests to a single server.
type Client struct {
	addr   string
	client *dns.Client
}

// New creates a client for addr over network, one of "udp", "tcp" or
// "tcp-tls". A missing port defaults to 53, or 853 for TLS.
func New(network, addr string, timeout time.Duration, tlsConfig *tls.Config) (*Client, error) {
	port := "53"
	switch network {
	case "udp", "tcp":
	case "tcp-tls":
		port = "853"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, network)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, port)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		addr: addr,
		client: &dns.Client{
			Net:       network,
			Timeout:   timeout,
			TLSConfig: tlsConfig,
		},
	}, nil
}

func (c *Client) Addr() string { return c.addr }

// Exchange sends msg, truncated UDP answers are retried over TCP.
func (c *Client) Exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	resp, rtt, err := c.client.ExchangeContext(ctx, msg, c.addr)
	if err != nil {
		return nil, err
	}
	logger.Logger.Debug("Received response", "addr", c.addr, "rtt", rtt, "rcode", dns.RcodeToString[resp.Rcode])
	if resp.Truncated && c.client.Net == "udp" {
		tcp := &dns.Client{Net: "tcp", Timeout: c.client.Timeout}
		resp, _, err = tcp.ExchangeContext(ctx, msg, c.addr)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Query asks for records of qtype at name. When dnssecOk is set the DO bit
// is sent so signatures are included.
func (c *Client) Query(ctx context.Context, name string, qtype uint16, dnssecOk bool) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	if dnssecOk {
		msg.SetEdns0(dns.DefaultMsgSize, true)
	}
	return c.Exchange(ctx, msg)
}

// Update sends a dynamic update for zone adding insert and removing remove.
func (c *Client) Update(ctx context.Context, zone string, insert, remove []dns.RR) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetUpdate(dns.Fqdn(zone))
	if len(insert) > 0 {
		msg.Insert(insert)
	}
	if len(remove) > 0 {
		msg.Remove(remove)
	}
	resp, err := c.Exchange(ctx, msg)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return resp, fmt.Errorf("update failed: %s", dns.RcodeToString[resp.Rcode])
	}
	return resp, nil
}

// Transfer requests a full zone transfer, it needs a stream transport.
func (c *Client) Transfer(ctx context.Context, zone string) ([]dns.RR, error) {
	if c.client.Net == "udp" {
		return nil, errors.New("zone transfers need tcp or tcp-tls")
	}
	conn, err := c.client.DialContext(ctx, c.addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	msg := new(dns.Msg)
	msg.SetAxfr(dns.Fqdn(zone))
	tr := &dns.Transfer{Conn: conn, ReadTimeout: c.client.Timeout}
	env, err := tr.In(msg, c.addr)
	if err != nil {
		return nil, err
	}

	var rrs []dns.RR
	for e := range env {
		if e.Error != nil {
			return nil, e.Error
		}
		rrs = append(rrs, e.RR...)
	}
	return rrs, nil
}
