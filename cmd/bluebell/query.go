package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"github.com/1f349/bluebell/client"
	"github.com/1f349/bluebell/logger"
	"github.com/google/subcommands"
	"github.com/miekg/dns"
	"strings"
	"time"
)

type queryCmd struct {
	server   string
	network  string
	rrType   string
	dnssec   bool
	insecure bool
	timeout  time.Duration
}

func (q *queryCmd) Name() string { return "query" }

func (q *queryCmd) Synopsis() string { return "Query a DNS server" }

func (q *queryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&q.server, "server", "127.0.0.1", "address of the server")
	f.StringVar(&q.network, "net", "udp", "transport: udp, tcp or tcp-tls")
	f.StringVar(&q.rrType, "type", "A", "record type, AXFR transfers the zone")
	f.BoolVar(&q.dnssec, "dnssec", false, "request signatures")
	f.BoolVar(&q.insecure, "insecure", false, "skip TLS certificate verification")
	f.DurationVar(&q.timeout, "timeout", client.DefaultTimeout, "query timeout")
}

func (q *queryCmd) Usage() string {
	return `query [-server <addr>] [-net udp|tcp|tcp-tls] [-type <type>] [-dnssec] <name>
  Send a single query and print the response
`
}

func (q *queryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)

	rrType, ok := dns.StringToType[strings.ToUpper(q.rrType)]
	if !ok {
		logger.Logger.Error("Unknown record type", "type", q.rrType)
		return subcommands.ExitUsageError
	}

	c, err := client.New(q.network, q.server, q.timeout, &tls.Config{InsecureSkipVerify: q.insecure})
	if err != nil {
		logger.Logger.Error("Invalid client options", "err", err)
		return subcommands.ExitUsageError
	}

	if rrType == dns.TypeAXFR {
		rrs, err := c.Transfer(ctx, name)
		if err != nil {
			logger.Logger.Error("Transfer failed", "err", err)
			return subcommands.ExitFailure
		}
		for _, rr := range rrs {
			fmt.Println(rr.String())
		}
		return subcommands.ExitSuccess
	}

	resp, err := c.Query(ctx, name, rrType, q.dnssec)
	if err != nil {
		logger.Logger.Error("Query failed", "err", err)
		return subcommands.ExitFailure
	}
	fmt.Println(resp.String())
	return subcommands.ExitSuccess
}
