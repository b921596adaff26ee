package server

import (
	"context"
	"errors"
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/resolver"
	"github.com/miekg/dns"
	"github.com/rcrowley/go-metrics"
	"time"
)

// transferChunk is the number of records sent in each AXFR message
const transferChunk = 100

type Handler struct {
	resolver *resolver.Resolver
	// stream is set for TCP and TLS, which may carry zone transfers
	stream bool

	responseTimer  metrics.Timer
	requestCounter metrics.Counter
}

func (h *Handler) Handle(response dns.ResponseWriter, req *dns.Msg) {
	h.requestCounter.Inc(1)
	h.responseTimer.Time(func() {
		msg := h.respond(response, req)
		if msg != nil {
			err := response.WriteMsg(msg)
			if err != nil {
				logger.Logger.Error("Error writing message", "err", err)
			}
		}

		logger.Logger.Debug("Sent response", "addr", response.RemoteAddr())
	})
}

func (h *Handler) respond(response dns.ResponseWriter, req *dns.Msg) *dns.Msg {
	if len(req.Question) == 0 {
		logger.Logger.Debug("Handling incoming query with no question")
		return errorReply(req, dns.RcodeFormatError)
	}
	q := req.Question[0]
	logger.Logger.Debug("Handling incoming query", "domain", q.Name, "type", dns.TypeToString[q.Qtype], "opcode", dns.OpcodeToString[req.Opcode])

	switch req.Opcode {
	case dns.OpcodeQuery:
		if q.Qtype == dns.TypeAXFR || q.Qtype == dns.TypeIXFR {
			if !h.stream {
				return errorReply(req, dns.RcodeRefused)
			}
			return h.transfer(response, req)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		msg := h.resolver.Lookup(ctx, req, response.RemoteAddr())
		if !h.stream {
			size := dns.MinMsgSize
			if opt := req.IsEdns0(); opt != nil {
				size = max(size, int(opt.UDPSize()))
			}
			msg.Truncate(size)
		}
		return msg
	case dns.OpcodeUpdate:
		return h.resolver.Update(req, response.RemoteAddr())
	}
	return errorReply(req, dns.RcodeNotImplemented)
}

func errorReply(req *dns.Msg, rcode int) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetRcode(req, rcode)
	return msg
}

// transfer streams the zone to the client, IXFR requests receive the full
// zone as allowed by RFC 1995
func (h *Handler) transfer(response dns.ResponseWriter, req *dns.Msg) *dns.Msg {
	q := req.Question[0]
	rrs, err := h.resolver.Transfer(q.Name, response.RemoteAddr())
	switch {
	case errors.Is(err, resolver.ErrUnknownZone):
		return errorReply(req, dns.RcodeNotAuth)
	case err != nil:
		logger.Logger.Info("Refused transfer", "zone", q.Name, "addr", response.RemoteAddr(), "err", err)
		return errorReply(req, dns.RcodeRefused)
	}

	ch := make(chan *dns.Envelope)
	done := make(chan error, 1)
	tr := new(dns.Transfer)
	go func() {
		done <- tr.Out(response, req, ch)
	}()

	// Out stops reading from ch once a write fails
	for len(rrs) > 0 {
		n := min(transferChunk, len(rrs))
		select {
		case ch <- &dns.Envelope{RR: rrs[:n]}:
			rrs = rrs[n:]
		case err := <-done:
			logger.Logger.Error("Failed to transfer zone", "zone", q.Name, "addr", response.RemoteAddr(), "err", err)
			return nil
		}
	}
	close(ch)
	if err := <-done; err != nil {
		logger.Logger.Error("Failed to transfer zone", "zone", q.Name, "addr", response.RemoteAddr(), "err", err)
		return nil
	}
	logger.Logger.Info("Transferred zone", "zone", q.Name, "addr", response.RemoteAddr())
	return nil
}
