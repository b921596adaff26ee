package resolver

import (
	"context"
	"errors"
	"github.com/1f349/bluebell/dnssec"
	"github.com/1f349/bluebell/logger"
	"github.com/1f349/bluebell/zone"
	"github.com/miekg/dns"
	"github.com/rcrowley/go-metrics"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
)

// maxCnameChain limits how many CNAME records are followed for one query
const maxCnameChain = 8

var (
	ErrUnknownZone = errors.New("unknown zone")
	ErrNotAllowed  = errors.New("client not allowed")
)

// Acl holds the networks allowed to modify or transfer a zone.
type Acl struct {
	Update   []netip.Prefix
	Transfer []netip.Prefix
}

type servedZone struct {
	zone *zone.Zone
	acl  Acl
}

// Resolver answers queries for the zones it serves and refuses everything
// else.
type Resolver struct {
	supported dnssec.SupportedAlgorithms
	zoneMu    *sync.RWMutex
	zoneMap   map[string]servedZone
}

func NewResolver(supported dnssec.SupportedAlgorithms) *Resolver {
	return &Resolver{
		supported: supported,
		zoneMu:    new(sync.RWMutex),
		zoneMap:   make(map[string]servedZone),
	}
}

// AddZone serves z, replacing any zone with the same origin.
func (r *Resolver) AddZone(z *zone.Zone, acl Acl) {
	r.zoneMu.Lock()
	defer r.zoneMu.Unlock()
	r.zoneMap[z.Origin()] = servedZone{zone: z, acl: acl}
}

// Zone returns the zone with exactly the provided origin.
func (r *Resolver) Zone(name string) (*zone.Zone, bool) {
	r.zoneMu.RLock()
	defer r.zoneMu.RUnlock()
	s, ok := r.zoneMap[dns.CanonicalName(name)]
	return s.zone, ok
}

// Zones returns every served zone sorted by origin.
func (r *Resolver) Zones() []*zone.Zone {
	r.zoneMu.RLock()
	defer r.zoneMu.RUnlock()
	out := make([]*zone.Zone, 0, len(r.zoneMap))
	for _, s := range r.zoneMap {
		out = append(out, s.zone)
	}
	slices.SortFunc(out, func(a, b *zone.Zone) int {
		return strings.Compare(a.Origin(), b.Origin())
	})
	return out
}

// FindZone returns the closest enclosing zone for name.
func (r *Resolver) FindZone(name string) (*zone.Zone, bool) {
	s, ok := r.findServed(name)
	return s.zone, ok
}

func (r *Resolver) findServed(name string) (servedZone, bool) {
	name = dns.CanonicalName(name)
	r.zoneMu.RLock()
	defer r.zoneMu.RUnlock()
	for off, end := 0, false; !end; off, end = dns.NextLabel(name, off) {
		if s, ok := r.zoneMap[name[off:]]; ok {
			return s, true
		}
	}
	if s, ok := r.zoneMap["."]; ok {
		return s, true
	}
	return servedZone{}, false
}

// Authority returns the SOA of z for the authority section of negative
// answers, the ttl is the negative caching ttl from RFC 2308.
func (r *Resolver) Authority(z *zone.Zone) dns.RR {
	soa := z.Soa()
	if soa == nil {
		missingCounter := metrics.GetOrRegisterCounter("resolver.authority.missing_soa", metrics.DefaultRegistry)
		missingCounter.Inc(1)
		return nil
	}
	soa.Hdr.Ttl = min(soa.Hdr.Ttl, soa.Minttl)
	return soa
}

// queryOptions reads the DO bit and the algorithms understood by the client
func (r *Resolver) queryOptions(req *dns.Msg) (dnssecOk bool, supported dnssec.SupportedAlgorithms) {
	supported = r.supported
	opt := req.IsEdns0()
	if opt == nil {
		return false, supported
	}
	if dau, ok := dnssec.FromDAU(opt); ok {
		supported = supported.Intersect(dau)
	}
	return opt.Do(), supported
}

func (r *Resolver) Lookup(ctx context.Context, req *dns.Msg, addr net.Addr) (msg *dns.Msg) {
	q := req.Question[0]

	msg = new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true
	msg.RecursionAvailable = false

	dnssecOk, supported := r.queryOptions(req)
	if opt := req.IsEdns0(); opt != nil {
		msg.SetEdns0(opt.UDPSize(), dnssecOk)
	}

	missCounter := metrics.GetOrRegisterCounter("resolver.answers.miss", metrics.DefaultRegistry)
	hitCounter := metrics.GetOrRegisterCounter("resolver.answers.hit", metrics.DefaultRegistry)
	errorCounter := metrics.GetOrRegisterCounter("resolver.answers.error", metrics.DefaultRegistry)
	refusedCounter := metrics.GetOrRegisterCounter("resolver.answers.refused", metrics.DefaultRegistry)

	z, ok := r.FindZone(q.Name)
	if !ok || (q.Qclass != dns.ClassINET && q.Qclass != dns.ClassANY) {
		refusedCounter.Inc(1)
		msg.Authoritative = false
		msg.SetRcode(req, dns.RcodeRefused)
		return
	}

	aChan, eChan := r.AnswerQuestion(ctx, z, q, dnssecOk, supported)
	answers, errs := gatherFromChannels(aChan, eChan)
	errored := len(errs) > 0
	exists := len(answers) > 0 || z.HasName(q.Name)

	if !errored && !exists {
		// If we failed to find any answers, let's keep looking up the tree for
		// any wildcard domain entries.
		answers, exists, errored = r.lookupWildcard(ctx, z, q, dnssecOk, supported)
	}

	if !errored && len(answers) > 0 && q.Qtype != dns.TypeCNAME {
		answers = r.followCnames(ctx, answers, q.Qtype, dnssecOk, supported)
	}

	if errored {
		errorCounter.Inc(1)
		msg.SetRcode(req, dns.RcodeServerFailure)
	} else if len(answers) == 0 {
		missCounter.Inc(1)
		if !exists {
			msg.SetRcode(req, dns.RcodeNameError)
		}
		if soa := r.Authority(z); soa != nil {
			msg.Ns = []dns.RR{soa}
		} else {
			msg.Authoritative = false // No SOA? We're not authoritative
		}
	} else {
		hitCounter.Inc(1)
		msg.Answer = answers
	}
	return
}

// lookupWildcard tries "*.parent" for every parent of the query name inside
// the zone, answers are renamed to the query name
func (r *Resolver) lookupWildcard(ctx context.Context, z *zone.Zone, q dns.Question, dnssecOk bool, supported dnssec.SupportedAlgorithms) (answers []dns.RR, exists bool, errored bool) {
	name := dns.CanonicalName(q.Name)
	for off, end := dns.NextLabel(name, 0); !end; off, end = dns.NextLabel(name, off) {
		parent := name[off:]
		if !dns.IsSubDomain(z.Origin(), parent) {
			break
		}
		question := dns.Question{
			Name:   "*." + parent,
			Qtype:  q.Qtype,
			Qclass: q.Qclass,
		}

		aChan, eChan := r.AnswerQuestion(ctx, z, question, dnssecOk, supported)
		found, errs := gatherFromChannels(aChan, eChan)
		if len(errs) > 0 {
			return nil, false, true
		}
		if len(found) > 0 || z.HasName(question.Name) {
			for _, rr := range found {
				rr.Header().Name = q.Name
			}
			return found, true, false
		}
		// an existing name closer to the query blocks wildcards further up
		if z.HasName(parent) {
			break
		}
	}
	return nil, false, false
}

// lastCname returns the final record of rrs if it is a CNAME, signatures
// are skipped
func lastCname(rrs []dns.RR) (*dns.CNAME, bool) {
	for i := len(rrs) - 1; i >= 0; i-- {
		if rrs[i].Header().Rrtype == dns.TypeRRSIG {
			continue
		}
		cname, ok := rrs[i].(*dns.CNAME)
		return cname, ok
	}
	return nil, false
}

// followCnames appends the records a CNAME chain points at, as long as the
// targets are in zones served here
func (r *Resolver) followCnames(ctx context.Context, answers []dns.RR, qtype uint16, dnssecOk bool, supported dnssec.SupportedAlgorithms) []dns.RR {
	for range maxCnameChain {
		cname, ok := lastCname(answers)
		if !ok {
			return answers
		}
		// stop on loops
		for _, rr := range answers {
			if c, ok := rr.(*dns.CNAME); ok && strings.EqualFold(c.Hdr.Name, cname.Target) {
				return answers
			}
		}
		z, ok := r.FindZone(cname.Target)
		if !ok {
			return answers
		}
		aChan, eChan := r.AnswerQuestion(ctx, z, dns.Question{Name: cname.Target, Qtype: qtype, Qclass: dns.ClassINET}, dnssecOk, supported)
		found, errs := gatherFromChannels(aChan, eChan)
		if len(errs) > 0 || len(found) == 0 {
			return answers
		}
		answers = append(answers, found...)
	}
	return answers
}

func gatherFromChannels(rrsIn chan dns.RR, errsIn chan error) (rrs []dns.RR, errs []error) {
	rrs = []dns.RR{}
	errs = []error{}
	done := 0
	for done < 2 {
		select {
		case rr, ok := <-rrsIn:
			if ok {
				rrs = append(rrs, rr)
			} else {
				rrsIn = nil
				done++
			}
		case err, ok := <-errsIn:
			if ok {
				logger.Logger.Error("Caught error", "err", err)
				errs = append(errs, err)
			} else {
				errsIn = nil
				done++
			}
		}
	}
	return rrs, errs
}

// AnswerQuestion answers a single question from z. The records are written to
// the answers channel and any errors to the errors channel, both are closed
// once the work is finished. When nothing of the requested type exists the
// CNAME at the name is returned instead.
func (r *Resolver) AnswerQuestion(ctx context.Context, z *zone.Zone, q dns.Question, dnssecOk bool, supported dnssec.SupportedAlgorithms) (answers chan dns.RR, errors chan error) {
	answers = make(chan dns.RR)
	errors = make(chan error)

	typeStr := dns.TypeToString[q.Qtype]
	typeCounter := metrics.GetOrRegisterCounter("resolver.answers.type."+typeStr, metrics.DefaultRegistry)
	typeCounter.Inc(1)

	logger.Logger.Debug("Answering question", "q", q)

	go func() {
		defer func() {
			close(answers)
			close(errors)
		}()
		if err := ctx.Err(); err != nil {
			errors <- err
			return
		}

		records, _ := z.Lookup(q.Name, q.Qtype, dnssecOk, supported)
		if len(records) == 0 && q.Qtype != dns.TypeCNAME && q.Qtype != dns.TypeANY {
			records, _ = z.Lookup(q.Name, dns.TypeCNAME, dnssecOk, supported)
		}
		for _, rr := range records {
			select {
			case answers <- rr:
			case <-ctx.Done():
				errors <- ctx.Err()
				return
			}
		}
	}()

	return answers, errors
}

func addrFromNet(addr net.Addr) (netip.Addr, bool) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	case *net.TCPAddr:
		ip, ok := netip.AddrFromSlice(a.IP)
		return ip.Unmap(), ok
	}
	addrPort, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}, false
	}
	return addrPort.Addr().Unmap(), true
}

func allowed(prefixes []netip.Prefix, addr net.Addr) bool {
	if addr == nil {
		return false
	}
	ip, ok := addrFromNet(addr)
	if !ok {
		return false
	}
	for _, p := range prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Update processes a dynamic update message from addr.
func (r *Resolver) Update(req *dns.Msg, addr net.Addr) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetReply(req)

	appliedCounter := metrics.GetOrRegisterCounter("resolver.updates.applied", metrics.DefaultRegistry)
	refusedCounter := metrics.GetOrRegisterCounter("resolver.updates.refused", metrics.DefaultRegistry)

	if len(req.Question) != 1 || req.Question[0].Qtype != dns.TypeSOA {
		msg.SetRcode(req, dns.RcodeFormatError)
		return msg
	}
	r.zoneMu.RLock()
	s, ok := r.zoneMap[dns.CanonicalName(req.Question[0].Name)]
	r.zoneMu.RUnlock()
	if !ok {
		msg.SetRcode(req, dns.RcodeNotAuth)
		return msg
	}
	if !allowed(s.acl.Update, addr) {
		logger.Logger.Warn("Refused update", "zone", s.zone.Origin(), "addr", addr)
		refusedCounter.Inc(1)
		msg.SetRcode(req, dns.RcodeRefused)
		return msg
	}

	rcode, changed := s.zone.Update(req.Answer, req.Ns)
	if changed {
		appliedCounter.Inc(1)
	}
	msg.SetRcode(req, rcode)
	return msg
}

// Transfer returns the records of the zone in AXFR order, the SOA is both the
// first and the last record.
func (r *Resolver) Transfer(name string, addr net.Addr) ([]dns.RR, error) {
	r.zoneMu.RLock()
	s, ok := r.zoneMap[dns.CanonicalName(name)]
	r.zoneMu.RUnlock()
	if !ok {
		return nil, ErrUnknownZone
	}
	if !allowed(s.acl.Transfer, addr) {
		return nil, ErrNotAllowed
	}
	records := s.zone.Records()
	if len(records) == 0 {
		return nil, zone.ErrMissingSoa
	}
	return append(records, dns.Copy(records[0])), nil
}
