package dnssec

import (
	"fmt"
	"github.com/miekg/dns"
	"strings"
)

// rankedAlgorithms lists the signing algorithms understood by the server from
// least to most preferred. The index of an algorithm is its rank.
var rankedAlgorithms = []uint8{
	dns.RSASHA1,
	dns.RSASHA1NSEC3SHA1,
	dns.RSASHA256,
	dns.RSASHA512,
	dns.ECDSAP256SHA256,
	dns.ECDSAP384SHA384,
	dns.ED25519,
	dns.ED448,
}

// Rank returns the preference of the algorithm, higher is better. Unknown
// algorithms return -1.
func Rank(alg uint8) int {
	for i, a := range rankedAlgorithms {
		if a == alg {
			return i
		}
	}
	return -1
}

// SupportedAlgorithms is a set of signing algorithms a client is willing to
// receive signatures for.
type SupportedAlgorithms uint16

func NewSupportedAlgorithms(algs ...uint8) SupportedAlgorithms {
	var s SupportedAlgorithms
	for _, alg := range algs {
		s.Set(alg)
	}
	return s
}

// AllAlgorithms returns a set containing every ranked algorithm.
func AllAlgorithms() SupportedAlgorithms {
	return SupportedAlgorithms(1<<len(rankedAlgorithms) - 1)
}

// Set adds alg to the set, unknown algorithms are ignored.
func (s *SupportedAlgorithms) Set(alg uint8) {
	if r := Rank(alg); r >= 0 {
		*s |= 1 << r
	}
}

func (s SupportedAlgorithms) Has(alg uint8) bool {
	r := Rank(alg)
	return r >= 0 && s&(1<<r) != 0
}

func (s SupportedAlgorithms) IsEmpty() bool {
	return s == 0
}

// Intersect returns the algorithms present in both sets.
func (s SupportedAlgorithms) Intersect(o SupportedAlgorithms) SupportedAlgorithms {
	return s & o
}

// Algorithms returns the members of the set ordered by rank.
func (s SupportedAlgorithms) Algorithms() []uint8 {
	out := make([]uint8, 0, len(rankedAlgorithms))
	for _, alg := range rankedAlgorithms {
		if s.Has(alg) {
			out = append(out, alg)
		}
	}
	return out
}

func (s SupportedAlgorithms) String() string {
	algs := s.Algorithms()
	names := make([]string, 0, len(algs))
	for _, alg := range algs {
		names = append(names, dns.AlgorithmToString[alg])
	}
	return strings.Join(names, ",")
}

// ParseSupportedAlgorithms builds a set from mnemonic names as used in
// presentation format, e.g. "ECDSAP256SHA256" or "ED25519". An empty list
// returns AllAlgorithms.
func ParseSupportedAlgorithms(names []string) (SupportedAlgorithms, error) {
	if len(names) == 0 {
		return AllAlgorithms(), nil
	}
	var s SupportedAlgorithms
	for _, name := range names {
		alg, ok := dns.StringToAlgorithm[strings.ToUpper(name)]
		if !ok || Rank(alg) < 0 {
			return 0, fmt.Errorf("unsupported dnssec algorithm: %s", name)
		}
		s.Set(alg)
	}
	return s, nil
}

// FromDAU reads the DNSSEC Algorithm Understood option (RFC 6975) from an
// OPT record. The boolean is false when no DAU option is present.
func FromDAU(opt *dns.OPT) (SupportedAlgorithms, bool) {
	if opt == nil {
		return 0, false
	}
	for _, o := range opt.Option {
		if dau, ok := o.(*dns.EDNS0_DAU); ok {
			return NewSupportedAlgorithms(dau.AlgCode...), true
		}
	}
	return 0, false
}
