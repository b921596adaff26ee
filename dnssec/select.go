package dnssec

import "github.com/miekg/dns"

// SignatureAlgorithm returns the algorithm of a SIG or RRSIG record.
func SignatureAlgorithm(rr dns.RR) (uint8, bool) {
	switch sig := rr.(type) {
	case *dns.RRSIG:
		return sig.Algorithm, true
	case *dns.SIG:
		return sig.Algorithm, true
	}
	return 0, false
}

// SelectSignature picks the signature with the highest ranked algorithm out of
// those in supported. Signatures sharing the best algorithm resolve to the
// first one seen. It returns nil when nothing matches.
func SelectSignature(rrsigs []dns.RR, supported SupportedAlgorithms) dns.RR {
	var best dns.RR
	bestRank := -1
	for _, rr := range rrsigs {
		alg, ok := SignatureAlgorithm(rr)
		if !ok || !supported.Has(alg) {
			continue
		}
		if r := Rank(alg); r > bestRank {
			best, bestRank = rr, r
		}
	}
	return best
}
