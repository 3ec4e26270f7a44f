/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"net"

	"github.com/miekg/dns"
)

const agoraServiceLabel = "_agora._tcp"

// uriOwner builds the "_agora._tcp.<name>" owner used for the URI
// projection of a payload, per spec.md §4.7/§6.
func uriOwner(name Domain) Domain {
	return JoinDomain(agoraServiceLabel, name)
}

// toRR projects a TypedPayload into the resource records DNS serves for
// it (spec.md §4.7). emit is called once per record: for each address,
// its host record (A, AAAA or CNAME) followed by its URI record, so
// callers that build an answer section in a single pass keep that
// ordering.
func (tp TypedPayload) toRR(name Domain, ttl uint32, emit func(dns.RR)) error {
	owner := string(name)

	switch tp.Kind {
	case KindCNAME:
		if len(tp.Payload.Addresses) == 0 {
			return newErr(KindAddressMalformed, "CNAME payload has no addresses", nil)
		}
		_, host, err := classifyHost(tp.Payload.Addresses[0])
		if err != nil {
			return err
		}
		emit(&dns.CNAME{
			Hdr:    dns.RR_Header{Name: owner, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: ttl},
			Target: dns.Fqdn(host),
		})
		emit(&dns.URI{
			Hdr:      dns.RR_Header{Name: string(uriOwner(name)), Rrtype: dns.TypeURI, Class: dns.ClassINET, Ttl: ttl},
			Priority: 1,
			Weight:   1,
			Target:   tp.Payload.Addresses[0],
		})
		return nil

	case KindA, KindAAAA:
		for _, addr := range tp.Payload.Addresses {
			kind, host, err := classifyHost(addr)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return newErr(KindAddressMalformed, "not a literal address: "+addr, nil)
			}
			switch kind {
			case KindA:
				emit(&dns.A{
					Hdr: dns.RR_Header{Name: owner, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
					A:   ip,
				})
			case KindAAAA:
				emit(&dns.AAAA{
					Hdr:  dns.RR_Header{Name: owner, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl},
					AAAA: ip,
				})
			}
			emit(&dns.URI{
				Hdr:      dns.RR_Header{Name: string(uriOwner(name)), Rrtype: dns.TypeURI, Class: dns.ClassINET, Ttl: ttl},
				Priority: 1,
				Weight:   1,
				Target:   addr,
			})
		}
		return nil

	default:
		return newErr(KindAddressMalformed, "unknown TypedPayload kind", nil)
	}
}

// makeFromURIRRset reconstructs a TypedPayload from a cached URI RRset
// (spec.md §4.7 "make"). The reconstructed Kind is always KindURI and
// UTXOHash defaults to empty: this is the caching-zone install path,
// which never carries stake information.
func makeFromURIRRset(name Domain, rrs []dns.RR) (TypedPayload, error) {
	var addrs []string
	for _, rr := range rrs {
		if uri, ok := rr.(*dns.URI); ok {
			addrs = append(addrs, uri.Target)
		}
	}
	if len(addrs) == 0 {
		return TypedPayload{}, newErr(KindNameError, "no URI records to reconstruct from", nil)
	}
	pk, err := ParsePublicKey(name.LeftLabel())
	if err != nil {
		return TypedPayload{}, err
	}
	return TypedPayload{
		Kind: KindURI,
		Payload: RegistrationPayload{
			PublicKey: pk,
			Addresses: addrs,
		},
	}, nil
}
