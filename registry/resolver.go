/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver is the upstream query surface a secondary or caching zone
// uses to pull SOA/AXFR/A/AAAA/CNAME/URI answers from its configured
// peers (spec.md C2). Implemented here over github.com/miekg/dns's
// client, following the teacher's zd.DoTransfer (zone_utils.go) and its
// plain dns.Exchange usage.
type Resolver interface {
	QuerySOA(qname string) (*dns.SOA, uint32, error)
	QueryAXFR(qname string) ([]dns.RR, error)
	Query(qname string, qtype uint16) ([]dns.RR, uint32, error)
}

// dnsResolver tries a fixed list of upstream servers in list order,
// moving to the next server only when an exchange fails. The
// exchange timeout bounds every in-flight query per spec.md §5
// ("in-flight upstream queries are not cancellable... bound them with a
// transport-level timeout").
type dnsResolver struct {
	servers []string
	client  *dns.Client
}

func NewResolver(servers []string) Resolver {
	return &dnsResolver{
		servers: withDefaultPort(servers),
		client:  &dns.Client{Timeout: 5 * time.Second},
	}
}

func withDefaultPort(servers []string) []string {
	out := make([]string, len(servers))
	for i, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		out[i] = s
	}
	return out
}

func (r *dnsResolver) exchange(m *dns.Msg) (*dns.Msg, error) {
	if len(r.servers) == 0 {
		return nil, fmt.Errorf("registry: no upstream servers configured")
	}
	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.Exchange(m, server)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("registry: all upstream servers failed: %w", lastErr)
}

// QuerySOA returns the SOA record and its envelope TTL.
func (r *dnsResolver) QuerySOA(qname string) (*dns.SOA, uint32, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(qname), dns.TypeSOA)
	resp, err := r.exchange(m)
	if err != nil {
		return nil, 0, newErr(KindUpstreamFailure, "SOA query failed", err)
	}
	if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) == 0 {
		return nil, 0, newErr(KindUpstreamFailure, fmt.Sprintf("SOA query rcode %s", dns.RcodeToString[resp.Rcode]), nil)
	}
	soa, ok := resp.Answer[0].(*dns.SOA)
	if !ok {
		return nil, 0, newErr(KindUpstreamFailure, "SOA query returned non-SOA answer", nil)
	}
	return soa, soa.Hdr.Ttl, nil
}

// QueryAXFR performs a full zone transfer and returns the concatenated
// record stream (including the envelope SOAs), matching dns.Transfer's
// In() channel semantics collapsed into a single slice.
func (r *dnsResolver) QueryAXFR(qname string) ([]dns.RR, error) {
	if len(r.servers) == 0 {
		return nil, newErr(KindUpstreamFailure, "AXFR: no upstream servers configured", nil)
	}
	m := new(dns.Msg)
	m.SetAxfr(dns.Fqdn(qname))

	tr := &dns.Transfer{}
	var lastErr error
	for _, server := range r.servers {
		env, err := tr.In(m, server)
		if err != nil {
			lastErr = err
			continue
		}
		var rrs []dns.RR
		for e := range env {
			if e.Error != nil {
				lastErr = e.Error
				break
			}
			rrs = append(rrs, e.RR...)
		}
		if lastErr == nil {
			return rrs, nil
		}
	}
	return nil, newErr(KindUpstreamFailure, "AXFR failed", lastErr)
}

// Query performs a plain one-shot query for qtype and returns the answer
// RRs plus the lowest TTL observed (used to derive the caching-zone
// expiry).
func (r *dnsResolver) Query(qname string, qtype uint16) ([]dns.RR, uint32, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(qname), qtype)
	resp, err := r.exchange(m)
	if err != nil {
		return nil, 0, newErr(KindUpstreamFailure, "query failed", err)
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, 0, nil
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, 0, newErr(KindUpstreamFailure, fmt.Sprintf("query rcode %s", dns.RcodeToString[resp.Rcode]), nil)
	}
	var minTTL uint32 = ^uint32(0)
	for _, rr := range resp.Answer {
		if rr.Header().Ttl < minTTL {
			minTTL = rr.Header().Ttl
		}
	}
	if len(resp.Answer) == 0 {
		minTTL = 0
	}
	return resp.Answer, minTTL, nil
}
