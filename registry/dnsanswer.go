/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"net"

	"github.com/miekg/dns"
)

// answer implements spec.md §4.6 "Zone answer" for a single question.
// matches is true when q.Name is exactly this zone's apex (as opposed to
// merely owned by it, i.e. a descendant name). It mutates reply in
// place and returns the RCODE to use if this is the only question, or to
// fold into the final message otherwise (dnshandler.go does the
// folding).
func (zd *ZoneEngine) answer(matches bool, q dns.Question, reply *dns.Msg, peer net.IP) int {
	reply.Authoritative = zd.role != RoleCaching
	reply.RecursionAvailable = zd.role == RoleCaching

	// Run on the zone's scheduler so an answer never interleaves with a
	// replication or eviction job (e.g. axfrTransfer's clear-then-insert).
	var rcode int
	zd.sched.RunSync(func() {
		switch q.Qtype {
		case dns.TypeAXFR:
			rcode = zd.answerAXFR(matches, q, reply, peer)
		case dns.TypeSOA:
			rcode = zd.answerSOA(matches, q, reply)
		case dns.TypeNS:
			rcode = zd.answerNS(matches, q, reply)
		default:
			rcode = zd.answerLeaf(q, reply)
		}
	})
	return rcode
}

func (zd *ZoneEngine) answerAXFR(matches bool, q dns.Question, reply *dns.Msg, peer net.IP) int {
	if !matches || zd.role == RoleCaching || !zd.peerAllowedTransfer(peer) {
		return dns.RcodeRefused
	}

	soaRR := zd.soaRR(q.Name)
	reply.Answer = append(reply.Answer, soaRR)

	pubkeys, err := zd.store.EnumeratePubkeys(zd.Name.String())
	if err != nil {
		return dns.RcodeServerFailure
	}
	for _, pk := range pubkeys {
		rows, err := zd.store.GetAddresses(zd.Name.String(), pk)
		if err != nil {
			continue
		}
		for _, row := range rows {
			owner := recordOwner(row, zd.Name, pk)
			rr, err := rowToRR(row, owner)
			if err != nil {
				continue
			}
			reply.Answer = append(reply.Answer, rr)
		}
	}
	reply.Answer = append(reply.Answer, soaRR)
	return dns.RcodeSuccess
}

func (zd *ZoneEngine) peerAllowedTransfer(peer net.IP) bool {
	if peer == nil {
		return false
	}
	for _, n := range zd.cfg.AllowTransfer {
		if n.Contains(peer) {
			return true
		}
	}
	return false
}

func (zd *ZoneEngine) answerSOA(matches bool, q dns.Question, reply *dns.Msg) int {
	soaRR := zd.soaRR(zd.Name.String())
	if matches {
		reply.Answer = append(reply.Answer, soaRR)
	} else {
		reply.Ns = append(reply.Ns, soaRR)
	}
	return dns.RcodeSuccess
}

func (zd *ZoneEngine) answerNS(matches bool, q dns.Question, reply *dns.Msg) int {
	if !matches {
		return dns.RcodeRefused
	}
	for _, ns := range zd.nsNames() {
		if ns == "" {
			continue
		}
		reply.Answer = append(reply.Answer, &dns.NS{
			Hdr: dns.RR_Header{Name: zd.Name.String(), Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: zd.currentSOA().Minimum},
			Ns:  dns.Fqdn(ns),
		})
	}
	return dns.RcodeSuccess
}

// answerLeaf handles every qtype that isn't AXFR/SOA/NS: the apex-minus
// pubkey-label lookup of spec.md §4.6's final bullet.
func (zd *ZoneEngine) answerLeaf(q dns.Question, reply *dns.Msg) int {
	name := NewDomain(q.Name)
	pubkeyLabel, _ := stripServiceLabels(name, zd.Name)
	pk, err := ParsePublicKey(pubkeyLabel)
	if err != nil {
		return rcodeForKind(KindProtocolError)
	}

	rows, found := zd.lookupRows(pk.String(), q.Qtype)
	if !found && zd.role == RoleCaching {
		rows, found = zd.getAndCacheRecords(pk, q.Name, q.Qtype)
	}
	if !found {
		return dns.RcodeNameError
	}

	for _, row := range rows {
		rr, err := rowToRR(row, q.Name)
		if err != nil {
			continue
		}
		reply.Answer = append(reply.Answer, rr)
	}
	if zd.role != RoleCaching {
		reply.Ns = append(reply.Ns, zd.soaRR(zd.Name.String()))
	}
	return dns.RcodeSuccess
}

// lookupRows applies the CNAME fallback rule of RFC 1034 §3.6.2 /
// spec.md §4.6: if no records of qtype exist and qtype isn't CNAME,
// retry with CNAME.
func (zd *ZoneEngine) lookupRows(pubkey string, qtype uint16) ([]AddressRow, bool) {
	rows, err := zd.store.GetAddresses(zd.Name.String(), pubkey)
	if err != nil || len(rows) == 0 {
		return nil, false
	}
	matching := filterRows(rows, qtype)
	if len(matching) > 0 {
		return matching, true
	}
	if qtype != dns.TypeCNAME {
		if cn := filterRows(rows, dns.TypeCNAME); len(cn) > 0 {
			return cn, true
		}
	}
	return nil, false
}

func filterRows(rows []AddressRow, qtype uint16) []AddressRow {
	var out []AddressRow
	for _, r := range rows {
		if r.RRType == qtype {
			out = append(out, r)
		}
	}
	return out
}

// getAndCacheRecords is the caching-zone upstream fallback on a miss
// (spec.md §4.6, §7 "NameError... on caching zones, first attempt an
// upstream fetch").
func (zd *ZoneEngine) getAndCacheRecords(pk PublicKey, owner string, qtype uint16) ([]AddressRow, bool) {
	rrs, ttl, err := zd.resolver.Query(owner, qtype)
	if err != nil || len(rrs) == 0 {
		return nil, false
	}
	expires := nowUnix() + int64(ttl)
	for _, rr := range rrs {
		rtype, addr, rttl, err := addressFromRR(rr)
		if err != nil {
			continue
		}
		if err := zd.store.UpsertAddress(zd.Name.String(), pk.String(), addr, rtype, rttl, expires); err != nil {
			continue
		}
	}
	zd.setTTLTimer()
	return zd.lookupRows(pk.String(), qtype)
}

func (zd *ZoneEngine) soaRR(owner string) dns.RR {
	s := zd.currentSOA()
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: zd.Name.String(), Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: s.Minimum},
		Ns:      dns.Fqdn(s.Mname),
		Mbox:    dns.Fqdn(s.Rname),
		Serial:  s.Serial,
		Refresh: s.Refresh,
		Retry:   s.Retry,
		Expire:  s.Expire,
		Minttl:  s.Minimum,
	}
}

// recordOwner reconstructs the owner name for a stored row (the URI
// projection lives under "_agora._tcp.<pubkey>.<zone>", everything else
// directly under "<pubkey>.<zone>").
func recordOwner(row AddressRow, zone Domain, pubkey string) string {
	if row.RRType == dns.TypeURI {
		return uriOwner(JoinDomain(pubkey, zone)).String()
	}
	return JoinDomain(pubkey, zone).String()
}
