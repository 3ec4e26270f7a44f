/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"net"

	"github.com/miekg/dns"
)

var supportedQtypes = map[uint16]bool{
	dns.TypeA:     true,
	dns.TypeAAAA:  true,
	dns.TypeCNAME: true,
	dns.TypeAXFR:  true,
	dns.TypeANY:   true,
	dns.TypeSOA:   true,
	dns.TypeNS:    true,
	dns.TypeURI:   true,
}

const defaultUDPPayload = 512

// AnswerQuestions implements spec.md §4.5: the single-pass DNS query
// handler. query is the decoded request, peer the requesting address
// (used for AXFR ACL checks), tcp whether the request arrived over TCP
// (truncation is inapplicable there), ourMax this server's configured
// maximum EDNS(0) payload size, and send the sink the final message(s)
// are delivered to.
func (r *Registry) AnswerQuestions(query *dns.Msg, peer net.IP, tcp bool, ourMax uint16, send func(*dns.Msg)) {
	reply := new(dns.Msg)
	reply.SetReply(query)
	reply.Compress = true

	// Step 1: EDNS(0), UDP semantics.
	var opt *dns.OPT
	optCount := 0
	for _, rr := range query.Extra {
		if o, ok := rr.(*dns.OPT); ok {
			optCount++
			opt = o
		}
	}
	if optCount > 1 {
		reply.Rcode = dns.RcodeFormatError
		send(reply)
		return
	}

	payloadSize := uint16(defaultUDPPayload)
	echoOPT := false
	if opt != nil {
		echoOPT = true
		if opt.Version() > 0 {
			respOpt := new(dns.OPT)
			respOpt.Hdr.Name = "."
			respOpt.Hdr.Rrtype = dns.TypeOPT
			respOpt.SetVersion(0)
			reply.Extra = append(reply.Extra, respOpt)
			// miekg/dns packs the extended RCODE across the header and the
			// OPT TTL field automatically from Msg.Rcode when an OPT is
			// present, so setting the full 12-bit code here is sufficient.
			reply.Rcode = dns.RcodeBadVers
			send(reply)
			return
		}
		payloadSize = clampUint16(opt.UDPSize(), defaultUDPPayload, ourMax)
	}
	if tcp {
		payloadSize = 0xFFFF
	}

	// Step 2: per-question loop. SetReply already copied the first
	// question; the loop below echoes each question itself.
	reply.Question = nil
	rcode := dns.RcodeSuccess
	var ansMark, nsMark, extraMark int
	for _, q := range query.Question {
		ansMark, nsMark, extraMark = len(reply.Answer), len(reply.Ns), len(reply.Extra)
		reply.Question = append(reply.Question, q)

		if q.Qclass == dns.ClassANY {
			reply.Authoritative = false
			continue
		}
		if q.Qclass != dns.ClassINET {
			rcode = dns.RcodeNotImplemented
			break
		}
		if !supportedQtypes[q.Qtype] {
			rcode = dns.RcodeNotImplemented
			break
		}

		match := r.findZone(NewDomain(q.Name))
		if match == nil {
			rcode = dns.RcodeRefused
			break
		}
		rcode = match.zone.answer(match.matches, q, reply, peer)
	}

	// Step 3: truncation, UDP only.
	if !tcp && reply.Len() > int(payloadSize) {
		reply.Answer = reply.Answer[:ansMark]
		reply.Ns = reply.Ns[:nsMark]
		reply.Extra = reply.Extra[:extraMark]
		reply.Truncated = true
		send(finishReply(reply, dns.RcodeSuccess, echoOPT, payloadSize))
		return
	}

	send(finishReply(reply, rcode, echoOPT, payloadSize))
}

func finishReply(reply *dns.Msg, rcode int, echoOPT bool, payloadSize uint16) *dns.Msg {
	reply.Rcode = rcode
	if echoOPT {
		respOpt := new(dns.OPT)
		respOpt.Hdr.Name = "."
		respOpt.Hdr.Rrtype = dns.TypeOPT
		respOpt.SetUDPSize(payloadSize)
		reply.Extra = append(reply.Extra, respOpt)
	}
	return reply
}

func clampUint16(v, lo, hi uint16) uint16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
