/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"net"
	"net/url"

	"github.com/go-playground/validator/v10"
)

var payloadValidate = validator.New()

// RRKind is the DNS projection of a registration payload's addresses.
type RRKind int

const (
	KindA RRKind = iota + 1
	KindAAAA
	KindCNAME
	KindURI
)

// RegistrationPayload is what a validator or flash node signs and posts.
type RegistrationPayload struct {
	PublicKey PublicKey `validate:"required"`
	Seq       uint64
	Addresses []string `validate:"required,min=1,dive,required"` // raw URIs, e.g. "agora://1.2.3.4:2826"
	TTL       uint32   // record TTL hint in seconds, caching zones only
}

// KnownChannel is the flash-node-only channel descriptor, validated
// against the ledger's block at Height.
type KnownChannel struct {
	Height uint64
	Conf   uint32 `validate:"required"`
}

// TypedPayload is the internal pairing of a payload with its derived DNS
// kind and (validator only) on-chain stake UTXO reference.
type TypedPayload struct {
	Kind      RRKind
	Payload   RegistrationPayload
	UTXOHash  string
	Signature []byte
}

// classifyHost returns the RRKind implied by a single address's host
// component: an IPv4 literal is A, an IPv6 literal is AAAA, anything
// else is CNAME.
func classifyHost(rawURI string) (RRKind, string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return 0, "", newErr(KindAddressMalformed, "cannot parse address "+rawURI, err)
	}
	host := u.Hostname()
	if host == "" {
		return 0, "", newErr(KindAddressMalformed, "address has no host: "+rawURI, nil)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return KindA, host, nil
		}
		return KindAAAA, host, nil
	}
	return KindCNAME, host, nil
}

// ensureValidPayload implements spec.md §4.4. previous may be nil for a
// first-time registration. It returns the dominant RRKind: per the
// source behaviour preserved by design (see SPEC_FULL.md "Open
// Questions Resolved" #2), when addresses mix A and AAAA the dominant
// kind is simply the kind of the last address inspected, not a merge.
func ensureValidPayload(newP RegistrationPayload, previous *RegistrationPayload) (RRKind, error) {
	if err := payloadValidate.Struct(newP); err != nil {
		return 0, newErr(KindAddressMalformed, "malformed registration payload", err)
	}
	if previous != nil && newP.Seq < previous.Seq {
		return 0, newErr(KindStaleWrite, "seq must be non-decreasing", nil)
	}

	var dominant RRKind
	cnameCount := 0
	for _, addr := range newP.Addresses {
		kind, _, err := classifyHost(addr)
		if err != nil {
			return 0, err
		}
		if kind == KindCNAME {
			cnameCount++
		}
		dominant = kind
	}
	if cnameCount > 0 && len(newP.Addresses) > 1 {
		return 0, newErr(KindAddressMalformed, "CNAME cannot coexist with other addresses", nil)
	}
	return dominant, nil
}

// dominantKind classifies an already-fetched-from-upstream payload
// without re-running ensureValidPayload's seq/CNAME checks: a caching
// zone installs whatever its upstream returned, unsigned, per
// SPEC_FULL.md's resolution of Open Question #1. Still needs the kind
// to project the right RR type.
func dominantKind(p RegistrationPayload) (RRKind, error) {
	if len(p.Addresses) == 0 {
		return 0, newErr(KindAddressMalformed, "addresses must not be empty", nil)
	}
	var dominant RRKind
	for _, addr := range p.Addresses {
		kind, _, err := classifyHost(addr)
		if err != nil {
			return 0, err
		}
		dominant = kind
	}
	return dominant, nil
}
