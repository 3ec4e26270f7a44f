/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"fmt"

	"github.com/miekg/dns"
)

// Kind classifies a registry-level failure the way spec.md §7 names them.
// It is not an error type hierarchy: every failure is a *Error carrying
// one Kind, matched with errors.As.
type Kind int

const (
	_ Kind = iota
	KindProtocolError
	KindUnsupported
	KindRefused
	KindNameError
	KindStaleWrite
	KindSignatureInvalid
	KindAddressMalformed
	KindChannelInvalid
	KindNoStake
	KindUpstreamFailure
)

var kindNames = map[Kind]string{
	KindProtocolError:    "ProtocolError",
	KindUnsupported:      "Unsupported",
	KindRefused:          "Refused",
	KindNameError:        "NameError",
	KindStaleWrite:       "StaleWrite",
	KindSignatureInvalid: "SignatureInvalid",
	KindAddressMalformed: "AddressMalformed",
	KindChannelInvalid:   "ChannelInvalid",
	KindNoStake:          "NoStake",
	KindUpstreamFailure:  "UpstreamFailure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is the single error type the registry package returns for any
// domain-level failure. Match it with errors.As and a *Error target
// (var e *registry.Error; errors.As(err, &e)).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// rcodeForKind renders a domain error onto the DNS RCODE it must surface
// as per spec.md §7. Kinds that never arise on the DNS path (StaleWrite,
// SignatureInvalid, AddressMalformed, ChannelInvalid, NoStake) fall back
// to ServerFailure should they ever leak onto that path, which would be
// an internal invariant violation, not an expected outcome.
func rcodeForKind(k Kind) int {
	switch k {
	case KindProtocolError:
		return dns.RcodeFormatError
	case KindUnsupported:
		return dns.RcodeNotImplemented
	case KindRefused:
		return dns.RcodeRefused
	case KindNameError:
		return dns.RcodeNameError
	case KindUpstreamFailure:
		return dns.RcodeServerFailure
	default:
		return dns.RcodeServerFailure
	}
}
