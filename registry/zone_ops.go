/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import "github.com/miekg/dns"

// GetPayload reads the current payload for pubkey out of this zone's
// store, reconstructing it from the persisted address rows.
func (zd *ZoneEngine) GetPayload(pk PublicKey) (*RegistrationPayload, bool, error) {
	var payload *RegistrationPayload
	var found bool
	var opErr error

	zd.sched.RunSync(func() {
		rows, ok, err := zd.getPayload(pk.String())
		if err != nil {
			opErr = err
			return
		}
		if !ok {
			return
		}
		seq, _, hasSeq, err := zd.store.GetUTXO(zd.Name.String(), pk.String())
		if err != nil {
			opErr = err
			return
		}
		var addrs []string
		var ttl uint32
		for _, r := range rows {
			if r.RRType == dns.TypeURI {
				addrs = append(addrs, r.Address)
			}
			if r.TTL > ttl {
				ttl = r.TTL
			}
		}
		if len(addrs) == 0 {
			// CNAME-only payloads have no URI row for the host itself in
			// rare reconstruction paths; fall back to whatever rows exist.
			for _, r := range rows {
				addrs = append(addrs, r.Address)
			}
		}
		p := RegistrationPayload{PublicKey: pk, Addresses: addrs, TTL: ttl}
		if hasSeq {
			p.Seq = seq
		}
		payload = &p
		found = true
	})
	return payload, found, opErr
}

// RegisterValidator implements spec.md §4.8. On a secondary zone it
// forwards the write to the configured primary; on a primary it
// performs the stake lookup and persists the result.
func (zd *ZoneEngine) RegisterValidator(payload RegistrationPayload, sig []byte) error {
	if len(payload.Addresses) == 0 {
		return newErr(KindAddressMalformed, "addresses must not be empty", nil)
	}

	if zd.role == RoleSecondary {
		if len(sig) == 0 {
			return newErr(KindSignatureInvalid, "signature required for redirected registration", nil)
		}
		if zd.redirect == nil {
			return newErr(KindUpstreamFailure, "no redirect client configured", nil)
		}
		return zd.redirect.RegisterValidator(payload, sig)
	}
	if zd.role != RolePrimary {
		return newErr(KindRefused, "validator registration not accepted on a caching zone", nil)
	}
	if len(sig) == 0 {
		return newErr(KindSignatureInvalid, "signature required", nil)
	}

	var opErr error
	zd.sched.RunSync(func() {
		opErr = zd.registerValidatorLocked(payload, sig)
	})
	return opErr
}

func (zd *ZoneEngine) registerValidatorLocked(payload RegistrationPayload, sig []byte) error {
	previous := zd.previousPayload(payload.PublicKey)
	kind, err := ensureValidPayload(payload, previous)
	if err != nil {
		return err
	}

	utxo, err := findStakeUTXO(zd.valCache, zd.ledger, payload.PublicKey)
	if err != nil {
		return err
	}

	tp := TypedPayload{Kind: kind, Payload: payload, UTXOHash: utxo, Signature: sig}
	if err := zd.storeTypedPayload(zd.Name, tp, 0); err != nil {
		return err
	}
	zd.bumpSOA()
	return nil
}

// previousPayload fetches the seq currently on file, for the StaleWrite
// check in ensureValidPayload. A nil previous means no record exists
// yet.
func (zd *ZoneEngine) previousPayload(pk PublicKey) *RegistrationPayload {
	seq, _, ok, err := zd.store.GetUTXO(zd.Name.String(), pk.String())
	if err == nil && ok {
		return &RegistrationPayload{PublicKey: pk, Seq: seq}
	}
	// Non-validator zones (flash) have no UTXO anchor; fall back to
	// inspecting whether any address rows exist at all, using seq 0 so
	// any non-negative new seq is accepted (first write).
	rows, _, _ := zd.getPayload(pk.String())
	if len(rows) > 0 {
		return &RegistrationPayload{PublicKey: pk, Seq: 0}
	}
	return nil
}

// RegisterFlashNode implements the flash-node POST path (spec.md §6):
// validates the payload and the channel, then writes (or redirects).
func (zd *ZoneEngine) RegisterFlashNode(payload RegistrationPayload, sig []byte, ch KnownChannel, ledger Ledger) error {
	if len(sig) == 0 {
		return newErr(KindSignatureInvalid, "signature required", nil)
	}
	if zd.role == RoleSecondary {
		if zd.redirect == nil {
			return newErr(KindUpstreamFailure, "no redirect client configured", nil)
		}
		return zd.redirect.RegisterFlashNode(payload, sig, ch)
	}
	if zd.role != RolePrimary {
		return newErr(KindRefused, "flash node registration not accepted on a caching zone", nil)
	}

	if err := validateChannel(ch, ledger); err != nil {
		return err
	}

	var opErr error
	zd.sched.RunSync(func() {
		previous := zd.previousPayload(payload.PublicKey)
		kind, err := ensureValidPayload(payload, previous)
		if err != nil {
			opErr = err
			return
		}
		tp := TypedPayload{Kind: kind, Payload: payload, Signature: sig}
		if err := zd.storeTypedPayload(zd.Name, tp, 0); err != nil {
			opErr = err
			return
		}
		zd.bumpSOA()
	})
	return opErr
}

// validateChannel checks a flash channel descriptor against the ledger's
// block at the claimed height (spec.md RegistrationPayload for flash
// nodes, §6).
func validateChannel(ch KnownChannel, ledger Ledger) error {
	if ledger == nil {
		return newErr(KindChannelInvalid, "no ledger configured to validate channel", nil)
	}
	blocks, err := ledger.GetBlocksFrom(ch.Height)
	if err != nil {
		return newErr(KindUpstreamFailure, "reading ledger blocks", err)
	}
	if _, ok := <-blocks; !ok {
		return newErr(KindChannelInvalid, "no block at claimed channel height", nil)
	}
	return nil
}

// InstallFromUpstream is the caching-zone trust boundary named in
// spec.md's Design Notes Open Question #1: a caching zone installs a
// payload it fetched from upstream with no signature to check. It is
// deliberately not reachable from the application API (api.go never
// calls it); only the registry's forwarded-miss path (dispatcher.go)
// uses it. getAndCacheRecords (dnsanswer.go) writes its fetched rows to
// the store directly.
func (zd *ZoneEngine) InstallFromUpstream(payload RegistrationPayload, kind RRKind, ttl uint32, expires int64) error {
	if zd.role != RoleCaching {
		return newErr(KindRefused, "InstallFromUpstream is caching-zone only", nil)
	}
	payload.TTL = ttl
	tp := TypedPayload{Kind: kind, Payload: payload}
	var opErr error
	zd.sched.RunSync(func() {
		opErr = zd.storeTypedPayload(zd.Name, tp, expires)
	})
	return opErr
}

// Remove deletes every record for pubkey (explicit API removal); bumps
// SOA on a primary.
func (zd *ZoneEngine) Remove(pk PublicKey) error {
	var opErr error
	zd.sched.RunSync(func() {
		opErr = zd.remove(pk.String())
		if opErr == nil {
			zd.bumpSOA()
		}
	})
	return opErr
}
