/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// ZoneRole is the tagged variant spec.md's Design Notes ask for: one
// data layout, three role-dispatched behaviours.
type ZoneRole int

const (
	RolePrimary ZoneRole = iota + 1
	RoleSecondary
	RoleCaching
)

func (r ZoneRole) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	case RoleCaching:
		return "caching"
	default:
		return "unknown"
	}
}

// SOA mirrors the DNS Start-of-Authority fields spec.md §3 names.
type SOA struct {
	Mname   string
	Rname   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// SOAConfig is the authoring-time subset of SOA; Email set/unset is what
// derives primary vs secondary (spec.md §4.2).
type SOAConfig struct {
	Email   string
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// ZoneConfig is spec.md §3's ZoneConfig entity.
type ZoneConfig struct {
	Name             string
	Authoritative    bool
	SOA              SOAConfig
	Primary          string // upstream, for secondary/caching
	QueryServers     []string
	RedirectRegister string // primary's API base URL, for secondary write redirection
	AllowTransfer    []*net.IPNet
}

// deriveRole implements spec.md §4.2's role derivation exactly.
func deriveRole(cfg ZoneConfig) ZoneRole {
	if cfg.Authoritative && cfg.SOA.Email != "" {
		return RolePrimary
	}
	if cfg.Authoritative && cfg.SOA.Email == "" {
		return RoleSecondary
	}
	return RoleCaching
}

// RedirectClient is the primary-write-redirection surface a secondary
// validator/flash zone calls into (spec.md §4.8 step 2).
type RedirectClient interface {
	RegisterValidator(payload RegistrationPayload, sig []byte) error
	RegisterFlashNode(payload RegistrationPayload, sig []byte, ch KnownChannel) error
}

// ZoneEngine is spec.md C5: per-zone state, role, SOA, NS, store handle,
// timers, resolver, primary-redirect client, plus the replication / TTL
// eviction / DNS answer logic that operates on them.
type ZoneEngine struct {
	Name Domain // apex name, e.g. "validators.example."
	Root Domain // == Name; kept distinct for findZone readability

	cfg      ZoneConfig
	role     ZoneRole
	store    *Store
	resolver Resolver
	redirect RedirectClient
	sched    *Scheduler

	soaTimer    Timer
	expireTimer Timer

	mu  sync.Mutex
	soa SOA
	ns  []string

	// isValidatorZone marks the zone that hosts the stake binding of
	// spec.md §4.8; only meaningful when role == RolePrimary or
	// RoleSecondary.
	isValidatorZone bool
	ledger          Ledger
	valCache        *validatorCache
}

// NewZoneEngine constructs a zone from configuration but does not start
// it — callers invoke Start once the hosting Registry can supply a
// redirect client (spec.md Design Notes: "break the cycle with explicit
// injection at start").
func NewZoneEngine(name string, cfg ZoneConfig, store *Store, ledger Ledger, isValidatorZone bool) *ZoneEngine {
	role := deriveRole(cfg)
	zd := &ZoneEngine{
		Name:            NewDomain(name),
		cfg:             cfg,
		role:            role,
		store:           store,
		isValidatorZone: isValidatorZone,
		ledger:          ledger,
		sched:           NewScheduler(),
	}
	zd.Root = zd.Name
	if role != RolePrimary {
		zd.resolver = NewResolver(cfg.QueryServers)
	}
	if ledger != nil {
		zd.valCache = newValidatorCache(ledger)
	}
	return zd
}

func (zd *ZoneEngine) Role() ZoneRole { return zd.role }

// Start wires up timers and performs the role-specific bring-up of
// spec.md §4.2.
func (zd *ZoneEngine) Start(redirect RedirectClient) error {
	if err := zd.store.EnsureZoneTables(zd.Name.String()); err != nil {
		return err
	}

	zd.mu.Lock()
	zd.ns = []string{zd.cfg.SOA.Email} // placeholder NS host derived from config in a real deployment
	switch zd.role {
	case RolePrimary:
		zd.soa = SOA{
			Mname:   zd.Name.String(),
			Rname:   zd.cfg.SOA.Email,
			Serial:  uint32(time.Now().Unix()),
			Refresh: zd.cfg.SOA.Refresh,
			Retry:   zd.cfg.SOA.Retry,
			Expire:  zd.cfg.SOA.Expire,
			Minimum: zd.cfg.SOA.Minimum,
		}
	case RoleSecondary:
		zd.redirect = redirect
	}
	zd.mu.Unlock()

	zd.soaTimer = zd.sched.NewTimer(func() { zd.updateSOA() })
	if zd.role != RolePrimary {
		zd.expireTimer = zd.sched.NewTimer(func() { zd.onExpireTimer() })
	}

	switch zd.role {
	case RoleSecondary:
		zd.expireTimer.Rearm(time.Duration(zd.cfg.SOA.Expire)*time.Second, false)
		zd.sched.run(func() { zd.updateSOA() })
	case RoleCaching:
		zd.sched.run(func() { zd.updateSOA() })
	}
	return nil
}

func (zd *ZoneEngine) onExpireTimer() {
	switch zd.role {
	case RoleSecondary:
		zd.disable()
	case RoleCaching:
		zd.updateTTLExpired()
	}
}

// updateSOA implements spec.md §4.2's SOA maintenance state machine.
func (zd *ZoneEngine) updateSOA() {
	switch zd.role {
	case RolePrimary:
		zd.mu.Lock()
		now := uint32(time.Now().Unix())
		if now > zd.soa.Serial {
			zd.soa.Serial = now
		} else {
			zd.soa.Serial++
		}
		zd.mu.Unlock()
		return

	case RoleSecondary, RoleCaching:
		soa, ttl, err := zd.resolver.QuerySOA(zd.Name.String())
		if err != nil {
			log.Printf("zone %s: updateSOA: upstream SOA query failed: %v", zd.Name, err)
			zd.mu.Lock()
			retry := zd.soa.Retry
			zd.mu.Unlock()
			if retry == 0 {
				retry = 90
			}
			zd.soaTimer.Rearm(time.Duration(retry)*time.Second, false)
			if zd.role == RoleSecondary {
				zd.expireTimer.Rearm(time.Duration(zd.cfg.SOA.Expire)*time.Second, false)
			}
			return
		}

		zd.mu.Lock()
		bumped := soa.Serial > zd.soa.Serial
		if bumped {
			zd.soa = SOA{
				Mname:   soa.Ns,
				Rname:   soa.Mbox,
				Serial:  soa.Serial,
				Refresh: soa.Refresh,
				Retry:   soa.Retry,
				Expire:  soa.Expire,
				Minimum: soa.Minttl,
			}
		}
		refresh := zd.soa.Refresh
		zd.mu.Unlock()

		if bumped && zd.role == RoleSecondary {
			zd.axfrTransfer()
		}

		var next time.Duration
		if zd.role == RoleSecondary {
			next = time.Duration(refresh) * time.Second
		} else {
			next = time.Duration(ttl) * time.Second
		}
		if next == 0 {
			next = 90 * time.Second
		}
		zd.soaTimer.Rearm(next, false)
		if zd.role == RoleSecondary {
			zd.expireTimer.Stop()
		}
	}
}

// axfrTransfer implements the secondary clear-then-insert transfer of
// spec.md §4.2 "AXFR transfer". The fetch happens before any mutation so
// a failed transfer leaves the prior zone content intact; the clear and
// re-insert both run inside this single scheduler job, and answer()
// runs on the same scheduler, so no DNS query can observe a torn state
// (spec.md §5 Ordering).
func (zd *ZoneEngine) axfrTransfer() {
	rrs, err := zd.resolver.QueryAXFR(zd.Name.String())
	if err != nil {
		log.Printf("zone %s: axfrTransfer: %v", zd.Name, err)
		return
	}

	grouped := groupByOwner(rrs)

	if err := zd.store.ClearAllAddresses(zd.Name.String()); err != nil {
		log.Printf("zone %s: axfrTransfer: clearing addresses: %v", zd.Name, err)
		return
	}
	for owner, ownerRRs := range grouped {
		if err := zd.importOwnerRRs(owner, ownerRRs, 0); err != nil {
			log.Printf("zone %s: axfrTransfer: importing %s: %v", zd.Name, owner, err)
		}
	}
}

// disable wipes the zone's address data once the SOA expire interval has
// elapsed without a successful refresh (spec.md §4.2 "Disable"). The SOA
// pull timer is left running so the zone can recover.
func (zd *ZoneEngine) disable() {
	log.Printf("zone %s: expire timer elapsed, disabling zone content", zd.Name)
	if err := zd.store.ClearAllAddresses(zd.Name.String()); err != nil {
		log.Printf("zone %s: disable: %v", zd.Name, err)
	}
}

// updateTTLExpired implements the caching TTL eviction sweep of spec.md
// §4.2.
func (zd *ZoneEngine) updateTTLExpired() {
	now := time.Now().Unix()
	expired, err := zd.store.GetExpiring(zd.Name.String(), now)
	if err != nil {
		log.Printf("zone %s: updateTTLExpired: %v", zd.Name, err)
		return
	}

	type key struct {
		pubkey string
		qtype  uint16
	}
	seen := map[key]bool{}
	for _, row := range expired {
		k := key{row.Pubkey, row.RRType}
		if seen[k] {
			continue
		}
		seen[k] = true

		owner := JoinDomain(row.Pubkey, zd.Name).String()
		rrs, ttl, err := zd.resolver.Query(owner, row.RRType)
		if err != nil {
			log.Printf("zone %s: updateTTLExpired: query %s/%d: %v", zd.Name, row.Pubkey, row.RRType, err)
			continue
		}
		if len(rrs) == 0 {
			if err := zd.store.DeleteAddressesForPubkey(zd.Name.String(), row.Pubkey); err != nil {
				log.Printf("zone %s: updateTTLExpired: evicting %s: %v", zd.Name, row.Pubkey, err)
			}
			continue
		}
		// Replace this (pubkey, qtype)'s rows: drop them, keep the rows of
		// other types, then import the fresh upstream answer.
		current, err := zd.store.GetAddresses(zd.Name.String(), row.Pubkey)
		if err == nil {
			err = zd.store.DeleteAddressesForPubkey(zd.Name.String(), row.Pubkey)
		}
		if err != nil {
			log.Printf("zone %s: updateTTLExpired: replacing %s: %v", zd.Name, row.Pubkey, err)
			continue
		}
		for _, r := range current {
			if r.RRType != row.RRType {
				_ = zd.store.UpsertAddress(zd.Name.String(), r.Pubkey, r.Address, r.RRType, r.TTL, r.Expires)
			}
		}
		if err := zd.importOwnerRRs(owner, rrs, nowUnix()+int64(ttl)); err != nil {
			log.Printf("zone %s: updateTTLExpired: reimporting %s: %v", zd.Name, row.Pubkey, err)
		}
	}

	zd.setTTLTimer()
}

// setTTLTimer rearms expireTimer to the earliest remaining expiry.
func (zd *ZoneEngine) setTTLTimer() {
	earliest, ok, err := zd.store.EarliestExpiry(zd.Name.String())
	if err != nil {
		log.Printf("zone %s: setTTLTimer: %v", zd.Name, err)
		return
	}
	if !ok {
		zd.expireTimer.Stop()
		return
	}
	d := time.Until(time.Unix(earliest, 0))
	if d < 0 {
		d = 0
	}
	zd.expireTimer.Rearm(d, false)
}

// groupByOwner buckets an AXFR answer stream by owner name, dropping the
// envelope SOA records (kept separately were we to re-derive our own SOA
// from it, which we don't: the zone's SOA comes from updateSOA).
func groupByOwner(rrs []dns.RR) map[string][]dns.RR {
	out := map[string][]dns.RR{}
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeSOA {
			continue
		}
		name := rr.Header().Name
		out[name] = append(out[name], rr)
	}
	return out
}

// importOwnerRRs persists the address rows implied by a set of RRs at a
// single owner name, used by both AXFR import and caching TTL refresh
// (spec.md "update").
func (zd *ZoneEngine) importOwnerRRs(owner string, rrs []dns.RR, expires int64) error {
	name := NewDomain(owner)
	pubkeyLabel, isURI := stripServiceLabels(name, zd.Name)
	pk, err := ParsePublicKey(pubkeyLabel)
	if err != nil {
		return err
	}
	_ = isURI

	for _, rr := range rrs {
		rtype, addr, ttl, err := addressFromRR(rr)
		if err != nil {
			continue
		}
		if err := zd.store.UpsertAddress(zd.Name.String(), pk.String(), addr, rtype, ttl, expires); err != nil {
			return err
		}
	}
	return nil
}

func addressFromRR(rr dns.RR) (rtype uint16, addr string, ttl uint32, err error) {
	switch v := rr.(type) {
	case *dns.A:
		return dns.TypeA, v.A.String(), v.Hdr.Ttl, nil
	case *dns.AAAA:
		return dns.TypeAAAA, v.AAAA.String(), v.Hdr.Ttl, nil
	case *dns.CNAME:
		return dns.TypeCNAME, v.Target, v.Hdr.Ttl, nil
	case *dns.URI:
		return dns.TypeURI, v.Target, v.Hdr.Ttl, nil
	default:
		return 0, "", 0, newErr(KindProtocolError, "unsupported RR in transfer", nil)
	}
}

func rowToRR(row AddressRow, owner string) (dns.RR, error) {
	hdr := dns.RR_Header{Name: owner, Class: dns.ClassINET, Ttl: row.TTL, Rrtype: row.RRType}
	switch row.RRType {
	case dns.TypeA:
		ip := net.ParseIP(row.Address)
		if ip == nil {
			return nil, newErr(KindProtocolError, "bad stored A address", nil)
		}
		return &dns.A{Hdr: hdr, A: ip}, nil
	case dns.TypeAAAA:
		ip := net.ParseIP(row.Address)
		if ip == nil {
			return nil, newErr(KindProtocolError, "bad stored AAAA address", nil)
		}
		return &dns.AAAA{Hdr: hdr, AAAA: ip}, nil
	case dns.TypeCNAME:
		return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(row.Address)}, nil
	case dns.TypeURI:
		return &dns.URI{Hdr: hdr, Priority: 1, Weight: 1, Target: row.Address}, nil
	default:
		return nil, newErr(KindProtocolError, "unknown stored RR type", nil)
	}
}

// stripServiceLabels removes a leading "_agora._tcp" service label (if
// present) and reports whether it was found, returning the bare pubkey
// label to parse.
func stripServiceLabels(name Domain, zoneRoot Domain) (pubkeyLabel string, hadServiceLabel bool) {
	labels := name.Labels()
	rootLabels := zoneRoot.Labels()
	// Labels beyond the root, left to right.
	own := labels[:len(labels)-len(rootLabels)]
	if len(own) >= 2 && own[0] == "_agora" && own[1] == "_tcp" {
		return own[2], true
	}
	if len(own) == 0 {
		return "", false
	}
	return own[0], false
}

// getPayload returns the reconstructed address rows for pubkey, if any.
func (zd *ZoneEngine) getPayload(pubkey string) ([]AddressRow, bool, error) {
	rows, err := zd.store.GetAddresses(zd.Name.String(), pubkey)
	if err != nil {
		return nil, false, newErr(KindUpstreamFailure, "reading store", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows, true, nil
}

// storeTypedPayload persists every record a TypedPayload projects to, and
// (for a primary validator zone only) the UTXO anchor; expires is 0 for
// primary/secondary per spec.md invariant 3.
func (zd *ZoneEngine) storeTypedPayload(name Domain, tp TypedPayload, expires int64) error {
	ttl := tp.Payload.TTL
	if ttl == 0 {
		ttl = 3600
	}
	var rerr error
	err := tp.toRR(name, ttl, func(rr dns.RR) {
		if rerr != nil {
			return
		}
		rtype, addr, rrttl, err := addressFromRR(rr)
		if err != nil {
			rerr = err
			return
		}
		rerr = zd.store.UpsertAddress(zd.Name.String(), tp.Payload.PublicKey.String(), addr, rtype, rrttl, expires)
	})
	if err != nil {
		return err
	}
	if rerr != nil {
		return rerr
	}
	if zd.isValidatorZone && zd.role == RolePrimary {
		return zd.store.UpsertUTXO(zd.Name.String(), tp.Payload.PublicKey.String(), tp.Payload.Seq, tp.UTXOHash)
	}
	return nil
}

// remove deletes every record for pubkey (explicit removal or the
// block-driven slashing sweep).
func (zd *ZoneEngine) remove(pubkey string) error {
	if err := zd.store.DeleteAddressesForPubkey(zd.Name.String(), pubkey); err != nil {
		return err
	}
	if zd.isValidatorZone {
		if err := zd.store.DeleteUTXO(zd.Name.String(), pubkey); err != nil {
			return err
		}
	}
	return nil
}

// bumpSOA is the primary-only SOA bump triggered by a write (register,
// remove, slashing sweep).
func (zd *ZoneEngine) bumpSOA() {
	if zd.role != RolePrimary {
		return
	}
	zd.mu.Lock()
	now := uint32(time.Now().Unix())
	if now > zd.soa.Serial {
		zd.soa.Serial = now
	} else {
		zd.soa.Serial++
	}
	zd.mu.Unlock()
}

func (zd *ZoneEngine) currentSOA() SOA {
	zd.mu.Lock()
	defer zd.mu.Unlock()
	return zd.soa
}

func (zd *ZoneEngine) nsNames() []string {
	zd.mu.Lock()
	defer zd.mu.Unlock()
	return zd.ns
}

func nowUnix() int64 { return time.Now().Unix() }
