/*
 * Copyright (c) 2026 Jedi06
 */

package registry

// Registry is spec.md C6: owns the three zones, routes API calls by
// zone, dispatches DNS queries to the matching zone by longest suffix,
// and hooks onAcceptedBlock.
type Registry struct {
	Realm      *ZoneEngine
	Validators *ZoneEngine
	Flash      *ZoneEngine

	upstream UpstreamRegistryClient
}

// UpstreamRegistryClient is what getValidatorInternal forwards a miss to
// (spec.md §4.3): the application-API client of some other instance of
// this same service, used the way a caching zone reaches further
// upstream than its own DNS resolver.
type UpstreamRegistryClient interface {
	GetValidator(pk PublicKey) (*RegistrationPayload, bool, error)
	GetFlashNode(pk PublicKey) (*RegistrationPayload, bool, error)
}

// NewRegistry wires the three zones and the upstream registry client
// together. It does not start the zones; Start does that.
func NewRegistry(realm, validators, flash *ZoneEngine, upstream UpstreamRegistryClient) *Registry {
	return &Registry{Realm: realm, Validators: validators, Flash: flash, upstream: upstream}
}

// Start brings up every zone. The realm zone gets no RedirectClient;
// the validators and flash zones get the given clients, which a zone
// only uses when its role is secondary (nil is fine otherwise).
func (r *Registry) Start(validatorsRedirect, flashRedirect RedirectClient) error {
	if err := r.Realm.Start(nil); err != nil {
		return err
	}
	if err := r.Validators.Start(validatorsRedirect); err != nil {
		return err
	}
	if err := r.Flash.Start(flashRedirect); err != nil {
		return err
	}
	return nil
}

func (r *Registry) zones() []*ZoneEngine {
	return []*ZoneEngine{r.Validators, r.Flash, r.Realm}
}

// findMatch is the result of findZone: which zone answers, and whether
// the queried name is exactly that zone's apex ("exact"/matches=true) or
// merely a descendant of it ("owns"/matches=false).
type findMatch struct {
	zone    *ZoneEngine
	matches bool
}

// findZone implements spec.md §4.3: walk the name up by stripping
// left-most labels until a zone's root equals the remaining suffix,
// tracking whether the very first (longest) match was exact or merely
// an ancestor. realm is the default when nothing more specific matches,
// because the realm root is itself a suffix of every configured zone
// root.
func (r *Registry) findZone(name Domain) *findMatch {
	candidate := name
	first := true
	for {
		for _, z := range r.zones() {
			if z.Root.Equal(candidate) {
				return &findMatch{zone: z, matches: first}
			}
		}
		if candidate == "." || len(candidate.Labels()) == 0 {
			return nil
		}
		candidate = candidate.StripLeftLabel()
		first = false
	}
}

// GetValidator reads a validator payload directly from the Validators
// zone's local store (no upstream fallback).
func (r *Registry) GetValidator(pk PublicKey) (*RegistrationPayload, bool, error) {
	return r.Validators.GetPayload(pk)
}

// GetValidatorInternal additionally forwards a miss to the upstream
// registry client and, on a caching zone, installs the result with an
// empty signature (spec.md §4.3).
func (r *Registry) GetValidatorInternal(pk PublicKey) (*RegistrationPayload, bool, error) {
	p, ok, err := r.Validators.GetPayload(pk)
	if err != nil || ok {
		return p, ok, err
	}
	if r.upstream == nil {
		return nil, false, nil
	}
	p, ok, err = r.upstream.GetValidator(pk)
	if err != nil || !ok {
		return p, ok, err
	}
	if r.Validators.Role() == RoleCaching {
		kind, kindErr := dominantKind(*p)
		if kindErr == nil {
			expires := nowUnix() + int64(p.TTL)
			_ = r.Validators.InstallFromUpstream(*p, kind, p.TTL, expires)
		}
	}
	return p, true, nil
}

func (r *Registry) GetFlashNode(pk PublicKey) (*RegistrationPayload, bool, error) {
	return r.Flash.GetPayload(pk)
}

func (r *Registry) PostValidator(payload RegistrationPayload, sig []byte) error {
	return r.Validators.RegisterValidator(payload, sig)
}

func (r *Registry) PostFlashNode(payload RegistrationPayload, sig []byte, ch KnownChannel, ledger Ledger) error {
	return r.Flash.RegisterFlashNode(payload, sig, ch, ledger)
}

// OnAcceptedBlock implements spec.md §4.3's block hook: a primary
// validator zone sweeps every payload and removes any whose stake has
// been slashed to zero; a secondary validator zone, if the active
// validator set changed while a refresh is pending, short-circuits
// straight to updateSOA (modelling a DNS NOTIFY, since this spec is
// pull-only otherwise).
func (r *Registry) OnAcceptedBlock(ledger Ledger, validatorSetChanged bool) {
	switch r.Validators.Role() {
	case RolePrimary:
		r.sweepSlashedValidators(ledger)
	case RoleSecondary:
		if validatorSetChanged && r.Validators.soaTimer != nil && r.Validators.soaTimer.Pending() {
			r.Validators.soaTimer.Stop()
			r.Validators.sched.run(func() { r.Validators.updateSOA() })
		}
	}
}

func (r *Registry) sweepSlashedValidators(ledger Ledger) {
	zd := r.Validators
	zd.sched.RunSync(func() {
		pubkeys, err := zd.store.EnumerateAllUTXOPubkeys(zd.Name.String())
		if err != nil {
			return
		}
		removed := false
		for _, pk := range pubkeys {
			_, utxo, ok, err := zd.store.GetUTXO(zd.Name.String(), pk)
			if err != nil || !ok {
				continue
			}
			deposit, err := ledger.GetPenaltyDeposit(utxo)
			if err != nil {
				continue
			}
			if deposit == 0 {
				if err := zd.remove(pk); err == nil {
					removed = true
				}
			}
		}
		if removed {
			zd.bumpSOA()
		}
	})
}
