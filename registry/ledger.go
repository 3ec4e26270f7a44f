/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"sync/atomic"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Coins is an opaque on-chain amount; only zero-ness matters to this
// package (spec.md invariant 4).
type Coins uint64

// ValidatorInfo is what the ledger reports for a validator active at a
// given height.
type ValidatorInfo struct {
	Address string
	UTXO    string
}

// StakeOutput is a general (not necessarily currently-active) stake UTXO.
type StakeOutput struct {
	PublicKey PublicKey
	UTXO      string
}

// Block is the minimal block shape the block-driven invalidation hook
// needs to notice a height change.
type Block struct {
	Height uint64
}

// Ledger is the read-only view onto chain state this package consumes
// (spec.md §4.1). It is implemented externally; this package never
// constructs chain state itself.
type Ledger interface {
	Height() (uint64, error)
	GetValidators(height uint64) ([]ValidatorInfo, error)
	GetStakes() ([]StakeOutput, error)
	GetPenaltyDeposit(utxo string) (Coins, error)
	GetBlocksFrom(height uint64) (<-chan Block, error)
}

// validatorCache memoises the active validator set keyed by address for
// findStakeUTXO's registration lookups, so concurrent lookups never
// contend on a single mutex. Indexed with concurrent-map the way the teacher's
// rrset_cache.go keys RRsets by owner name for lock-free concurrent
// reads from multiple zone-engine goroutines.
type validatorCache struct {
	ledger     Ledger
	byAddress  cmap.ConcurrentMap[string, ValidatorInfo]
	heightSeen atomic.Uint64
	primed     atomic.Bool
}

func newValidatorCache(l Ledger) *validatorCache {
	return &validatorCache{ledger: l, byAddress: cmap.New[ValidatorInfo]()}
}

// refresh re-reads the ledger's active validator set if the chain has
// moved past heightSeen or the cache has never been primed.
func (vc *validatorCache) refresh() (uint64, error) {
	h, err := vc.ledger.Height()
	if err != nil {
		return 0, newErr(KindUpstreamFailure, "reading ledger height", err)
	}
	if vc.primed.Load() && h <= vc.heightSeen.Load() {
		return h, nil
	}
	vs, err := vc.ledger.GetValidators(h)
	if err != nil {
		return 0, newErr(KindUpstreamFailure, "reading validators at height", err)
	}
	fresh := cmap.New[ValidatorInfo]()
	for _, v := range vs {
		fresh.Set(v.Address, v)
	}
	vc.byAddress.MSet(fresh.Items())
	for _, k := range vc.byAddress.Keys() {
		if _, ok := fresh.Get(k); !ok {
			vc.byAddress.Remove(k)
		}
	}
	vc.heightSeen.Store(h)
	vc.primed.Store(true)
	return h, nil
}

// findStakeUTXO implements the "first from active validators-at-height,
// then from general stake outputs" search spec.md §4.8 step 3 requires.
func findStakeUTXO(vc *validatorCache, ledger Ledger, pk PublicKey) (string, error) {
	if _, err := vc.refresh(); err != nil {
		return "", err
	}
	pkStr := pk.String()
	if v, ok := vc.byAddress.Get(pkStr); ok {
		return v.UTXO, nil
	}

	stakes, err := ledger.GetStakes()
	if err != nil {
		return "", newErr(KindUpstreamFailure, "reading stake outputs", err)
	}
	for _, s := range stakes {
		if s.PublicKey == pk {
			return s.UTXO, nil
		}
	}
	return "", newErr(KindNoStake, "no stake UTXO found for "+pkStr, nil)
}
