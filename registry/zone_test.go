/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"errors"
	"testing"
)

type fakeLedger struct {
	validators map[string]string // pubkey -> utxo
	stakes     map[string]string // pubkey -> utxo
	deposits   map[string]Coins
	height     uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		validators: map[string]string{},
		stakes:     map[string]string{},
		deposits:   map[string]Coins{},
	}
}

func (l *fakeLedger) Height() (uint64, error) { return l.height, nil }

func (l *fakeLedger) GetValidators(height uint64) ([]ValidatorInfo, error) {
	var out []ValidatorInfo
	for pk, utxo := range l.validators {
		out = append(out, ValidatorInfo{Address: pk, UTXO: utxo})
	}
	return out, nil
}

func (l *fakeLedger) GetStakes() ([]StakeOutput, error) {
	var out []StakeOutput
	for pk, utxo := range l.stakes {
		pubkey, err := ParsePublicKey(pk)
		if err != nil {
			continue
		}
		out = append(out, StakeOutput{PublicKey: pubkey, UTXO: utxo})
	}
	return out, nil
}

func (l *fakeLedger) GetPenaltyDeposit(utxo string) (Coins, error) {
	return l.deposits[utxo], nil
}

func (l *fakeLedger) GetBlocksFrom(height uint64) (<-chan Block, error) {
	ch := make(chan Block, 1)
	ch <- Block{Height: height}
	close(ch)
	return ch, nil
}

func TestDeriveRole(t *testing.T) {
	cases := []struct {
		cfg  ZoneConfig
		want ZoneRole
	}{
		{ZoneConfig{Authoritative: true, SOA: SOAConfig{Email: "hostmaster@realm."}}, RolePrimary},
		{ZoneConfig{Authoritative: true}, RoleSecondary},
		{ZoneConfig{Authoritative: false}, RoleCaching},
	}
	for _, c := range cases {
		if got := deriveRole(c.cfg); got != c.want {
			t.Errorf("deriveRole(%+v) = %v, want %v", c.cfg, got, c.want)
		}
	}
}

func newPrimaryValidatorZone(t *testing.T, ledger Ledger) *ZoneEngine {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := ZoneConfig{
		Authoritative: true,
		SOA:           SOAConfig{Email: "hostmaster@realm.", Refresh: 3600, Retry: 900, Expire: 604800, Minimum: 60},
	}
	zd := NewZoneEngine("validators.realm.", cfg, store, ledger, true)
	if err := zd.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return zd
}

func TestRegisterAndGetValidatorRoundTrip(t *testing.T) {
	ledger := newFakeLedger()
	pk := testPubKey(9)
	ledger.stakes[pk.String()] = "utxo-stake-1"
	ledger.deposits["utxo-stake-1"] = 1000

	zd := newPrimaryValidatorZone(t, ledger)

	payload := RegistrationPayload{PublicKey: pk, Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}}
	if err := zd.RegisterValidator(payload, []byte("sig")); err != nil {
		t.Fatalf("RegisterValidator: %v", err)
	}

	got, found, err := zd.GetPayload(pk)
	if err != nil || !found {
		t.Fatalf("GetPayload: found=%v err=%v", found, err)
	}
	if got.PublicKey != pk {
		t.Errorf("PublicKey = %x, want %x", got.PublicKey, pk)
	}
	if len(got.Addresses) != 1 || got.Addresses[0] != "agora://1.2.3.4:2826" {
		t.Errorf("Addresses = %v", got.Addresses)
	}
}

func TestRegisterValidatorRejectsStaleWrite(t *testing.T) {
	ledger := newFakeLedger()
	pk := testPubKey(9)
	ledger.stakes[pk.String()] = "utxo-stake-1"
	ledger.deposits["utxo-stake-1"] = 1000

	zd := newPrimaryValidatorZone(t, ledger)

	payload := RegistrationPayload{PublicKey: pk, Seq: 5, Addresses: []string{"agora://1.2.3.4:2826"}}
	if err := zd.RegisterValidator(payload, []byte("sig")); err != nil {
		t.Fatalf("first RegisterValidator: %v", err)
	}

	stale := RegistrationPayload{PublicKey: pk, Seq: 4, Addresses: []string{"agora://5.6.7.8:2826"}}
	err := zd.RegisterValidator(stale, []byte("sig"))
	var rerr *Error
	if err == nil || !errors.As(err, &rerr) || rerr.Kind != KindStaleWrite {
		t.Fatalf("expected StaleWrite, got %v", err)
	}
}

func TestRegisterValidatorRequiresSignature(t *testing.T) {
	zd := newPrimaryValidatorZone(t, newFakeLedger())
	payload := RegistrationPayload{PublicKey: testPubKey(1), Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}}
	err := zd.RegisterValidator(payload, nil)
	var rerr *Error
	if err == nil || !errors.As(err, &rerr) || rerr.Kind != KindSignatureInvalid {
		t.Fatalf("expected SignatureInvalid, got %v", err)
	}
}

func TestRegisterValidatorNoStake(t *testing.T) {
	zd := newPrimaryValidatorZone(t, newFakeLedger())
	payload := RegistrationPayload{PublicKey: testPubKey(1), Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}}
	err := zd.RegisterValidator(payload, []byte("sig"))
	var rerr *Error
	if err == nil || !errors.As(err, &rerr) || rerr.Kind != KindNoStake {
		t.Fatalf("expected NoStake, got %v", err)
	}
}

func TestRemoveClearsPayload(t *testing.T) {
	ledger := newFakeLedger()
	pk := testPubKey(3)
	ledger.stakes[pk.String()] = "utxo-1"
	ledger.deposits["utxo-1"] = 500

	zd := newPrimaryValidatorZone(t, ledger)
	payload := RegistrationPayload{PublicKey: pk, Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}}
	if err := zd.RegisterValidator(payload, []byte("sig")); err != nil {
		t.Fatalf("RegisterValidator: %v", err)
	}

	if err := zd.Remove(pk); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, found, err := zd.GetPayload(pk)
	if err != nil || found {
		t.Fatalf("expected payload gone after Remove, found=%v err=%v", found, err)
	}
}

func TestInstallFromUpstreamCachingOnly(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()
	cfg := ZoneConfig{Authoritative: false}
	zd := NewZoneEngine("validators.realm.", cfg, store, nil, true)
	if err := zd.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	pk := testPubKey(4)
	payload := RegistrationPayload{PublicKey: pk, Addresses: []string{"agora://1.2.3.4:2826"}}
	if err := zd.InstallFromUpstream(payload, KindA, 300, nowUnix()+300); err != nil {
		t.Fatalf("InstallFromUpstream: %v", err)
	}
	_, found, err := zd.GetPayload(pk)
	if err != nil || !found {
		t.Fatalf("GetPayload after install: found=%v err=%v", found, err)
	}
}

func TestInstallFromUpstreamRejectedOnPrimary(t *testing.T) {
	zd := newPrimaryValidatorZone(t, newFakeLedger())
	payload := RegistrationPayload{PublicKey: testPubKey(5), Addresses: []string{"agora://1.2.3.4:2826"}}
	err := zd.InstallFromUpstream(payload, KindA, 300, nowUnix()+300)
	var rerr *Error
	if err == nil || !errors.As(err, &rerr) || rerr.Kind != KindRefused {
		t.Fatalf("expected Refused, got %v", err)
	}
}
