/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import "testing"

func newTestRegistry(t *testing.T, ledger Ledger) (*Registry, *Store) {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	realmCfg := ZoneConfig{Authoritative: true, SOA: SOAConfig{Email: "hostmaster@realm."}}
	validatorsCfg := ZoneConfig{Authoritative: true, SOA: SOAConfig{Email: "hostmaster@realm."}}
	flashCfg := ZoneConfig{Authoritative: true, SOA: SOAConfig{Email: "hostmaster@realm."}}

	realm := NewZoneEngine("realm.", realmCfg, store, nil, false)
	validators := NewZoneEngine("validators.realm.", validatorsCfg, store, ledger, true)
	flash := NewZoneEngine("flash.realm.", flashCfg, store, nil, false)

	reg := NewRegistry(realm, validators, flash, nil)
	if err := reg.Start(nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return reg, store
}

func TestFindZoneLongestSuffixWins(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeLedger())

	cases := []struct {
		name    string
		want    *ZoneEngine
		matches bool
	}{
		{"pk1.validators.realm.", reg.Validators, false},
		{"validators.realm.", reg.Validators, true},
		{"_agora._tcp.pk1.flash.realm.", reg.Flash, false},
		{"realm.", reg.Realm, true},
		{"something.else.realm.", reg.Realm, false},
	}
	for _, c := range cases {
		got := reg.findZone(NewDomain(c.name))
		if got == nil {
			t.Errorf("findZone(%q) = nil, want %v", c.name, c.want)
			continue
		}
		if got.zone != c.want {
			t.Errorf("findZone(%q).zone = %v, want %v", c.name, got.zone.Name, c.want.Name)
		}
		if got.matches != c.matches {
			t.Errorf("findZone(%q).matches = %v, want %v", c.name, got.matches, c.matches)
		}
	}
}

func TestFindZoneOutsideRealm(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeLedger())
	if got := reg.findZone(NewDomain("example.com.")); got != nil {
		t.Errorf("findZone(example.com.) = %v, want nil", got)
	}
}

func TestOnAcceptedBlockSweepsSlashedValidators(t *testing.T) {
	ledger := newFakeLedger()
	alive := testPubKey(1)
	slashed := testPubKey(2)
	ledger.stakes[alive.String()] = "utxo-alive"
	ledger.stakes[slashed.String()] = "utxo-slashed"
	ledger.deposits["utxo-alive"] = 500
	ledger.deposits["utxo-slashed"] = 0

	reg, _ := newTestRegistry(t, ledger)
	for _, p := range []RegistrationPayload{
		{PublicKey: alive, Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}},
		{PublicKey: slashed, Seq: 1, Addresses: []string{"agora://5.6.7.8:2826"}},
	} {
		if err := reg.Validators.RegisterValidator(p, []byte("sig")); err != nil {
			t.Fatalf("RegisterValidator(%x): %v", p.PublicKey, err)
		}
	}

	reg.OnAcceptedBlock(ledger, false)

	if _, found, err := reg.Validators.GetPayload(alive); err != nil || !found {
		t.Fatalf("alive validator should survive the sweep, found=%v err=%v", found, err)
	}
	if _, found, err := reg.Validators.GetPayload(slashed); err != nil || found {
		t.Fatalf("slashed validator should be removed by the sweep, found=%v err=%v", found, err)
	}
}

func TestGetValidatorInternalInstallsFromUpstreamOnCachingZone(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	cachingCfg := ZoneConfig{Authoritative: false}
	validators := NewZoneEngine("validators.realm.", cachingCfg, store, nil, true)
	realm := NewZoneEngine("realm.", ZoneConfig{Authoritative: true, SOA: SOAConfig{Email: "hostmaster@realm."}}, store, nil, false)
	flash := NewZoneEngine("flash.realm.", ZoneConfig{Authoritative: true, SOA: SOAConfig{Email: "hostmaster@realm."}}, store, nil, false)

	pk := testPubKey(6)
	upstreamPayload := &RegistrationPayload{PublicKey: pk, Addresses: []string{"agora://9.9.9.9:2826"}, TTL: 60}
	upstream := &stubUpstream{validator: upstreamPayload}

	reg := NewRegistry(realm, validators, flash, upstream)
	if err := reg.Start(nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got, found, err := reg.GetValidatorInternal(pk)
	if err != nil || !found {
		t.Fatalf("GetValidatorInternal: found=%v err=%v", found, err)
	}
	if got.PublicKey != pk {
		t.Errorf("PublicKey = %x, want %x", got.PublicKey, pk)
	}

	cached, found, err := reg.Validators.GetPayload(pk)
	if err != nil || !found {
		t.Fatalf("expected payload installed into the caching zone's store, found=%v err=%v", found, err)
	}
	if len(cached.Addresses) != 1 || cached.Addresses[0] != "agora://9.9.9.9:2826" {
		t.Errorf("cached Addresses = %v", cached.Addresses)
	}
}

type stubUpstream struct {
	validator *RegistrationPayload
	flash     *RegistrationPayload
}

func (u *stubUpstream) GetValidator(pk PublicKey) (*RegistrationPayload, bool, error) {
	if u.validator == nil || u.validator.PublicKey != pk {
		return nil, false, nil
	}
	return u.validator, true, nil
}

func (u *stubUpstream) GetFlashNode(pk PublicKey) (*RegistrationPayload, bool, error) {
	if u.flash == nil || u.flash.PublicKey != pk {
		return nil, false, nil
	}
	return u.flash, true, nil
}
