/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import "testing"

func TestPublicKeyRoundTrip(t *testing.T) {
	var pk PublicKey
	for i := range pk {
		pk[i] = byte(i * 7)
	}

	hrpForm := pk.String()
	got, err := ParsePublicKey(hrpForm)
	if err != nil {
		t.Fatalf("ParsePublicKey(%q): %v", hrpForm, err)
	}
	if got != pk {
		t.Errorf("round trip via HRP form: got %x, want %x", got, pk)
	}

	bareForm := pk.Bare()
	got, err = ParsePublicKey(bareForm)
	if err != nil {
		t.Fatalf("ParsePublicKey(%q): %v", bareForm, err)
	}
	if got != pk {
		t.Errorf("round trip via bare form: got %x, want %x", got, pk)
	}
}

func TestParsePublicKeyCaseInsensitive(t *testing.T) {
	var pk PublicKey
	for i := range pk {
		pk[i] = byte(255 - i)
	}
	upper := pk.String()
	for i, r := range upper {
		if r >= 'a' && r <= 'z' {
			upper = upper[:i] + string(r-32) + upper[i+1:]
		}
	}
	got, err := ParsePublicKey(upper)
	if err != nil {
		t.Fatalf("ParsePublicKey(%q): %v", upper, err)
	}
	if got != pk {
		t.Errorf("uppercased HRP form did not round trip: got %x, want %x", got, pk)
	}
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	cases := []string{"", "boa1notvalidchecksum", "not-bech32-at-all!!", "boa1"}
	for _, c := range cases {
		if _, err := ParsePublicKey(c); err == nil {
			t.Errorf("ParsePublicKey(%q) should have failed", c)
		}
	}
}

func TestPublicKeyIsZero(t *testing.T) {
	var pk PublicKey
	if !pk.IsZero() {
		t.Errorf("zero value should report IsZero")
	}
	pk[0] = 1
	if pk.IsZero() {
		t.Errorf("non-zero value should not report IsZero")
	}
}
