/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIPostThenGetValidator(t *testing.T) {
	ledger := newFakeLedger()
	pk := testPubKey(11)
	ledger.stakes[pk.String()] = "utxo-1"
	ledger.deposits["utxo-1"] = 777

	reg, _ := newTestRegistry(t, ledger)
	router := NewAPIRouter(reg, ledger)

	body, _ := json.Marshal(registerRequest{
		Payload:   RegistrationPayload{PublicKey: pk, Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}},
		Signature: []byte("sig"),
	})
	req := httptest.NewRequest(http.MethodPost, "/validator", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var postResp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&postResp); err != nil {
		t.Fatalf("decoding POST response: %v", err)
	}
	if postResp.Error {
		t.Fatalf("POST /validator returned error: %s", postResp.ErrorMsg)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/validator/"+pk.String(), nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)

	var getResp apiResponse
	if err := json.NewDecoder(getRec.Body).Decode(&getResp); err != nil {
		t.Fatalf("decoding GET response: %v", err)
	}
	if getResp.Error || getResp.Payload == nil {
		t.Fatalf("GET /validator/%s returned error: %s", pk, getResp.ErrorMsg)
	}
	if len(getResp.Payload.Addresses) != 1 || getResp.Payload.Addresses[0] != "agora://1.2.3.4:2826" {
		t.Errorf("Addresses = %v", getResp.Payload.Addresses)
	}
}

func TestAPIGetValidatorUnknownPubkey(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeLedger())
	router := NewAPIRouter(reg, newFakeLedger())

	req := httptest.NewRequest(http.MethodGet, "/validator/"+testPubKey(3).String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error || resp.Payload != nil {
		t.Fatalf("expected a non-error, empty response for an unregistered pubkey, got %+v", resp)
	}
}

func TestAPIGetValidatorMalformedPubkey(t *testing.T) {
	reg, _ := newTestRegistry(t, newFakeLedger())
	router := NewAPIRouter(reg, newFakeLedger())

	req := httptest.NewRequest(http.MethodGet, "/validator/not-a-valid-key", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Error {
		t.Fatalf("expected an error response for a malformed pubkey")
	}
}

func TestAPIZoneStatus(t *testing.T) {
	ledger := newFakeLedger()
	pk := testPubKey(22)
	ledger.stakes[pk.String()] = "utxo-1"
	ledger.deposits["utxo-1"] = 1

	reg, _ := newTestRegistry(t, ledger)
	if err := reg.Validators.RegisterValidator(
		RegistrationPayload{PublicKey: pk, Seq: 1, Addresses: []string{"agora://1.2.3.4:2826"}},
		[]byte("sig"),
	); err != nil {
		t.Fatalf("RegisterValidator: %v", err)
	}

	router := NewAPIRouter(reg, ledger)
	req := httptest.NewRequest(http.MethodGet, "/zone/validators.realm./status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var status zoneStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decoding zone status: %v", err)
	}
	if status.Role != "primary" {
		t.Errorf("Role = %q, want primary", status.Role)
	}
	if status.Records != 1 {
		t.Errorf("Records = %d, want 1", status.Records)
	}
}
