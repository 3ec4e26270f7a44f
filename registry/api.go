/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// apiResponse is the envelope every handler returns, following the
// teacher's apihandler_funcs.go convention of a single Error/ErrorMsg
// pair rather than HTTP status codes carrying the whole story.
type apiResponse struct {
	Payload  *RegistrationPayload `json:"payload,omitempty"`
	Error    bool                 `json:"error"`
	ErrorMsg string               `json:"error_msg,omitempty"`
}

type registerRequest struct {
	Payload   RegistrationPayload `json:"payload"`
	Signature []byte              `json:"signature"`
}

type registerFlashRequest struct {
	registerRequest
	Channel KnownChannel `json:"channel"`
}

// NewAPIRouter builds the gorilla/mux router for spec.md §6's
// Application API.
func NewAPIRouter(reg *Registry, ledger Ledger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/validator/{pubkey}", getValidatorHandler(reg)).Methods(http.MethodGet)
	r.HandleFunc("/validator", postValidatorHandler(reg)).Methods(http.MethodPost)
	r.HandleFunc("/flash_node/{pubkey}", getFlashNodeHandler(reg)).Methods(http.MethodGet)
	r.HandleFunc("/flash_node", postFlashNodeHandler(reg, ledger)).Methods(http.MethodPost)
	r.HandleFunc("/zone/{name}/status", zoneStatusHandler(reg)).Methods(http.MethodGet)
	return r
}

func getValidatorHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		pk, err := ParsePublicKey(mux.Vars(req)["pubkey"])
		if err != nil {
			writeJSON(w, apiResponse{Error: true, ErrorMsg: err.Error()})
			return
		}
		payload, _, err := reg.GetValidatorInternal(pk)
		if err != nil {
			log.Printf("API: GetValidator(%s): %v", pk, err)
			writeJSON(w, apiResponse{Error: true, ErrorMsg: err.Error()})
			return
		}
		writeJSON(w, apiResponse{Payload: payload})
	}
}

func postValidatorHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body registerRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, apiResponse{Error: true, ErrorMsg: "malformed request body"})
			return
		}
		if err := reg.PostValidator(body.Payload, body.Signature); err != nil {
			writeJSON(w, apiResponse{Error: true, ErrorMsg: err.Error()})
			return
		}
		writeJSON(w, apiResponse{Payload: &body.Payload})
	}
}

func getFlashNodeHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		pk, err := ParsePublicKey(mux.Vars(req)["pubkey"])
		if err != nil {
			writeJSON(w, apiResponse{Error: true, ErrorMsg: err.Error()})
			return
		}
		payload, _, err := reg.GetFlashNode(pk)
		if err != nil {
			log.Printf("API: GetFlashNode(%s): %v", pk, err)
			writeJSON(w, apiResponse{Error: true, ErrorMsg: err.Error()})
			return
		}
		writeJSON(w, apiResponse{Payload: payload})
	}
}

func postFlashNodeHandler(reg *Registry, ledger Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body registerFlashRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, apiResponse{Error: true, ErrorMsg: "malformed request body"})
			return
		}
		if err := reg.PostFlashNode(body.Payload, body.Signature, body.Channel, ledger); err != nil {
			writeJSON(w, apiResponse{Error: true, ErrorMsg: err.Error()})
			return
		}
		writeJSON(w, apiResponse{Payload: &body.Payload})
	}
}

// zoneStatusHandler is the SPEC_FULL.md "Supplemented Features"
// read-only introspection endpoint: role, SOA, record count.
type zoneStatusResponse struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Serial  uint32 `json:"serial"`
	Records int    `json:"records,omitempty"`
}

func zoneStatusHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := NewDomain(mux.Vars(req)["name"])
		var zd *ZoneEngine
		switch {
		case reg.Realm.Name.Equal(name):
			zd = reg.Realm
		case reg.Validators.Name.Equal(name):
			zd = reg.Validators
		case reg.Flash.Name.Equal(name):
			zd = reg.Flash
		}
		if zd == nil {
			http.NotFound(w, req)
			return
		}
		pubkeys, _ := zd.store.EnumeratePubkeys(zd.Name.String())
		writeJSONValue(w, zoneStatusResponse{
			Name:    zd.Name.String(),
			Role:    zd.Role().String(),
			Serial:  zd.currentSOA().Serial,
			Records: len(pubkeys),
		})
	}
}

func writeJSON(w http.ResponseWriter, resp apiResponse) {
	writeJSONValue(w, resp)
}

func writeJSONValue(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: error encoding response: %v", err)
	}
}
