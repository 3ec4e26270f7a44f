/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"testing"

	"github.com/miekg/dns"
)

func TestToRRAddressOrdersHostThenURI(t *testing.T) {
	tp := TypedPayload{
		Kind: KindA,
		Payload: RegistrationPayload{
			PublicKey: testPubKey(1),
			Addresses: []string{"agora://1.2.3.4:2826"},
		},
	}
	var rrs []dns.RR
	if err := tp.toRR(NewDomain("pk1.validators.realm."), 300, func(rr dns.RR) { rrs = append(rrs, rr) }); err != nil {
		t.Fatalf("toRR: %v", err)
	}
	if len(rrs) != 2 {
		t.Fatalf("got %d RRs, want 2", len(rrs))
	}
	if _, ok := rrs[0].(*dns.A); !ok {
		t.Errorf("rrs[0] = %T, want *dns.A", rrs[0])
	}
	uri, ok := rrs[1].(*dns.URI)
	if !ok {
		t.Fatalf("rrs[1] = %T, want *dns.URI", rrs[1])
	}
	if uri.Hdr.Name != "_agora._tcp.pk1.validators.realm." {
		t.Errorf("URI owner = %q, want _agora._tcp.pk1.validators.realm.", uri.Hdr.Name)
	}
}

func TestToRRCNAME(t *testing.T) {
	tp := TypedPayload{
		Kind: KindCNAME,
		Payload: RegistrationPayload{
			PublicKey: testPubKey(1),
			Addresses: []string{"agora://node.example.com:2826"},
		},
	}
	var rrs []dns.RR
	if err := tp.toRR(NewDomain("pk1.validators.realm."), 300, func(rr dns.RR) { rrs = append(rrs, rr) }); err != nil {
		t.Fatalf("toRR: %v", err)
	}
	cname, ok := rrs[0].(*dns.CNAME)
	if !ok {
		t.Fatalf("rrs[0] = %T, want *dns.CNAME", rrs[0])
	}
	if cname.Target != "node.example.com." {
		t.Errorf("CNAME target = %q, want node.example.com.", cname.Target)
	}
}

func TestMakeFromURIRRset(t *testing.T) {
	pk := testPubKey(7)
	name := JoinDomain(pk.String(), NewDomain("validators.realm."))
	rrs := []dns.RR{
		&dns.URI{
			Hdr:      dns.RR_Header{Name: string(uriOwner(name)), Rrtype: dns.TypeURI, Class: dns.ClassINET, Ttl: 60},
			Priority: 1, Weight: 1,
			Target: "agora://1.2.3.4:2826",
		},
	}
	tp, err := makeFromURIRRset(name, rrs)
	if err != nil {
		t.Fatalf("makeFromURIRRset: %v", err)
	}
	if tp.Kind != KindURI {
		t.Errorf("Kind = %v, want KindURI", tp.Kind)
	}
	if tp.Payload.PublicKey != pk {
		t.Errorf("PublicKey = %x, want %x", tp.Payload.PublicKey, pk)
	}
	if len(tp.Payload.Addresses) != 1 || tp.Payload.Addresses[0] != "agora://1.2.3.4:2826" {
		t.Errorf("Addresses = %v", tp.Payload.Addresses)
	}
}

func TestMakeFromURIRRsetEmpty(t *testing.T) {
	if _, err := makeFromURIRRset(NewDomain("pk1.validators.realm."), nil); err == nil {
		t.Errorf("expected error reconstructing from an empty RRset")
	}
}
