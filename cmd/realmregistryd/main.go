/*
 * Copyright (c) 2026 Jedi06
 */

// Command realmregistryd assembles the realm registry library around a
// DNS listener and an HTTP API listener. spec.md treats both listeners,
// the ledger, and the signature verifier as external collaborators; this
// file only shows how the pieces are wired together, mirroring the
// teacher's tdnsd/main.go channel-driven bring-up, not a production
// bootstrap.
package main

import (
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/miekg/dns"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Jedi06/agora/internal/config"
	"github.com/Jedi06/agora/internal/rlog"
	"github.com/Jedi06/agora/registry"
)

func main() {
	cfgFile := pflag.StringP("config", "c", "/etc/realmregistry/realmregistry.yaml", "configuration file")
	verbose := pflag.BoolP("verbose", "v", false, "verbose logging")
	debug := pflag.BoolP("debug", "d", false, "debug logging")
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("realmregistryd: %v", err)
	}
	rlog.Setup(cfg.Log.File)
	rlog.SetupCLI(*verbose, *debug)

	store, err := registry.OpenStore(cfg.DB.File)
	if err != nil {
		log.Fatalf("realmregistryd: %v", err)
	}
	defer store.Close()

	// Placeholder ledger: the real chain adaptor (spec.md §4.1) is an
	// external collaborator injected by the embedding node; this stub
	// only lets the daemon start up standalone for smoke-testing.
	ledger := newStandaloneLedger()

	realmCfg := zoneConfigFromSpec(cfg.Zones.Realm)
	validatorsCfg := zoneConfigFromSpec(cfg.Zones.Validators)
	flashCfg := zoneConfigFromSpec(cfg.Zones.Flash)

	realmName := cfg.Realm
	validatorsName := "validators." + cfg.Realm
	flashName := "flash." + cfg.Realm

	realmZone := registry.NewZoneEngine(realmName, realmCfg, store, nil, false)
	validatorsZone := registry.NewZoneEngine(validatorsName, validatorsCfg, store, ledger, true)
	flashZone := registry.NewZoneEngine(flashName, flashCfg, store, nil, false)

	reg := registry.NewRegistry(realmZone, validatorsZone, flashZone, nil)
	if err := reg.Start(nil, nil); err != nil {
		log.Fatalf("realmregistryd: starting zones: %v", err)
	}

	go serveDNS(cfg, reg)
	go serveAPI(cfg, reg, ledger)

	select {}
}

func zoneConfigFromSpec(z config.ZoneSpec) registry.ZoneConfig {
	allow, err := config.ParseAllowTransfer(z.AllowTransfer)
	if err != nil {
		log.Printf("realmregistryd: %v", err)
	}
	return registry.ZoneConfig{
		Authoritative: z.Authoritative,
		SOA: registry.SOAConfig{
			Email:   z.SOAEmail,
			Refresh: z.SOARefresh,
			Retry:   z.SOARetry,
			Expire:  z.SOAExpire,
			Minimum: z.SOAMinimum,
		},
		Primary:          z.Primary,
		QueryServers:     z.QueryServers,
		RedirectRegister: z.Redirect,
		AllowTransfer:    allow,
	}
}

func serveDNS(cfg *config.Config, reg *registry.Registry) {
	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		_, tcp := w.RemoteAddr().(*net.TCPAddr)
		peer := peerIP(w.RemoteAddr())
		reg.AnswerQuestions(r, peer, tcp, dns.DefaultMsgSize, func(m *dns.Msg) {
			if err := w.WriteMsg(m); err != nil {
				log.Printf("realmregistryd: writing DNS reply: %v", err)
			}
		})
	})

	for _, addr := range cfg.DNSEngine.Addresses {
		for _, netw := range []string{"udp", "tcp"} {
			go func(addr, netw string) {
				srv := &dns.Server{Addr: addr, Net: netw, Handler: handler}
				if err := srv.ListenAndServe(); err != nil {
					log.Printf("realmregistryd: DNS server %s/%s: %v", addr, netw, err)
				}
			}(addr, netw)
		}
	}
}

func serveAPI(cfg *config.Config, reg *registry.Registry, ledger registry.Ledger) {
	router := registry.NewAPIRouter(reg, ledger)
	addr := cfg.API.Address
	if addr == "" {
		addr = ":8080"
	}
	fmt.Printf("realmregistryd: API listening on %s\n", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Printf("realmregistryd: API server: %v", err)
	}
}

func peerIP(addr net.Addr) net.IP {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

// standaloneLedger is a placeholder Ledger (spec.md §4.1) so the daemon
// can start up outside a full node for smoke-testing. The real chain
// adaptor is injected by the embedding node.
type standaloneLedger struct{}

func newStandaloneLedger() registry.Ledger { return standaloneLedger{} }

func (standaloneLedger) Height() (uint64, error) { return 0, nil }

func (standaloneLedger) GetValidators(height uint64) ([]registry.ValidatorInfo, error) {
	return nil, nil
}

func (standaloneLedger) GetStakes() ([]registry.StakeOutput, error) { return nil, nil }

func (standaloneLedger) GetPenaltyDeposit(utxo string) (registry.Coins, error) {
	return 1, nil
}

func (standaloneLedger) GetBlocksFrom(height uint64) (<-chan registry.Block, error) {
	ch := make(chan registry.Block)
	close(ch)
	return ch, nil
}
