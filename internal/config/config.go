/*
 * Copyright (c) 2026 Jedi06
 */

// Package config loads the realm registry's YAML configuration into
// typed structs, the way the teacher's tdnsd/parseconfig.go layers
// gopkg.in/yaml.v3 + github.com/mitchellh/mapstructure on top of
// github.com/spf13/viper.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ZoneSpec is the on-disk shape of spec.md §3's ZoneConfig.
type ZoneSpec struct {
	Authoritative bool     `mapstructure:"authoritative"`
	SOAEmail      string   `mapstructure:"soa_email"`
	SOARefresh    uint32   `mapstructure:"soa_refresh"`
	SOARetry      uint32   `mapstructure:"soa_retry"`
	SOAExpire     uint32   `mapstructure:"soa_expire"`
	SOAMinimum    uint32   `mapstructure:"soa_minimum"`
	Primary       string   `mapstructure:"primary"`
	QueryServers  []string `mapstructure:"query_servers"`
	Redirect      string   `mapstructure:"redirect_register"`
	AllowTransfer []string `mapstructure:"allow_transfer"`
}

// Config is the top-level document: realm domain, the three zones
// (realm/validators/flash), db file, listen addresses, logging.
type Config struct {
	Realm string `mapstructure:"realm"`

	DB struct {
		File string `mapstructure:"file"`
	} `mapstructure:"db"`

	Log struct {
		File    string `mapstructure:"file"`
		Verbose bool   `mapstructure:"verbose"`
		Debug   bool   `mapstructure:"debug"`
	} `mapstructure:"log"`

	DNSEngine struct {
		Addresses []string `mapstructure:"addresses"`
	} `mapstructure:"dnsengine"`

	API struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"api"`

	Zones struct {
		Realm      ZoneSpec `mapstructure:"realm"`
		Validators ZoneSpec `mapstructure:"validators"`
		Flash      ZoneSpec `mapstructure:"flash"`
	} `mapstructure:"zones"`
}

// Load reads and decodes the YAML configuration file at path, following
// the teacher's processConfigFile: parse to a generic map first, then
// mapstructure-decode into the typed Config, so unknown keys don't hard
// fail decoding.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	var cfg Config
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if viper.IsSet("log.file") {
		cfg.Log.File = viper.GetString("log.file")
	}

	return &cfg, nil
}

// ParseAllowTransfer turns the configured CIDR/IP strings into IPNets,
// bare IPs treated as /32 or /128.
func ParseAllowTransfer(entries []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, e := range entries {
		if _, ipnet, err := net.ParseCIDR(e); err == nil {
			out = append(out, ipnet)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			return nil, fmt.Errorf("config: invalid allow_transfer entry %q", e)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out, nil
}
