/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the embedded relational store backing every zone (spec.md
// §3 "Relational schema"). One *Store is opened per process and handed
// to every zone engine; each zone owns a private pair of tables keyed
// by its name, following the teacher's KeyDB wrapper in tdnsd/db.go
// (a single *sql.DB, all access funnelled through typed methods rather
// than ad-hoc query strings scattered across callers).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// AddressRow mirrors one row of registry_<zone>_addresses.
type AddressRow struct {
	Pubkey  string
	Address string
	RRType  uint16
	TTL     uint32
	Expires int64 // unix seconds; 0 for primary/secondary (spec.md invariant 3)
}

// OpenStore opens (or creates) the sqlite database at path. Use ":memory:"
// for tests, matching how the teacher's NewKeyDB is exercised in-package.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("registry: opening store %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("registry: pinging store %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// tableNames turns a zone name into SQL-identifier-safe table names.
// Zone names contain dots which are not valid unquoted in all SQL
// dialects; sqlite tolerates them quoted, so table names are quoted
// throughout rather than mangled, keeping the zone name recognisable in
// the schema (easier to debug than a hashed identifier).
func tableNames(zone string) (utxo, addresses string) {
	z := strings.TrimSuffix(strings.ToLower(zone), ".")
	return fmt.Sprintf("registry_%s_utxo", z), fmt.Sprintf("registry_%s_addresses", z)
}

// EnsureZoneTables creates the per-zone tables if they do not exist yet,
// exactly the DDL in spec.md §3.
func (s *Store) EnsureZoneTables(zone string) error {
	utxoTbl, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
		pubkey TEXT PRIMARY KEY,
		sequence INTEGER,
		utxo TEXT
	)`, utxoTbl))
	if err != nil {
		return fmt.Errorf("registry: creating %s: %w", utxoTbl, err)
	}

	_, err = s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
		pubkey TEXT,
		address TEXT,
		type INTEGER,
		ttl INTEGER,
		expires INTEGER,
		PRIMARY KEY(pubkey, address)
	)`, addrTbl))
	if err != nil {
		return fmt.Errorf("registry: creating %s: %w", addrTbl, err)
	}
	return nil
}

// UpsertUTXO records (or bumps) the sequence/utxo anchor for pubkey on a
// primary zone (spec.md invariant 1).
func (s *Store) UpsertUTXO(zone, pubkey string, seq uint64, utxo string) error {
	utxoTbl, _ := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO "%s" (pubkey, sequence, utxo) VALUES (?, ?, ?)
		ON CONFLICT(pubkey) DO UPDATE SET sequence=excluded.sequence, utxo=excluded.utxo`, utxoTbl),
		pubkey, seq, utxo)
	if err != nil {
		return fmt.Errorf("registry: upserting utxo for %s: %w", pubkey, err)
	}
	return nil
}

// GetUTXO returns the stored sequence/utxo anchor, if any.
func (s *Store) GetUTXO(zone, pubkey string) (seq uint64, utxo string, ok bool, err error) {
	utxoTbl, _ := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(fmt.Sprintf(`SELECT sequence, utxo FROM "%s" WHERE pubkey = ?`, utxoTbl), pubkey)
	err = row.Scan(&seq, &utxo)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("registry: reading utxo for %s: %w", pubkey, err)
	}
	return seq, utxo, true, nil
}

// DeleteUTXO removes the anchor row for pubkey (block-driven invalidation
// or explicit removal).
func (s *Store) DeleteUTXO(zone, pubkey string) error {
	utxoTbl, _ := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM "%s" WHERE pubkey = ?`, utxoTbl), pubkey)
	return err
}

// UpsertAddress writes one address row.
func (s *Store) UpsertAddress(zone, pubkey, address string, rrtype uint16, ttl uint32, expires int64) error {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO "%s" (pubkey, address, type, ttl, expires) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pubkey, address) DO UPDATE SET type=excluded.type, ttl=excluded.ttl, expires=excluded.expires`, addrTbl),
		pubkey, address, rrtype, ttl, expires)
	if err != nil {
		return fmt.Errorf("registry: upserting address for %s: %w", pubkey, err)
	}
	return nil
}

// GetAddresses returns every address row for pubkey.
func (s *Store) GetAddresses(zone, pubkey string) ([]AddressRow, error) {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(fmt.Sprintf(`SELECT pubkey, address, type, ttl, expires FROM "%s" WHERE pubkey = ?`, addrTbl), pubkey)
	if err != nil {
		return nil, fmt.Errorf("registry: reading addresses for %s: %w", pubkey, err)
	}
	defer rows.Close()
	return scanAddressRows(rows)
}

// DeleteAddressesForPubkey removes every address row for pubkey.
func (s *Store) DeleteAddressesForPubkey(zone, pubkey string) error {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM "%s" WHERE pubkey = ?`, addrTbl), pubkey)
	return err
}

// ClearAllAddresses wipes every address row in the zone. Used by AXFR
// transfer (before re-import) and by disable() on expiry (spec.md §4.2).
func (s *Store) ClearAllAddresses(zone string) error {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM "%s"`, addrTbl))
	return err
}

// EnumeratePubkeys returns every distinct pubkey with at least one
// address row, in stable (lexical) order — the restartable snapshot
// spec.md's Design Notes ask for, backed by a plain SQL cursor.
func (s *Store) EnumeratePubkeys(zone string) ([]string, error) {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(fmt.Sprintf(`SELECT DISTINCT pubkey FROM "%s" ORDER BY pubkey`, addrTbl))
	if err != nil {
		return nil, fmt.Errorf("registry: enumerating pubkeys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

// EnumerateAllUTXOPubkeys returns every pubkey with a stake anchor, used
// by the block-driven slashing sweep (spec.md §4.3).
func (s *Store) EnumerateAllUTXOPubkeys(zone string) ([]string, error) {
	utxoTbl, _ := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(fmt.Sprintf(`SELECT pubkey FROM "%s" ORDER BY pubkey`, utxoTbl))
	if err != nil {
		return nil, fmt.Errorf("registry: enumerating utxo pubkeys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, err
		}
		out = append(out, pk)
	}
	return out, rows.Err()
}

// GetExpiring returns every address row whose expires is set (>0) and
// has reached now, for the caching TTL eviction sweep.
func (s *Store) GetExpiring(zone string, now int64) ([]AddressRow, error) {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(fmt.Sprintf(`SELECT pubkey, address, type, ttl, expires FROM "%s" WHERE expires > 0 AND expires <= ?`, addrTbl), now)
	if err != nil {
		return nil, fmt.Errorf("registry: reading expiring addresses: %w", err)
	}
	defer rows.Close()
	return scanAddressRows(rows)
}

// EarliestExpiry returns the minimum expires across all rows with
// expires>0, used by setTTLTimer to rearm the expire timer.
func (s *Store) EarliestExpiry(zone string) (int64, bool, error) {
	_, addrTbl := tableNames(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(fmt.Sprintf(`SELECT MIN(expires) FROM "%s" WHERE expires > 0`, addrTbl))
	var v sql.NullInt64
	if err := row.Scan(&v); err != nil {
		return 0, false, err
	}
	if !v.Valid {
		return 0, false, nil
	}
	return v.Int64, true, nil
}

func scanAddressRows(rows *sql.Rows) ([]AddressRow, error) {
	var out []AddressRow
	for rows.Next() {
		var r AddressRow
		if err := rows.Scan(&r.Pubkey, &r.Address, &r.RRType, &r.TTL, &r.Expires); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
