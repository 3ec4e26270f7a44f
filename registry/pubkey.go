/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import (
	"fmt"
	"strings"
)

// PublicKeySize is the fixed width of a registry identity: a 63-char
// HRP form ("boa1" + 53 data digits + 6 checksum digits) or a 59-char
// bare form (53 data digits + 6 checksum digits, no HRP) both decode to
// 33 bytes.
const PublicKeySize = 33

// publicKeyHRP is the bech32 human-readable prefix used for the long
// form of a public key ("boa1...", see spec.md §3).
const publicKeyHRP = "boa"

// PublicKey is a fixed-width validator/flash-node identity. The zero
// value is not a valid key.
type PublicKey [PublicKeySize]byte

// ParsePublicKey accepts either encoding spec.md §3 describes: the HRP
// form ("boa1...") or the bare, HRP-less form — both are checksummed,
// the bare form simply omits the "boa1" prefix. The input is lower-cased
// before bech32 charset matching, so upper- and lower-case spellings of
// a key parse to the same PublicKey.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	if s == "" {
		return pk, fmt.Errorf("registry: empty public key")
	}

	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, publicKeyHRP+"1") {
		hrp, data, err := bech32Decode(lower)
		if err != nil {
			return pk, fmt.Errorf("registry: invalid public key %q: %w", s, err)
		}
		if hrp != publicKeyHRP {
			return pk, fmt.Errorf("registry: invalid public key %q: unexpected HRP %q", s, hrp)
		}
		raw, err := convertBits(data, 5, 8, false)
		if err != nil {
			return pk, fmt.Errorf("registry: invalid public key %q: %w", s, err)
		}
		if len(raw) != PublicKeySize {
			return pk, fmt.Errorf("registry: invalid public key %q: decoded length %d", s, len(raw))
		}
		copy(pk[:], raw)
		return pk, nil
	}

	// Bare form: bech32 data charset, no HRP, still checksummed (against
	// an empty HRP).
	data, err := bech32DecodeBare(lower)
	if err != nil {
		return pk, fmt.Errorf("registry: invalid public key %q: %w", s, err)
	}
	raw, err := convertBits(data, 5, 8, false)
	if err != nil {
		return pk, fmt.Errorf("registry: invalid public key %q: %w", s, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("registry: invalid public key %q: decoded length %d", s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// String renders the canonical HRP form.
func (pk PublicKey) String() string {
	data, err := convertBits(pk[:], 8, 5, true)
	if err != nil {
		return ""
	}
	s, err := bech32Encode(publicKeyHRP, data)
	if err != nil {
		return ""
	}
	return s
}

// Bare renders the HRP-less, still-checksummed form used as a fallback
// label.
func (pk PublicKey) Bare() string {
	data, err := convertBits(pk[:], 8, 5, true)
	if err != nil {
		return ""
	}
	return bech32EncodeBare(data)
}

func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		b := byte(chk >> 25)
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (b>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func bech32CreateChecksum(hrp string, data []byte) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := bech32Polymod(values) ^ 1
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func bech32VerifyChecksum(hrp string, data []byte) bool {
	return bech32Polymod(append(bech32HRPExpand(hrp), data...)) == 1
}

func bech32Encode(hrp string, data []byte) (string, error) {
	combined := append(append([]byte{}, data...), bech32CreateChecksum(hrp, data)...)
	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range combined {
		if int(b) >= len(bech32Charset) {
			return "", fmt.Errorf("registry: invalid bech32 digit %d", b)
		}
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String(), nil
}

// bech32EncodeBare renders data with a checksum computed against an
// empty HRP, but without the HRP or its "1" separator.
func bech32EncodeBare(data []byte) string {
	combined := append(append([]byte{}, data...), bech32CreateChecksum("", data)...)
	var sb strings.Builder
	for _, b := range combined {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String()
}

func bech32Decode(s string) (string, []byte, error) {
	pos := strings.LastIndexByte(s, '1')
	if pos < 1 || pos+7 > len(s) {
		return "", nil, fmt.Errorf("invalid bech32 separator position")
	}
	hrp := s[:pos]
	rest := s[pos+1:]
	data := make([]byte, len(rest))
	for i := 0; i < len(rest); i++ {
		idx := strings.IndexByte(bech32Charset, rest[i])
		if idx < 0 {
			return "", nil, fmt.Errorf("invalid bech32 character %q", rest[i])
		}
		data[i] = byte(idx)
	}
	if !bech32VerifyChecksum(hrp, data) {
		return "", nil, fmt.Errorf("invalid bech32 checksum")
	}
	return hrp, data[:len(data)-6], nil
}

// bech32DecodeBare is the inverse of bech32EncodeBare: it verifies the
// trailing checksum (computed against an empty HRP) and strips it off.
func bech32DecodeBare(s string) ([]byte, error) {
	if len(s) < 6 {
		return nil, fmt.Errorf("bech32 bare string too short")
	}
	data := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(bech32Charset, s[i])
		if idx < 0 {
			return nil, fmt.Errorf("invalid bech32 character %q", s[i])
		}
		data[i] = byte(idx)
	}
	if !bech32VerifyChecksum("", data) {
		return nil, fmt.Errorf("invalid bech32 checksum")
	}
	return data[:len(data)-6], nil
}

// convertBits re-groups a bit stream between 8-bit bytes and 5-bit
// bech32 digits, the standard BIP-173 algorithm.
func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	var acc uint32
	var bits uint
	var out []byte
	maxv := uint32(1)<<toBits - 1
	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data range for convertBits")
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits)&byte(maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits))&byte(maxv))
		}
	} else if bits >= fromBits || (acc<<(toBits-bits))&maxv != 0 {
		return nil, fmt.Errorf("invalid padding in convertBits")
	}
	return out, nil
}
