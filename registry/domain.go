/*
 * Copyright (c) 2026 Jedi06
 */

package registry

import "strings"

// Domain is a case-insensitive DNS name, always stored lower-cased and
// fully qualified (trailing dot). Comparisons and label operations work
// on the folded form. NewDomain folds every label, the pubkey label
// included; a folded pubkey label still parses because ParsePublicKey
// lower-cases its input before decoding.
type Domain string

// NewDomain folds name to its canonical lower-case, fully-qualified form.
func NewDomain(name string) Domain {
	if name == "" {
		return "."
	}
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return Domain(name)
}

// JoinDomain builds "label.parent".
func JoinDomain(label string, parent Domain) Domain {
	if label == "" {
		return parent
	}
	return NewDomain(strings.ToLower(label) + "." + string(parent))
}

func (d Domain) String() string { return string(d) }

// Equal compares two domains case-insensitively (both are already folded,
// this also tolerates an un-folded argument).
func (d Domain) Equal(other Domain) bool {
	return string(d) == string(NewDomain(string(other)))
}

// Labels splits the name into its dot-separated labels, apex last,
// trailing empty label (root) dropped.
func (d Domain) Labels() []string {
	s := strings.TrimSuffix(string(d), ".")
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// IsSuffixOf reports whether d is a suffix of name on a label boundary,
// i.e. d is name itself or an ancestor of name.
func (d Domain) IsSuffixOf(name Domain) bool {
	dd, nn := string(d), string(name)
	if dd == nn {
		return true
	}
	return strings.HasSuffix(nn, "."+dd) || (dd == "." && nn != "")
}

// StripLeftLabel removes the left-most label, e.g. "a.b.c." -> "b.c.".
func (d Domain) StripLeftLabel() Domain {
	labels := d.Labels()
	if len(labels) <= 1 {
		return "."
	}
	return NewDomain(strings.Join(labels[1:], "."))
}

// LeftLabel returns the left-most label of the name, in folded
// (lower-case) form; the original case passed to NewDomain is not kept.
func (d Domain) LeftLabel() string {
	labels := d.Labels()
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
