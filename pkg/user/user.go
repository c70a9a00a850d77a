// Package user defines the risky-user record the detection core passes
// between detectors, the validation model, and blockers.
package user

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Key names the user field the validation model and a blocker key off
// of when comparing user groups across time windows.
type Key string

const (
	KeyIP  Key = "ip"
	KeyTFt Key = "tft"
	KeyTFh Key = "tfh"
)

// User is one risky user surfaced by a detector's fetch-for-period
// query. IP, TFt and TFh are all set-valued: a single access-log row
// can carry more than one client IP (behind a proxy chain) or
// fingerprint, so every field is a list rather than a scalar.
type User struct {
	IP  []string
	TFt []string
	TFh []string

	// Value is the detector's activity metric for this user over the
	// period queried (request count, summed response time, error count).
	Value decimal.Decimal

	// BlockedAt is set once this User is stamped into the authoritative
	// block-list; nil on fresh detector output.
	BlockedAt *int64
}

// Hash returns the equality key the authoritative block-list keys on:
// the three identity fields, each set-sorted so field order at
// construction time doesn't affect the result, joined into one string
// and digested. Value and BlockedAt never participate in identity.
func (u User) Hash() string {
	h := sha256.New()
	for _, field := range [][]string{u.IP, u.TFt, u.TFh} {
		sorted := append([]string(nil), field...)
		sort.Strings(sorted)
		h.Write([]byte(strings.Join(sorted, ",")))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Empty reports whether every identity field is empty, violating the
// invariant that a User always carries at least one identity value.
func (u User) Empty() bool {
	return len(u.IP) == 0 && len(u.TFt) == 0 && len(u.TFh) == 0
}

// Merge returns a copy of u with any identity fields present in other
// unioned in, deduplicated. Value and BlockedAt are taken from u.
func (u User) Merge(other User) User {
	merged := u
	merged.IP = unionStrings(u.IP, other.IP)
	merged.TFt = unionStrings(u.TFt, other.TFt)
	merged.TFh = unionStrings(u.TFh, other.TFh)
	return merged
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Values returns the field named by key, the same way the original
// validation model used getattr(user, validation_key).
func (u User) Values(key Key) []string {
	switch key {
	case KeyTFt:
		return u.TFt
	case KeyTFh:
		return u.TFh
	default:
		return u.IP
	}
}

// Keys builds the set of validation keys for a group of users, mapping
// each key to the last user that produced it — mirroring the original's
// dict-overwrite-by-key semantics where last writer wins.
func Keys(users []User, key Key) map[string]User {
	out := make(map[string]User)
	for _, u := range users {
		for _, v := range u.Values(key) {
			out[v] = u
		}
	}
	return out
}
