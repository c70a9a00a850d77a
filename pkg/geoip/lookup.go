// Package geoip resolves client addresses to city names from a flat
// CSV database and reconciles the set of allow-listed cities. No
// MaxMind-style binary database reader exists in this stack, so the
// lookup table is a plain CIDR-to-city CSV the operator maintains
// alongside the fingerprint files.
package geoip

import (
	"encoding/csv"
	"net/netip"
	"os"
	"sort"

	"github.com/tempesta-tech/webshield/internal/errors"
)

type entry struct {
	prefix netip.Prefix
	city   string
}

// DB is a loaded CIDR-to-city table plus the current allow-list of
// city names. Not safe for concurrent mutation; callers serialize
// reloads.
type DB struct {
	entries []entry
	allowed map[string]bool
}

// New returns an empty DB.
func New() *DB {
	return &DB{allowed: make(map[string]bool)}
}

// LoadCities reads a CSV of `cidr,city` rows, replacing the current
// table. Longest-prefix match wins on lookup, so entries are kept
// sorted by prefix length, descending.
func (d *DB) LoadCities(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "opening geoip city db %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2

	var entries []entry
	for {
		record, err := r.Read()
		if err != nil {
			break
		}

		prefix, err := netip.ParsePrefix(record[0])
		if err != nil {
			continue
		}
		entries = append(entries, entry{prefix: prefix, city: record[1]})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].prefix.Bits() > entries[j].prefix.Bits()
	})

	d.entries = entries
	return nil
}

// LoadAllowedCities reads a text file of one city name per line and
// replaces the allow-list.
func (d *DB) LoadAllowedCities(path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "opening allowed cities list %s", path)
	}

	allowed := make(map[string]bool)
	for _, line := range splitLines(string(contents)) {
		if line == "" {
			continue
		}
		allowed[line] = true
	}

	d.allowed = allowed
	return nil
}

// City resolves addr to a city name via longest-prefix match.
func (d *DB) City(addr string) (string, bool) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", false
	}

	for _, e := range d.entries {
		if e.prefix.Contains(ip) {
			return e.city, true
		}
	}
	return "", false
}

// CityAllowed reports whether addr resolves to an allow-listed city.
// An address that fails to resolve is treated as not allowed.
func (d *DB) CityAllowed(addr string) bool {
	city, ok := d.City(addr)
	if !ok {
		return false
	}
	return d.allowed[city]
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	return lines
}
