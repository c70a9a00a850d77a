// Package fingerprint manages the TFt/TFh fingerprint block-list files
// that Tempesta's tft and tfh modules read directly: a flat text file
// of `hash <hex> <connections> <packets>;` lines.
package fingerprint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/tempesta-tech/webshield/internal/errors"
)

// Hash is one fingerprint entry: the fingerprint's hex value plus the
// connection/packet counters Tempesta maintains for it.
type Hash struct {
	Value       string
	Connections int
	Packets     int
}

func (h Hash) line() string {
	return fmt.Sprintf("hash %s %d %d;\n", h.Value, h.Connections, h.Packets)
}

var hashPattern = regexp.MustCompile(`^[\t ]*hash[\t ]+(?P<hash>\w+)[\t ]+(?P<connections>\d+)[\t ]+(?P<packets>\d+)[\t ]*;[\t ]*$`)

// Config is an in-memory mirror of one fingerprint block-list file. It
// is not safe for concurrent use; callers serialize access. order
// tracks insertion order so Dump writes entries in the order they were
// added, per the file's original grammar.
type Config struct {
	path     string
	hashes   map[string]Hash
	order    []string
	needDump bool
}

// New returns a Config bound to path. Call Verify then Load before use.
func New(path string) *Config {
	return &Config{path: path, hashes: make(map[string]Hash)}
}

// Verify ensures the file exists, creating an empty one with mode 0644
// if missing; the mode of an existing file is left unchanged. It fails
// if the parent directory is missing or the file is not writable.
func (c *Config) Verify() error {
	dir := filepath.Dir(c.path)
	if dir != "" && dir != "." {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return errors.Newf(errors.ErrorTypePreparation, "directory does not exist: %s", dir)
		}
	}

	if _, err := os.Stat(c.path); os.IsNotExist(err) {
		if err := os.WriteFile(c.path, nil, 0o644); err != nil {
			return errors.Wrapf(err, errors.ErrorTypePreparation, "creating fingerprint file %s", c.path)
		}
		return nil
	}

	f, err := os.OpenFile(c.path, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "fingerprint file %s is not writable", c.path)
	}
	return f.Close()
}

// Load parses the fingerprint file, replacing any in-memory state.
// Lines that don't match the hash grammar (including blank and
// `#`-prefixed lines) are skipped; Load neither logs nor reports which
// lines it skipped.
func (c *Config) Load() error {
	f, err := os.Open(c.path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "opening fingerprint file %s", c.path)
	}
	defer f.Close()

	hashes := make(map[string]Hash)
	var order []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		m := hashPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		conns, _ := strconv.Atoi(m[2])
		packets, _ := strconv.Atoi(m[3])
		if _, exists := hashes[m[1]]; !exists {
			order = append(order, m[1])
		}
		hashes[m[1]] = Hash{Value: m[1], Connections: conns, Packets: packets}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "reading fingerprint file %s", c.path)
	}

	c.hashes = hashes
	c.order = order
	c.needDump = false
	return nil
}

// Dump atomically rewrites the file as the concatenation of each
// entry's formatted line, in insertion order, and clears the dirty
// flag. Re-loading the dumped file produces the same map.
func (c *Config) Dump() error {
	var buf []byte
	for _, value := range c.order {
		buf = append(buf, c.hashes[value].line()...)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeEnforcement, "writing fingerprint file %s", tmp)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeEnforcement, "replacing fingerprint file %s", c.path)
	}

	c.needDump = false
	return nil
}

// Exists reports whether value is already present in local storage.
func (c *Config) Exists(value string) bool {
	_, ok := c.hashes[value]
	return ok
}

// Add inserts or overwrites a hash entry and marks the config dirty.
func (c *Config) Add(h Hash) {
	if _, exists := c.hashes[h.Value]; !exists {
		c.order = append(c.order, h.Value)
	}
	c.hashes[h.Value] = h
	c.needDump = true
}

// Remove deletes a hash entry by value and marks the config dirty.
// Removing an absent entry is an error.
func (c *Config) Remove(value string) error {
	if _, ok := c.hashes[value]; !ok {
		return errors.Newf(errors.ErrorTypeEnforcement, "fingerprint hash not found: %s", value)
	}

	delete(c.hashes, value)
	for i, v := range c.order {
		if v == value {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.needDump = true
	return nil
}

// NeedDump reports whether Add/Remove have been called since the last
// successful Dump.
func (c *Config) NeedDump() bool {
	return c.needDump
}

// Len returns the number of hashes currently tracked.
func (c *Config) Len() int {
	return len(c.hashes)
}

// Hashes returns the current hash set. Callers must not mutate the
// returned map.
func (c *Config) Hashes() map[string]Hash {
	return c.hashes
}
