package blocker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/tempesta-tech/webshield/internal/errors"
	"github.com/tempesta-tech/webshield/internal/logging"
	"github.com/tempesta-tech/webshield/pkg/fingerprint"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// fingerprintBlocker is the shared implementation behind the TFt and
// TFh back-ends. Both own a fingerprint.Config and differ only in
// their name and which identity field they key off of (both reload the
// same tempesta-fw unit) — a parameterized struct rather than a
// base/subclass pair.
type fingerprintBlocker struct {
	name string
	key  user.Key

	config *fingerprint.Config

	tempestaExecutablePath string
	tempestaConfigPath     string
	reloadUnit             string

	logger logging.Fields
}

func newFingerprintBlocker(name string, key user.Key, config *fingerprint.Config, execPath, configPath, reloadUnit string) *fingerprintBlocker {
	return &fingerprintBlocker{
		name:                   name,
		key:                    key,
		config:                 config,
		tempestaExecutablePath: execPath,
		tempestaConfigPath:     configPath,
		reloadUnit:             reloadUnit,
	}
}

func (b *fingerprintBlocker) Name() string { return b.name }

func (b *fingerprintBlocker) Prepare(ctx context.Context) error {
	if !b.tempestaAppExists(ctx) {
		return errors.New(errors.ErrorTypePreparation, "tempesta executable not found")
	}

	if err := b.config.Verify(); err != nil {
		return errors.Wrap(err, errors.ErrorTypePreparation, "verifying fingerprint config")
	}

	return nil
}

func (b *fingerprintBlocker) tempestaAppExists(ctx context.Context) bool {
	if b.tempestaExecutablePath != "" {
		if info, err := os.Stat(b.tempestaExecutablePath); err == nil && !info.IsDir() {
			return true
		}
	}

	cmd := exec.CommandContext(ctx, "systemctl", "status", b.reloadUnit)
	return cmd.Run() == nil
}

func (b *fingerprintBlocker) Load(ctx context.Context) (map[string]user.User, error) {
	if err := b.config.Load(); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	result := make(map[string]user.User)

	for value := range b.config.Hashes() {
		u := userWithKey(b.key, value)
		u.BlockedAt = &now
		result[u.Hash()] = u
	}

	return result, nil
}

func (b *fingerprintBlocker) Block(u user.User) error {
	for _, value := range u.Values(b.key) {
		if b.config.Exists(value) {
			continue
		}
		b.config.Add(fingerprint.Hash{Value: value, Connections: 0, Packets: 0})
	}
	return nil
}

func (b *fingerprintBlocker) Release(u user.User) error {
	for _, value := range u.Values(b.key) {
		if !b.config.Exists(value) {
			continue
		}
		if err := b.config.Remove(value); err != nil {
			return err
		}
	}
	return nil
}

func (b *fingerprintBlocker) Apply(ctx context.Context) error {
	if !b.config.NeedDump() {
		return nil
	}

	if err := b.config.Dump(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeEnforcement, "dumping fingerprint config")
	}

	if err := b.reload(ctx); err != nil {
		// Reload failure is swallowed and not logged: the config
		// stays correct on disk, and a later Apply reloads only if
		// the config has been made dirty again.
		return nil
	}

	return nil
}

func (b *fingerprintBlocker) reload(ctx context.Context) error {
	var cmd *exec.Cmd

	if b.tempestaExecutablePath != "" {
		cmd = exec.CommandContext(ctx, b.tempestaExecutablePath, "--reload")
		cmd.Env = append(os.Environ(), fmt.Sprintf("TFW_CFG_PATH=%s", b.tempestaConfigPath))
	} else {
		cmd = exec.CommandContext(ctx, "systemctl", "reload", b.reloadUnit)
	}

	return cmd.Run()
}

func (b *fingerprintBlocker) Info() []user.User {
	hashes := b.config.Hashes()
	out := make([]user.User, 0, len(hashes))
	for value := range hashes {
		out = append(out, userWithKey(b.key, value))
	}
	return out
}

func userWithKey(key user.Key, value string) user.User {
	switch key {
	case user.KeyTFh:
		return user.User{TFh: []string{value}}
	case user.KeyTFt:
		return user.User{TFt: []string{value}}
	default:
		return user.User{IP: []string{value}}
	}
}
