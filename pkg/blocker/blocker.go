// Package blocker implements the enforcement back-ends the detection
// loop drives to install and release blocks: the accelerator's
// fingerprint files, a kernel IP set, and an nftables set.
package blocker

import (
	"context"

	"github.com/tempesta-tech/webshield/pkg/user"
)

// Blocker is one enforcement surface. Implementations must treat
// Block/Release as idempotent and must not return an error for a
// redundant call.
type Blocker interface {
	// Name identifies the blocker in config (blocking_types) and logs.
	Name() string

	// Prepare runs a one-time startup check. Returns a
	// PreparationError when the enforcement surface is unavailable.
	Prepare(ctx context.Context) error

	// Load enumerates what is already blocked by this back-end, keyed
	// by User.Hash(), with BlockedAt stamped to now.
	Load(ctx context.Context) (map[string]user.User, error)

	// Block installs one block. A no-op if the user is already
	// present in the enforcement surface.
	Block(u user.User) error

	// Release removes one block. A no-op if the user is absent.
	Release(u user.User) error

	// Apply flushes batched state to the enforcement surface. A no-op
	// when nothing is dirty.
	Apply(ctx context.Context) error

	// Info returns the current block-list snapshot.
	Info() []user.User
}
