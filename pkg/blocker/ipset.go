package blocker

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/tempesta-tech/webshield/internal/errors"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// IPSet blocks by adding addresses to a named kernel ipset(8) set.
// Operations are synchronous against the kernel, so Apply is a no-op.
type IPSet struct {
	setName string
}

// NewIPSet builds an IpSet blocker against the given set name.
func NewIPSet(setName string) Blocker {
	return &IPSet{setName: setName}
}

func (b *IPSet) Name() string { return "ipset" }

func (b *IPSet) Prepare(ctx context.Context) error {
	if err := runIPSet(ctx, "list", b.setName); err == nil {
		return nil
	}

	if err := runIPSet(ctx, "create", b.setName, "hash:ip", "timeout", "0"); err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "creating ipset %s", b.setName)
	}

	return nil
}

func (b *IPSet) Load(ctx context.Context) (map[string]user.User, error) {
	out, err := exec.CommandContext(ctx, "ipset", "list", b.setName, "-output", "plain").Output()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeTransientStore, "listing ipset %s", b.setName)
	}

	now := time.Now().Unix()
	result := make(map[string]user.User)

	inMembers := false
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Members:" {
			inMembers = true
			continue
		}
		if !inMembers || line == "" {
			continue
		}

		addr := strings.Fields(line)[0]
		u := user.User{IP: []string{addr}, BlockedAt: &now}
		result[u.Hash()] = u
	}

	return result, nil
}

func (b *IPSet) Block(u user.User) error {
	for _, addr := range u.IP {
		if err := runIPSet(context.Background(), "add", b.setName, addr, "-exist"); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeEnforcement, "adding %s to ipset %s", addr, b.setName)
		}
	}
	return nil
}

func (b *IPSet) Release(u user.User) error {
	for _, addr := range u.IP {
		if err := runIPSet(context.Background(), "del", b.setName, addr, "-exist"); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeEnforcement, "removing %s from ipset %s", addr, b.setName)
		}
	}
	return nil
}

func (b *IPSet) Apply(ctx context.Context) error {
	return nil
}

func (b *IPSet) Info() []user.User {
	users, err := b.Load(context.Background())
	if err != nil {
		return nil
	}
	out := make([]user.User, 0, len(users))
	for _, u := range users {
		out = append(out, u)
	}
	return out
}

func runIPSet(ctx context.Context, args ...string) error {
	return exec.CommandContext(ctx, "ipset", args...).Run()
}
