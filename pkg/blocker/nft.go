package blocker

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/tempesta-tech/webshield/internal/errors"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// NFT blocks by adding addresses to a named set in an nftables table.
// Same shape as IPSet against a different packet-filter surface.
type NFT struct {
	table   string
	family  string
	setName string
}

// NewNFT builds an NFT blocker against the given table/set, e.g.
// family "inet", table "filter", set "blocked_ips".
func NewNFT(family, table, setName string) Blocker {
	return &NFT{family: family, table: table, setName: setName}
}

func (b *NFT) Name() string { return "nftables" }

func (b *NFT) Prepare(ctx context.Context) error {
	if err := runNFT(ctx, "list", "set", b.family, b.table, b.setName); err == nil {
		return nil
	}

	spec := fmt.Sprintf("add set %s %s %s { type ipv4_addr; }", b.family, b.table, b.setName)
	if err := runNFT(ctx, strings.Fields(spec)...); err != nil {
		return errors.Wrapf(err, errors.ErrorTypePreparation, "creating nftables set %s", b.setName)
	}

	return nil
}

var nftElementPattern = regexp.MustCompile(`(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)

func (b *NFT) Load(ctx context.Context) (map[string]user.User, error) {
	out, err := exec.CommandContext(ctx, "nft", "list", "set", b.family, b.table, b.setName).Output()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeTransientStore, "listing nftables set %s", b.setName)
	}

	now := time.Now().Unix()
	result := make(map[string]user.User)

	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		for _, addr := range nftElementPattern.FindAllString(scanner.Text(), -1) {
			u := user.User{IP: []string{addr}, BlockedAt: &now}
			result[u.Hash()] = u
		}
	}

	return result, nil
}

func (b *NFT) Block(u user.User) error {
	for _, addr := range u.IP {
		if err := runNFT(context.Background(), "add", "element", b.family, b.table, b.setName, "{", addr, "}"); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeEnforcement, "adding %s to nftables set %s", addr, b.setName)
		}
	}
	return nil
}

func (b *NFT) Release(u user.User) error {
	for _, addr := range u.IP {
		if err := runNFT(context.Background(), "delete", "element", b.family, b.table, b.setName, "{", addr, "}"); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeEnforcement, "removing %s from nftables set %s", addr, b.setName)
		}
	}
	return nil
}

func (b *NFT) Apply(ctx context.Context) error {
	return nil
}

func (b *NFT) Info() []user.User {
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

func runNFT(ctx context.Context, args ...string) error {
	return exec.CommandContext(ctx, "nft", args...).Run()
}
