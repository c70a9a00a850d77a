package blocker

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireNFT(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("nft"); err != nil {
		t.Skip("nft(8) not available in this environment")
	}
}

func TestNFTLifecycle(t *testing.T) {
	requireNFT(t)

	b := NewNFT("inet", "filter", "webshield_test_set")
	ctx := context.Background()

	require.NoError(t, b.Prepare(ctx))
	assert.Equal(t, "nftables", b.Name())
	assert.NoError(t, b.Apply(ctx))
}

func TestNFTElementPatternExtractsAddresses(t *testing.T) {
	line := `        elements = { 10.0.0.1, 10.0.0.2 }`
	matches := nftElementPattern.FindAllString(line, -1)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, matches)
}
