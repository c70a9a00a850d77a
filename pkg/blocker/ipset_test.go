package blocker

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireIPSet(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ipset"); err != nil {
		t.Skip("ipset(8) not available in this environment")
	}
}

func TestIPSetLifecycle(t *testing.T) {
	requireIPSet(t)

	b := NewIPSet("webshield_test_set")
	ctx := context.Background()

	require.NoError(t, b.Prepare(ctx))
	assert.Equal(t, "ipset", b.Name())
	assert.NoError(t, b.Apply(ctx))
}
