package user

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValues(t *testing.T) {
	u := User{
		IP:    []string{"10.0.0.1"},
		TFt:   []string{"a1b2"},
		TFh:   []string{"c3d4", "e5f6"},
		Value: decimal.NewFromInt(42),
	}

	assert.Equal(t, []string{"10.0.0.1"}, u.Values(KeyIP))
	assert.Equal(t, []string{"a1b2"}, u.Values(KeyTFt))
	assert.Equal(t, []string{"c3d4", "e5f6"}, u.Values(KeyTFh))
}

func TestKeys(t *testing.T) {
	a := User{IP: []string{"10.0.0.1"}, Value: decimal.NewFromInt(5)}
	b := User{IP: []string{"10.0.0.2", "10.0.0.3"}, Value: decimal.NewFromInt(9)}

	m := Keys([]User{a, b}, KeyIP)

	assert.Len(t, m, 3)
	assert.Equal(t, a, m["10.0.0.1"])
	assert.Equal(t, b, m["10.0.0.2"])
	assert.Equal(t, b, m["10.0.0.3"])
}

func TestKeysEmpty(t *testing.T) {
	m := Keys(nil, KeyTFt)
	assert.Empty(t, m)
}

func TestHashStableUnderInsertionOrder(t *testing.T) {
	a := User{IP: []string{"10.0.0.1", "10.0.0.2"}, TFt: []string{"ab"}}
	b := User{IP: []string{"10.0.0.2", "10.0.0.1"}, TFt: []string{"ab"}}

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashDiffersOnIdentity(t *testing.T) {
	a := User{IP: []string{"10.0.0.1"}}
	b := User{IP: []string{"10.0.0.2"}}

	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHashIgnoresValueAndBlockedAt(t *testing.T) {
	blockedAt := int64(1000)
	a := User{IP: []string{"10.0.0.1"}, Value: decimal.NewFromInt(1)}
	b := User{IP: []string{"10.0.0.1"}, Value: decimal.NewFromInt(99), BlockedAt: &blockedAt}

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestEmpty(t *testing.T) {
	assert.True(t, User{}.Empty())
	assert.False(t, User{IP: []string{"10.0.0.1"}}.Empty())
}

func TestMerge(t *testing.T) {
	a := User{IP: []string{"10.0.0.1"}, TFt: []string{"ab"}}
	b := User{IP: []string{"10.0.0.2"}, TFh: []string{"cd"}}

	merged := a.Merge(b)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, merged.IP)
	assert.Equal(t, []string{"ab"}, merged.TFt)
	assert.Equal(t, []string{"cd"}, merged.TFh)
}
