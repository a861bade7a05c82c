package ruleadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCasbinRule(t *testing.T) {
	row, err := newCasbinRule("p", []string{"alice", "data1", "read"})
	require.NoError(t, err)
	assert.Equal(t, "p", row.Ptype)
	assert.Equal(t, "alice", row.V0)
	assert.Equal(t, "data1", row.V1)
	assert.Equal(t, "read", row.V2)
	assert.Empty(t, row.V3)
	assert.Empty(t, row.V4)
	assert.Empty(t, row.V5)
}

func TestNewCasbinRuleTooManyFields(t *testing.T) {
	_, err := newCasbinRule("p", []string{"a", "b", "c", "d", "e", "f", "g"})
	assert.ErrorIs(t, err, ErrTooManyFields)
}

func TestValuesRoundTrip(t *testing.T) {
	tuples := [][]string{
		{"admin"},
		{"alice", "data1"},
		{"alice", "data1", "read"},
		{"alice", "data1", "read", "allow"},
		{"alice", "data1", "read", "allow", "us-east"},
		{"alice", "data1", "read", "allow", "us-east", "tenant1"},
	}
	for _, tuple := range tuples {
		row, err := newCasbinRule("p", tuple)
		require.NoError(t, err)
		assert.Equal(t, tuple, row.values())
	}
}

func TestPolicyLine(t *testing.T) {
	row, err := newCasbinRule("p", []string{"alice", "data1", "read"})
	require.NoError(t, err)
	assert.Equal(t, `p, "alice", "data1", "read"`, row.policyLine())

	grouping, err := newCasbinRule("g", []string{"alice", "admin"})
	require.NoError(t, err)
	assert.Equal(t, `g, "alice", "admin"`, grouping.policyLine())
}

func TestPolicyLineQuotesCommas(t *testing.T) {
	row, err := newCasbinRule("p", []string{"alice", "data1,data2", "read"})
	require.NoError(t, err)
	assert.Equal(t, `p, "alice", "data1,data2", "read"`, row.policyLine())
}

func TestColumnsIncludeClearedSlots(t *testing.T) {
	row, err := newCasbinRule("p", []string{"alice", "data1"})
	require.NoError(t, err)
	cols := row.columns()
	assert.Len(t, cols, 7)
	assert.Equal(t, "alice", cols["v0"])
	assert.Equal(t, "", cols["v2"])
	assert.Equal(t, "", cols["v5"])
}

func TestFilterAsRule(t *testing.T) {
	f := Filter{Ptype: "p", V1: "data2"}
	row := f.asRule()
	assert.Equal(t, "p", row.Ptype)
	assert.Empty(t, row.V0)
	assert.Equal(t, "data2", row.V1)
}
