package canonicalize_test

import (
	"testing"

	"github.com/riverline-labs/tenor/pkg/canonicalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCS_KeyOrdering(t *testing.T) {
	in := map[string]any{"b": 1, "a": 2, "c": map[string]any{"z": 1, "y": 2}}
	out, err := canonicalize.JCSString(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, out)
}

func TestJCS_Deterministic(t *testing.T) {
	type bundle struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	a, err := canonicalize.JCSString(bundle{ID: "x", Count: 3})
	require.NoError(t, err)
	b, err := canonicalize.JCSString(bundle{ID: "x", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalHash_StableAcrossFieldOrder(t *testing.T) {
	h1, err := canonicalize.CanonicalHash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := canonicalize.CanonicalHash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Contains(t, h1, "sha256:")
}
