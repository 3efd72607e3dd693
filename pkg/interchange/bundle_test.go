package interchange_test

import (
	"encoding/json"
	"testing"

	"github.com/riverline-labs/tenor/pkg/interchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBundle() *interchange.Bundle {
	return interchange.New("loan-contract", []map[string]any{
		{
			"kind":       "Fact",
			"id":         "Amount",
			"provenance": map[string]any{"file": "t.dsl", "line": 3},
			"type":       map[string]any{"kind": "Decimal", "precision": 10, "scale": 2},
		},
	})
}

func TestMarshalJSON_KeysAscending(t *testing.T) {
	b := sampleBundle()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"constructs":[{"id":"Amount","kind":"Fact","provenance":{"file":"t.dsl","line":3},"type":{"kind":"Decimal","precision":10,"scale":2}}],"id":"loan-contract","kind":"Bundle","tenor":"tenor/1"}`, string(data))
}

func TestUnmarshal_RoundTrips(t *testing.T) {
	b := sampleBundle()
	data, err := json.Marshal(b)
	require.NoError(t, err)

	parsed, err := interchange.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, b.ID, parsed.ID)
	assert.Equal(t, b.Tenor, parsed.Tenor)
	require.Len(t, parsed.Constructs, 1)
	assert.Equal(t, "Amount", parsed.Constructs[0]["id"])
}

func TestValidate_AcceptsWellFormedBundle(t *testing.T) {
	require.NoError(t, interchange.Validate(sampleBundle()))
}

func TestValidate_RejectsMissingProvenance(t *testing.T) {
	b := interchange.New("bad", []map[string]any{
		{"kind": "Fact", "id": "Amount"},
	})
	assert.Error(t, interchange.Validate(b))
}

func TestContentHash_StableAcrossCalls(t *testing.T) {
	a := interchange.New("x", []map[string]any{
		{"kind": "Fact", "id": "A", "provenance": map[string]any{"file": "t", "line": 1}},
		{"kind": "Fact", "id": "B", "provenance": map[string]any{"file": "t", "line": 2}},
	})
	h1, err := a.ContentHash()
	require.NoError(t, err)
	h2, err := a.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
