package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seedRow struct {
	RiskType string `json:"risk_type"`
	Action   string `json:"mitigation_action"`
}

func decodeAll(t *testing.T, input string) ([]seedRow, error) {
	t.Helper()
	ch, errCh := DecodeJSONArray[seedRow](context.Background(), strings.NewReader(input))
	var out []seedRow
	for v := range ch {
		out = append(out, v)
	}
	return out, <-errCh
}

func TestDecodeJSONArray(t *testing.T) {
	out, err := decodeAll(t, `[{"risk_type":"iucn","mitigation_action":"Protect nesting sites"},{"risk_type":"marine hci"}]`)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Protect nesting sites", out[0].Action)
	assert.Equal(t, "marine hci", out[1].RiskType)
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "[]"} {
		out, err := decodeAll(t, in)
		require.NoError(t, err)
		assert.Empty(t, out)
	}
}

func TestDecodeJSONArray_NotAnArray(t *testing.T) {
	_, err := decodeAll(t, `{"risk_type":"iucn"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestDecodeJSONArray_BadElement(t *testing.T) {
	out, err := decodeAll(t, `[{"risk_type":"iucn"},{"risk_type":7}]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode element")
	assert.Len(t, out, 1)
}
