package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
	Skip  string `json:"-"`
}

func TestExtraFieldsCollectsUnknownMembers(t *testing.T) {
	data := []byte(`{"name":"a","count":2,"vendor_field":{"x":1},"another":true}`)
	var s sample
	require.NoError(t, json.Unmarshal(data, &s))
	extra := ExtraFields(data, s)
	require.Len(t, extra, 2)
	assert.JSONEq(t, `{"x":1}`, string(extra["vendor_field"]))
	assert.JSONEq(t, `true`, string(extra["another"]))
}

func TestExtraFieldsNilWhenAllKnown(t *testing.T) {
	data := []byte(`{"name":"a"}`)
	var s sample
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Nil(t, ExtraFields(data, s))
}

func TestMergeExtraRoundTrip(t *testing.T) {
	data := []byte(`{"name":"a","count":2,"vendor_field":"kept"}`)
	var s sample
	require.NoError(t, json.Unmarshal(data, &s))
	extra := ExtraFields(data, s)

	merged, err := MergeExtra(s, extra)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(merged))
}

// Typed values win over extras of the same name after mutation.
func TestMergeExtraTypedWins(t *testing.T) {
	extra := map[string]json.RawMessage{"name": json.RawMessage(`"stale"`)}
	merged, err := MergeExtra(sample{Name: "fresh"}, extra)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(merged, &decoded))
	assert.Equal(t, "fresh", decoded["name"])
}
