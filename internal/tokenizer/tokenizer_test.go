package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StableBody strips the model field and renders object keys sorted, so
// equal requests always serialize equally.
func TestStableBodyStripsModelAndSortsKeys(t *testing.T) {
	a, err := StableBody([]byte(`{"model":"m","b":1,"a":{"z":1,"y":[2,1]}}`))
	require.NoError(t, err)
	b, err := StableBody([]byte(`{"a":{"y":[2,1],"z":1},"b":1,"model":"other"}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotContains(t, a, "model")
	assert.Equal(t, `{"a":{"y":[2,1],"z":1},"b":1}`, a)
}

func TestStableBodyRejectsNonJSON(t *testing.T) {
	_, err := StableBody([]byte("not json"))
	assert.Error(t, err)
}

func TestSanitizeModel(t *testing.T) {
	assert.Equal(t, "org_model", sanitizeModel("org/model"))
	assert.Equal(t, "a_b_c", sanitizeModel("a/b:c"))
}
