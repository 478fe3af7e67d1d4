package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
)

func TestStreams(t *testing.T) {
	names, err := Streams()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"ad_targeter_plans",
		"blasts",
		"blast_query",
		"blast_repeats",
		"lists",
		"blast_save_list",
		"users",
		"purchase_log",
	}, names)
}

func TestGetReturnsValidJSON(t *testing.T) {
	names, err := Streams()
	require.NoError(t, err)

	for _, name := range names {
		schema, err := Get(name)
		require.NoError(t, err, name)

		var parsed struct {
			Type       string                 `json:"type"`
			Properties map[string]interface{} `json:"properties"`
		}
		require.NoError(t, jsonpool.Unmarshal(schema, &parsed), name)
		assert.Equal(t, "object", parsed.Type, name)
		assert.NotEmpty(t, parsed.Properties, name)
	}
}

func TestGetUnknownStream(t *testing.T) {
	_, err := Get("nope")
	assert.Error(t, err)
}

func TestValidateAcceptsGoodRecord(t *testing.T) {
	record := map[string]interface{}{
		"blast_id":    float64(123),
		"name":        "spring launch",
		"status":      "sent",
		"modify_time": "2021-02-03T21:59:09Z",
	}
	assert.NoError(t, Validate("blasts", record))
}

func TestValidateAllowsUnknownFields(t *testing.T) {
	record := map[string]interface{}{
		"list_id":      "1",
		"name":         "newsletter",
		"custom_field": "anything",
	}
	assert.NoError(t, Validate("lists", record))
}

func TestValidateRejectsWrongType(t *testing.T) {
	record := map[string]interface{}{
		"blast_id": "not-a-number",
	}
	assert.Error(t, Validate("blasts", record))
}

func TestValidateUnknownStream(t *testing.T) {
	assert.Error(t, Validate("nope", map[string]interface{}{}))
}
