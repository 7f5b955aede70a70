package inference

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionRequest_PromptAsBareString(t *testing.T) {
	var req CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","prompt":"hello"}`), &req))
	assert.Equal(t, "hello", req.Prompt)
}

func TestCompletionRequest_PromptAsSingleElementArray(t *testing.T) {
	var req CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","prompt":["hello"]}`), &req))
	assert.Equal(t, "hello", req.Prompt)
}

func TestCompletionRequest_PromptAsEmptyArray(t *testing.T) {
	var req CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","prompt":[]}`), &req))
	assert.Equal(t, "", req.Prompt)
}

func TestCompletionRequest_PromptArrayWithMultipleElementsIsRejected(t *testing.T) {
	var req CompletionRequest
	err := json.Unmarshal([]byte(`{"model":"m","prompt":["hello","world"]}`), &req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errPromptArrayTooLong)
}

func TestCompletionRequest_OtherFieldsStillDecode(t *testing.T) {
	var req CompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","prompt":"hi","temperature":0.5,"stop":["X"]}`), &req))
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, 0.5, req.Temperature)
	assert.Equal(t, []string{"X"}, req.Stop)
}
