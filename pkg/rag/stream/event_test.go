package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, ev Event, requestID string) map[string]interface{} {
	t.Helper()
	raw, err := Frame(ev, requestID)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestFrameStart(t *testing.T) {
	out := decode(t, Start{}, "req-1")
	assert.Equal(t, "start", out["status"])
	assert.Equal(t, "req-1", out["request_id"])
	_, hasContent := out["content"]
	assert.False(t, hasContent, "start carries no content")
}

func TestFrameProgressAlwaysCarriesDefaults(t *testing.T) {
	out := decode(t, Progress{Stage: "retrieval", Total: 3}, "")

	content, ok := out["content"].(map[string]interface{})
	require.True(t, ok)

	// Zero values must still be on the wire; the UI depends on them.
	assert.Equal(t, "retrieval", content["stage"])
	assert.Equal(t, float64(0), content["completed"])
	assert.Equal(t, float64(3), content["total"])
	assert.Equal(t, "", content["error"])
	_, hasAgent := content["agent_type"]
	assert.False(t, hasAgent, "optional fields are omitted when empty")
}

func TestFrameToken(t *testing.T) {
	out := decode(t, Token{Content: "Hel"}, "req-1")
	assert.Equal(t, "token", out["status"])
	assert.Equal(t, "Hel", out["content"])
}

func TestFrameDoneKeepsCompletedFlag(t *testing.T) {
	completed := decode(t, Done{Completed: true}, "")
	content := completed["content"].(map[string]interface{})
	assert.Equal(t, true, content["completed"])

	degraded := decode(t, Done{Completed: false}, "")
	content = degraded["content"].(map[string]interface{})
	assert.Equal(t, false, content["completed"])
}

func TestFrameError(t *testing.T) {
	out := decode(t, Error{Message: "backend down"}, "req-9")
	assert.Equal(t, "error", out["status"])
	content := out["content"].(map[string]interface{})
	assert.Equal(t, "backend down", content["message"])
}

func TestFrameWatchlistCapture(t *testing.T) {
	out := decode(t, WatchlistCapture{Added: []string{"盗梦空间"}}, "")
	assert.Equal(t, "watchlist_auto_capture", out["status"])
	content := out["content"].(map[string]interface{})
	added := content["added"].([]interface{})
	require.Len(t, added, 1)
	assert.Equal(t, "盗梦空间", added[0])
}
