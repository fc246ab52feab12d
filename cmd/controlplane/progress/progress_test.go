package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeon/renderplane/common/logger"
)

func TestRegistry_SetGetClear(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("p1")
	assert.False(t, ok)

	r.Set(Progress{PromptID: "p1", NodeID: "n1", Percent: 40, Status: StatusRunning})

	got, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 40.0, got.Percent)
	assert.Equal(t, StatusRunning, got.Status)
	assert.NotZero(t, got.UpdatedAt)

	r.Clear("p1")
	_, ok = r.Get("p1")
	assert.False(t, ok)
}

func TestRegistry_ClaimIsExclusive(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.claim("p1"))
	assert.False(t, r.claim("p1"))

	r.release("p1")
	assert.True(t, r.claim("p1"))

	// clearing a prompt also frees its tracking slot
	r.Clear("p1")
	assert.True(t, r.claim("p1"))
}

func TestTracker_HandleProgressEvent(t *testing.T) {
	r := NewRegistry()
	tr := NewTracker(r, 0, logger.New("error", "text"))

	terminal := tr.handle(wsEvent{
		Type: "progress",
		Data: map[string]any{"prompt_id": "p1", "value": float64(5), "max": float64(20)},
	}, "n1", "p1")
	assert.False(t, terminal)

	got, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 25.0, got.Percent)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestTracker_HandleIgnoresOtherPrompts(t *testing.T) {
	r := NewRegistry()
	tr := NewTracker(r, 0, logger.New("error", "text"))

	terminal := tr.handle(wsEvent{
		Type: "execution_success",
		Data: map[string]any{"prompt_id": "other"},
	}, "n1", "p1")
	assert.False(t, terminal)

	_, ok := r.Get("p1")
	assert.False(t, ok)
}

func TestTracker_HandleTerminalEvents(t *testing.T) {
	r := NewRegistry()
	tr := NewTracker(r, 0, logger.New("error", "text"))

	terminal := tr.handle(wsEvent{
		Type: "execution_success",
		Data: map[string]any{"prompt_id": "p1"},
	}, "n1", "p1")
	assert.True(t, terminal)

	got, _ := r.Get("p1")
	assert.Equal(t, StatusDone, got.Status)
	assert.Equal(t, 100.0, got.Percent)

	terminal = tr.handle(wsEvent{
		Type: "execution_error",
		Data: map[string]any{"prompt_id": "p2", "error": "CUDA out of memory"},
	}, "n1", "p2")
	assert.True(t, terminal)

	got, _ = r.Get("p2")
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "CUDA out of memory", got.Message)
}

func TestNewTracker_PingInterval(t *testing.T) {
	r := NewRegistry()
	log := logger.New("error", "text")

	tr := NewTracker(r, 5*time.Second, log)
	assert.Equal(t, 5*time.Second, tr.pingPeriod)
	assert.Equal(t, 15*time.Second, tr.pongWait)

	// Unset interval falls back to the default keepalive
	tr = NewTracker(r, 0, log)
	assert.Equal(t, defaultPingInterval, tr.pingPeriod)
	assert.Greater(t, tr.pongWait, tr.pingPeriod)
}

func TestPercentClamping(t *testing.T) {
	v := func(f float64) *float64 { return &f }

	assert.Equal(t, 0.0, percent(nil, nil))
	assert.Equal(t, 0.0, percent(v(5), v(0)))
	assert.Equal(t, 50.0, percent(v(5), v(10)))
	assert.Equal(t, 100.0, percent(v(15), v(10)))
	assert.Equal(t, 0.0, percent(v(-5), v(10)))
}

func TestWSURL(t *testing.T) {
	assert.Equal(t, "ws://gpu01:8188/ws?clientId=p1", wsURL("http://gpu01:8188", "p1"))
	assert.Equal(t, "wss://gpu01/ws?clientId=p1", wsURL("https://gpu01/", "p1"))
	assert.Equal(t, "ws://gpu01:8188/ws?clientId=p1", wsURL("gpu01:8188", "p1"))
}
