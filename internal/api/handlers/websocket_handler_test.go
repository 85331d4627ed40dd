package handlers

import (
	"context"
	"net"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/pipeline"
)

// streamingRunner emits stage events until its context ends or limit is
// reached, then reports whether it saw a cancellation.
type streamingRunner struct {
	limit     int
	cancelled chan struct{}
}

func (r *streamingRunner) RunObserved(ctx context.Context, _ []analytics.Record, domain string, _ float64, observe pipeline.Observer) *pipeline.Result {
	for i := 0; i < r.limit; i++ {
		if ctx.Err() != nil {
			close(r.cancelled)
			break
		}
		observe(pipeline.Event{RunID: "run-1", Stage: pipeline.StageDerive, Status: pipeline.EventCompleted})
		time.Sleep(5 * time.Millisecond)
	}
	return &pipeline.Result{Report: &pipeline.Report{ID: "run-1", Domain: domain}}
}

func dialStrategy(t *testing.T, runner StrategyRunner) *fastws.Conn {
	t.Helper()

	h := NewWebSocketHandler(NewStrategyHandler(stubRecords{records: stored}, runner, nil, 50000))
	app := fiber.New()
	app.Get("/ws/strategy", websocket.New(h.HandleConnection))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/strategy", nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestWebSocketStreamsStagesThenResult(t *testing.T) {
	runner := &streamingRunner{limit: 2, cancelled: make(chan struct{})}
	conn := dialStrategy(t, runner)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "strategy", "domain": "electronics"}))

	var types []string
	var last map[string]interface{}
	for len(types) < 3 {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg["type"].(string))
		last = msg
	}

	assert.Equal(t, []string{"stage", "stage", "complete"}, types)
	assert.Equal(t, "run-1", last["run_id"])
	assert.Equal(t, false, last["failed"])
	result := last["result"].(map[string]interface{})
	assert.Equal(t, "electronics", result["domain"])
}

func TestWebSocketMissingDomain(t *testing.T) {
	conn := dialStrategy(t, &streamingRunner{cancelled: make(chan struct{})})
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "strategy", "domain": "  "}))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, msgMissingDomain, msg["error"])
}

func TestWebSocketDisconnectCancelsRun(t *testing.T) {
	runner := &streamingRunner{limit: 1000, cancelled: make(chan struct{})}
	conn := dialStrategy(t, runner)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "strategy", "domain": "electronics"}))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "stage", msg["type"])
	require.NoError(t, conn.Close())

	select {
	case <-runner.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("strategy run was not cancelled after the client went away")
	}
}
