package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arvidsson/benor-agreement/api"
	"github.com/arvidsson/benor-agreement/consensus"
	"github.com/arvidsson/benor-agreement/core"
)

// fakeEngine is a no-op stand-in for *consensus.Engine so handler tests
// don't need a running round loop.
type fakeEngine struct {
	startErr    error
	startCalls  int
	stopCalls   int
	capturedCtx context.Context
}

func (f *fakeEngine) Start(ctx context.Context) error {
	f.startCalls++
	f.capturedCtx = ctx
	return f.startErr
}

func (f *fakeEngine) Stop() {
	f.stopCalls++
}

func newTestServer(t *testing.T, cfg consensus.Config, eng *fakeEngine) (*httptest.Server, *consensus.NodeState, *consensus.Inbox) {
	t.Helper()
	state := consensus.NewNodeState(cfg)
	inbox := consensus.NewInbox()
	readiness := consensus.NewReadiness()

	srv := api.NewServer("127.0.0.1:0", cfg, state, inbox, eng, readiness, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, state, inbox
}

func TestStatusLiveForNonFaultyNode(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFaultyReturns500(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 1, NodeID: 2, IsFaulty: true}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestMessageValidPayloadIsTallied(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	ts, _, inbox := newTestServer(t, cfg, &fakeEngine{})

	body := `{"type":"R","round":1,"val":"1","sender":2}`
	resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, inbox.Count(core.PhaseR, 1, core.One))
}

func TestMessageSenderOptionalDefaultsToZero(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	ts, _, inbox := newTestServer(t, cfg, &fakeEngine{})

	body := `{"type":"R","round":1,"val":"1"}`
	resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, inbox.Count(core.PhaseR, 1, core.One))
}

func TestMessageMissingFieldIsRejected(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	body := `{"type":"R","val":"1","sender":2}`
	resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageInvalidValIsRejected(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	body := `{"type":"R","round":1,"val":"5","sender":2}`
	resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageOnKilledNodeIsNoOp(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	ts, state, inbox := newTestServer(t, cfg, &fakeEngine{})
	state.Kill()

	body := `{"type":"R","round":1,"val":"1","sender":2}`
	resp, err := http.Post(ts.URL+"/message", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, inbox.Count(core.PhaseR, 1, core.One))
}

func TestStartSuccess(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	eng := &fakeEngine{}
	ts, _, _ := newTestServer(t, cfg, eng)

	resp, err := http.Get(ts.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, eng.startCalls)
}

// TestStartUsesLongLivedContextNotRequestContext guards against passing the
// per-request context to the engine: net/http cancels that context the
// instant the handler returns, which would kill the round loop before it
// ran a single round.
func TestStartUsesLongLivedContextNotRequestContext(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	eng := &fakeEngine{}
	ts, _, _ := newTestServer(t, cfg, eng)

	resp, err := http.Get(ts.URL + "/start")
	require.NoError(t, err)
	resp.Body.Close()

	require.NotNil(t, eng.capturedCtx)
	require.NoError(t, eng.capturedCtx.Err())
}

func TestStartFailureReturns500(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	eng := &fakeEngine{startErr: consensus.ErrFaulty}
	ts, _, _ := newTestServer(t, cfg, eng)

	resp, err := http.Get(ts.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestStopCallsEngineStop(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.Zero}
	eng := &fakeEngine{}
	ts, _, _ := newTestServer(t, cfg, eng)

	resp, err := http.Get(ts.URL + "/stop")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, eng.stopCalls)
}

func TestGetStateFaultyBranch(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 1, NodeID: 2, IsFaulty: true}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/getState")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Nil(t, out["x"])
	require.Nil(t, out["decided"])
	require.Nil(t, out["k"])
}

func TestGetStateExceedingBranchFloorsK(t *testing.T) {
	cfg := consensus.Config{N: 10, F: 5, NodeID: 0, InitialValue: core.Zero}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/getState")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, false, out["decided"])
	require.GreaterOrEqual(t, out["k"].(float64), float64(11))
}

func TestGetStateNormalBranch(t *testing.T) {
	cfg := consensus.Config{N: 3, F: 0, NodeID: 0, InitialValue: core.One}
	ts, _, _ := newTestServer(t, cfg, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/getState")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, float64(1), out["x"])
	require.Equal(t, false, out["decided"])
	require.Equal(t, float64(1), out["k"])
}
