package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/hub"
	"github.com/pable/versus-overlay/internal/ingest"
	"github.com/pable/versus-overlay/internal/model"
	"github.com/pable/versus-overlay/internal/overlay"
)

type stubIngester struct {
	run model.IngestRun
	err error
}

func (s stubIngester) RunOnce(context.Context) (model.IngestRun, error) { return s.run, s.err }

type stubRuns []model.IngestRun

func (s stubRuns) ListIngestRuns(limit int) ([]model.IngestRun, error) {
	if limit < len(s) {
		return s[:limit], nil
	}
	return s, nil
}

type fixture struct {
	store *overlay.Store
	hub   *hub.Hub
	srv   *httptest.Server
}

func newFixture(t *testing.T, ing Ingester, runs RunLog) *fixture {
	t.Helper()
	quiet := log.New(io.Discard)
	h := hub.New(hub.Options{Logger: quiet})
	store := overlay.NewStore(overlay.State{}, h, overlay.Options{Logger: quiet})

	var r1, r2 model.Row
	r1[model.ColWinner], r1[model.ColLoser] = "alice", "bob"
	r1[model.ColLevel], r1[model.ColWinnerTime], r1[model.ColLoserTime] = "1-1", "1:30", "1:45"
	r2[model.ColWinner], r2[model.ColLoser] = "carol", "alice"
	r2[model.ColLevel], r2[model.ColWinnerTime], r2[model.ColLoserTime] = "1-1", "1:20", "2:00"
	store.ReplaceIndex(aggregator.BuildIndex([]model.Row{r1, r2}), model.Seeds{"alice": "1"})

	s := NewServer(store, h, ing, runs, quiet)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return &fixture{store: store, hub: h, srv: srv}
}

func (f *fixture) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, hub.EventHello, readMsg(t, conn).Event)
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) hub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg hub.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var msg hub.Message
	assert.Error(t, conn.ReadJSON(&msg), "unexpected frame %q", msg.Event)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, nil)

	var body map[string]any
	status := getJSON(t, f.srv.URL+"/api/health", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["players"])
}

func TestPostState_AppliesAndBroadcasts(t *testing.T) {
	f := newFixture(t, nil, nil)
	graphics := f.dial(t, "graphics")
	dash := f.dial(t, "dash")
	require.Eventually(t, func() bool { return f.hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/state",
		strings.NewReader(`{"playerLeft":"alice","level":"1-1","scoreLeft":2}`))
	req.Header.Set(ClientHeader, "dash")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st overlay.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "1 - 1", st.PlayerLeftWinLoss)
	assert.Equal(t, "1:30", st.PlayerLeftTourneyPB)
	assert.Equal(t, "1", st.PlayerLeftSeed)

	msg := readMsg(t, graphics)
	assert.Equal(t, overlay.EventUpdate, msg.Event)
	var upd overlay.Update
	require.NoError(t, json.Unmarshal(msg.Data, &upd))
	assert.Equal(t, 2, upd.ScoreLeft)
	assert.Equal(t, "dash", upd.SocketID)

	expectSilence(t, dash)
}

func TestPostState_BadPatch(t *testing.T) {
	f := newFixture(t, nil, nil)

	resp, err := http.Post(f.srv.URL+"/api/state", "application/json", strings.NewReader(`{"scoreLeft":"two"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, f.store.State().ScoreLeft)
}

func TestResetState(t *testing.T) {
	f := newFixture(t, nil, nil)
	two := 2
	f.store.ApplyPatch(overlay.Patch{ScoreLeft: &two}, "")

	resp, err := http.Post(f.srv.URL+"/api/state/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, f.store.State().ScoreLeft)
}

func TestWebsocketUpdateExcludesSender(t *testing.T) {
	f := newFixture(t, nil, nil)
	graphics := f.dial(t, "graphics")
	dash := f.dial(t, "dash")
	require.Eventually(t, func() bool { return f.hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, dash.WriteJSON(hub.Message{
		Event:    overlay.EventUpdateData,
		ClientID: "dash",
		Data:     json.RawMessage(`{"round":"Grand Final","unknown":1}`),
	}))

	msg := readMsg(t, graphics)
	var upd overlay.Update
	require.NoError(t, json.Unmarshal(msg.Data, &upd))
	assert.Equal(t, "Grand Final", upd.Round)
	expectSilence(t, dash)
	assert.Equal(t, "Grand Final", f.store.State().Round)
}

func TestWebsocketUntaggedUpdateEchoesToSender(t *testing.T) {
	f := newFixture(t, nil, nil)
	graphics := f.dial(t, "graphics")
	dash := f.dial(t, "dash")
	require.Eventually(t, func() bool { return f.hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, dash.WriteJSON(hub.Message{
		Event: overlay.EventUpdateData,
		Data:  json.RawMessage(`{"playerLeft":"alice","level":"1-1"}`),
	}))

	for _, conn := range []*websocket.Conn{dash, graphics} {
		msg := readMsg(t, conn)
		assert.Equal(t, overlay.EventUpdate, msg.Event)
		var upd overlay.Update
		require.NoError(t, json.Unmarshal(msg.Data, &upd))
		assert.Equal(t, "alice", upd.PlayerLeft)
		assert.Equal(t, "1 - 1", upd.PlayerLeftWinLoss)
		assert.Equal(t, "1:30", upd.PlayerLeftTourneyPB)
		assert.Equal(t, "1:45", upd.PlayerLeftAverageTime)
	}
}

func TestWebsocketStateRequestRepliesToRequesterOnly(t *testing.T) {
	f := newFixture(t, nil, nil)
	graphics := f.dial(t, "graphics")
	dash := f.dial(t, "dash")
	require.Eventually(t, func() bool { return f.hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, dash.WriteJSON(hub.Message{Event: overlay.EventStateRequest, ClientID: "dash"}))

	msg := readMsg(t, dash)
	assert.Equal(t, overlay.EventUpdate, msg.Event)
	var upd overlay.Update
	require.NoError(t, json.Unmarshal(msg.Data, &upd))
	assert.Equal(t, "dash", upd.SocketID)
	expectSilence(t, graphics)
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil, nil)

	var body statsResponse
	status := getJSON(t, f.srv.URL+"/api/stats/alice?level=1-1", &body)

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Found)
	assert.Equal(t, 1, body.Wins)
	assert.Equal(t, 1, body.Losses)
	assert.Equal(t, 90, body.PB)
	assert.Equal(t, "1:30", body.PBText)

	status = getJSON(t, f.srv.URL+"/api/stats/nobody?level=1-1", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, body.Found)
	assert.Equal(t, "8:88", body.PBText)

	var errBody map[string]string
	status = getJSON(t, f.srv.URL+"/api/stats/alice", &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPlayersLevelsLeaderboard(t *testing.T) {
	f := newFixture(t, nil, nil)

	var players, levels []string
	getJSON(t, f.srv.URL+"/api/players", &players)
	getJSON(t, f.srv.URL+"/api/levels", &levels)
	assert.Equal(t, []string{"alice", "bob", "carol"}, players)
	assert.Equal(t, []string{"1-1"}, levels)

	var board []statsResponse
	getJSON(t, f.srv.URL+"/api/leaderboard?level=1-1", &board)
	require.Len(t, board, 3)
	assert.Equal(t, "carol", board[0].Player)
}

func TestIngestEndpoint(t *testing.T) {
	ok := newFixture(t, stubIngester{run: model.IngestRun{Rows: 12, Players: 4}}, nil)
	var run model.IngestRun
	status := getJSONPost(t, ok.srv.URL+"/api/ingest", &run)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 12, run.Rows)

	busy := newFixture(t, stubIngester{err: ingest.ErrBusy}, nil)
	var body map[string]string
	assert.Equal(t, http.StatusConflict, getJSONPost(t, busy.srv.URL+"/api/ingest", &body))

	failed := newFixture(t, stubIngester{err: errors.New("quota exceeded")}, nil)
	assert.Equal(t, http.StatusBadGateway, getJSONPost(t, failed.srv.URL+"/api/ingest", &body))
	assert.Equal(t, "quota exceeded", body["error"])

	none := newFixture(t, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, getJSONPost(t, none.srv.URL+"/api/ingest", &body))
}

func TestIngestRuns(t *testing.T) {
	f := newFixture(t, nil, stubRuns{{ID: 2, Rows: 10}, {ID: 1, Error: "boom"}})

	var runs []model.IngestRun
	getJSON(t, f.srv.URL+"/api/ingest?limit=1", &runs)

	require.Len(t, runs, 1)
	assert.Equal(t, int64(2), runs[0].ID)
}

func getJSONPost(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}
