package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	ctx := newTestContext(t)

	resp, err := http.Get(ctx.baseURL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, "ok", string(body))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
}

func TestRoomsEndpointInDevMode(t *testing.T) {
	ctx := newTestContext(t)

	p := ctx.connect("Alice")
	p.join("R1")
	p.send(EventGetPlayer, map[string]string{"roomId": "R1", "playerName": "Alice", "playerId": "e1"})
	p.expect(EventPlayerList)

	resp, err := http.Get(ctx.baseURL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var rooms []RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	require.Equal(t, "R1", rooms[0].ID)
	require.True(t, rooms[0].Known)
	require.Equal(t, []Player{{Name: "Alice", ID: "e1"}}, rooms[0].Players)
}

func TestRoomsEndpointHiddenOutsideDevMode(t *testing.T) {
	ctx := newTestContext(t, func(cfg *AppConfig) { cfg.Dev = false })

	resp, err := http.Get(ctx.baseURL + "/rooms")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ctx := newTestContext(t, func(cfg *AppConfig) { cfg.AllowedOrigin = "https://moonlit.example" })

	req, err := http.NewRequest(http.MethodOptions, ctx.baseURL+"/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://moonlit.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://moonlit.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestAppLoggerChannels(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewAppLogger(LogConfig{OutputDir: dir, LogRequests: true, LogWS: true, LogRooms: true, WSPath: "/ws/"})
	require.NoError(t, err)
	require.True(t, logger.IsEnabled())

	logger.LogWebSocket("IN", "conn-1", `{"event":"joinRoom"}`)
	logger.LogRoom(RoomSnapshot{ID: "R1", Players: []Player{{Name: "Alice", ID: "e1"}}})

	h := &LoggingHandler{Handler: http.HandlerFunc(handleHealth), Logger: logger}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "ok", rec.Body.String())
	logger.Close()

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return string(data)
	}
	require.Contains(t, read("websocket.log"), `IN [Conn conn-1]: {"event":"joinRoom"}`)
	require.Contains(t, read("rooms.log"), `"name": "Alice"`)
	requests := read("requests.log")
	require.Contains(t, requests, "GET /healthz")
	require.True(t, strings.Contains(requests, "--- Response [200 OK] ---"), requests)
}

func TestAppLoggerWithoutOutputDir(t *testing.T) {
	logger, err := NewAppLogger(LogConfig{LogWS: true})
	require.NoError(t, err)
	// Nothing to write to; must not panic.
	logger.LogWebSocket("OUT", "c", "x")
	logger.LogRoom(RoomSnapshot{ID: "R"})
	logger.Close()
}
