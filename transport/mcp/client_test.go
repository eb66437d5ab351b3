package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/karel/api"
	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/service"
	"github.com/wricardo/karel/game/session"
	"github.com/wricardo/karel/transport/websocket"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:8080/")

	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.GetMCPServer())
}

// newTestClient runs the REST API over httptest and points a client at it.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.w"), []byte("Dimension: (3, 3)\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "line.w"), []byte("Dimension: (5, 1)\nRobot: (1, 1) east\nRobotBag: INFINITE\n"), 0644))
	worlds, err := library.New(dir, zap.NewNop())
	require.NoError(t, err)

	store, err := history.Open(history.DriverSQLite, filepath.Join(t.TempDir(), "runs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	programs, err := program.NewRegistry(program.Samples()...)
	require.NoError(t, err)

	svc := service.NewKarelService(session.NewManager(zap.NewNop()), worlds, programs, service.WithHistory(store))
	t.Cleanup(func() { _ = svc.Close() })

	srv := httptest.NewServer(api.NewServer(svc, websocket.NewHub(zap.NewNop()), zap.NewNop()))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

var sessionLine = regexp.MustCompile(`Session: (\S+)`)

func createSession(t *testing.T, c *Client, world string) string {
	t.Helper()
	result, err := c.handleCreateSession(context.Background(), callTool("create_session", map[string]interface{}{"world": world}))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	m := sessionLine.FindStringSubmatch(text)
	require.Len(t, m, 2, text)
	return m[1]
}

func TestRunProgramFlow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	id := createSession(t, c, "line")

	result, err := c.handleRun(ctx, callTool("run_program", map[string]interface{}{
		"session_id": id,
		"program":    "tester",
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Program tester completed after 8 instructions")
	assert.Contains(t, text, "| 1   1   1   1   > |")

	// a finished session must be reset first
	result, err = c.handleRun(ctx, callTool("run_program", map[string]interface{}{
		"session_id": id,
		"program":    "tester",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "reset first")

	result, err = c.handleRunHistory(ctx, callTool("run_history", map[string]interface{}{"session_id": id}))
	require.NoError(t, err)
	text = resultText(t, result)
	assert.Contains(t, text, "total 1")
	assert.Contains(t, text, "tester on line: completed, 8 instructions")

	result, err = c.handleReset(ctx, callTool("reset_world", map[string]interface{}{"session_id": id}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "| >   .   .   .   . |")

	// Lua source with an instruction limit
	result, err = c.handleRun(ctx, callTool("run_program", map[string]interface{}{
		"session_id":        id,
		"source":            "while true do turnLeft() end",
		"instruction_limit": float64(3),
	}))
	require.NoError(t, err)
	text = resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "cancelled after 3 instructions")

	result, err = c.handleGetSession(ctx, callTool("get_session", map[string]interface{}{"session_id": id}))
	require.NoError(t, err)
	text = resultText(t, result)
	assert.Contains(t, text, "State: cancelled")
	assert.Contains(t, text, "Last run: inline cancelled")
}

func TestWorldEditingTools(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	id := createSession(t, c, "")

	result, err := c.handlePlaceRobot(ctx, callTool("place_robot", map[string]interface{}{
		"session_id": id,
		"x":          float64(2),
		"y":          float64(2),
		"direction":  "north",
		"bag":        float64(4),
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "| .   ^   . |")

	result, err = c.handleSetBeepers(ctx, callTool("set_beepers", map[string]interface{}{
		"session_id": id, "x": float64(3), "y": float64(1), "count": float64(5),
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "| .   .   5 |")

	result, err = c.handleToggleWall(ctx, callTool("toggle_wall", map[string]interface{}{
		"session_id": id, "x": float64(1), "y": float64(1), "direction": "east",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "| . | .   5 |")

	result, err = c.handlePlaceRobot(ctx, callTool("place_robot", map[string]interface{}{
		"session_id": id, "x": float64(9), "y": float64(9), "direction": "north",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = c.handlePlaceRobot(ctx, callTool("place_robot", map[string]interface{}{
		"session_id": id, "x": float64(1), "y": float64(1), "direction": "up",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = c.handleLoadWorld(ctx, callTool("load_world", map[string]interface{}{
		"session_id": id,
		"name":       "tiny",
		"text":       "Dimension: (2, 1)\nRobot: (2, 1) west\n",
	}))
	require.NoError(t, err)
	text = resultText(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "World: tiny")
	assert.Contains(t, text, "| .   < |")
}

func TestLibraryTools(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	result, err := c.handleListWorlds(ctx, callTool("list_worlds", nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Worlds (2)")
	assert.Contains(t, text, "line: 5x1, 0 walls, 0 beepers, 1 robots")

	result, err = c.handleGetWorld(ctx, callTool("get_world", map[string]interface{}{"name": "line"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Dimension: (5, 1)")

	result, err = c.handleGetWorld(ctx, callTool("get_world", map[string]interface{}{"name": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = c.handleListPrograms(ctx, callTool("list_programs", nil))
	require.NoError(t, err)
	text = resultText(t, result)
	assert.Contains(t, text, "- tester [karel, go] world=test")
	assert.Contains(t, text, "- painter [superkarel, go]")

	result, err = c.handleInstructions(ctx, callTool("karel_instructions", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "turnLeft()")
}

func TestSessionErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	result, err := c.handleListSessions(ctx, callTool("list_sessions", nil))
	require.NoError(t, err)
	assert.Equal(t, "No active sessions", resultText(t, result))

	result, err = c.handleGetSession(ctx, callTool("get_session", map[string]interface{}{"session_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")

	// session_id is required
	result, err = c.handleRender(ctx, callTool("render_world", map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = c.handleCreateSession(ctx, callTool("create_session", map[string]interface{}{"world": "atlantis"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Available worlds: [default line]")

	id := createSession(t, c, "line")
	result, err = c.handleListSessions(ctx, callTool("list_sessions", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), id+": world=line state=loaded")

	result, err = c.handleCancel(ctx, callTool("cancel_run", map[string]interface{}{"session_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/text":
			w.Write([]byte("plain"))
		case "/teapot":
			w.WriteHeader(http.StatusTeapot)
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad things"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	var result map[string]string
	require.NoError(t, client.apiCall(ctx, "GET", "/json", nil, &result))
	assert.Equal(t, "ok", result["status"])

	var text string
	require.NoError(t, client.apiCall(ctx, "GET", "/text", nil, &text))
	assert.Equal(t, "plain", text)

	assert.EqualError(t, client.apiCall(ctx, "GET", "/teapot", nil, nil), "API error: 418")
	assert.EqualError(t, client.apiCall(ctx, "POST", "/other", map[string]int{"x": 1}, nil), "bad things")
}
