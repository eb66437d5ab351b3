package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// synchronous runs wait for the program to finish
			Timeout: 2 * time.Minute,
		},
	}

	c.initMCPServer()
	return c
}

const instructions = `Karel the Robot - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Karel lives on a grid of avenues (x, west to east) and streets (y, south to
north), both starting at 1. Walls block movement; corners hold beepers and may
be painted. Karel carries a beeper bag, possibly infinite.

AVAILABLE TOOLS:
- create_session: Create a session with a world loaded
- list_sessions / get_session: Inspect sessions
- render_world: ASCII view of the session's world
- load_world: Load a library world or world-file text into a session
- place_robot: Put Karel on a corner, facing a direction, with a bag
- toggle_wall / set_beepers: Edit the world
- run_program: Run a registered program or Lua source
- cancel_run / reset_world: Stop a run, restore the loaded world
- run_history: Past runs of a session
- list_programs / list_worlds / get_world: Browse what is available
- karel_instructions: The Karel and SuperKarel instruction set`

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Karel",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)

	c.registerTools()
}

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID"))
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new session with a library world loaded (the default world when omitted)"),
		mcp.WithString("world", mcp.Description("World ID from list_worlds (optional)")),
	), c.handleCreateSession)

	c.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List all active sessions"),
	), c.handleListSessions)

	c.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get details of a session including its world"),
		sessionArg(),
	), c.handleGetSession)

	// World operations
	c.mcpServer.AddTool(mcp.NewTool("render_world",
		mcp.WithDescription("Render the session's world as ASCII art"),
		sessionArg(),
	), c.handleRender)

	c.mcpServer.AddTool(mcp.NewTool("load_world",
		mcp.WithDescription("Load a library world, or world-file text, into the session"),
		sessionArg(),
		mcp.WithString("world", mcp.Description("World ID from list_worlds")),
		mcp.WithString("text", mcp.Description("World file text, e.g. \"Dimension: (5, 5)\\nRobot: (1, 1) east\\n\"")),
		mcp.WithString("name", mcp.Description("Name for a world given as text")),
	), c.handleLoadWorld)

	c.mcpServer.AddTool(mcp.NewTool("place_robot",
		mcp.WithDescription("Place Karel on a corner"),
		sessionArg(),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Avenue, from 1")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Street, from 1")),
		mcp.WithString("direction", mcp.Required(), mcp.Enum("north", "east", "south", "west")),
		mcp.WithNumber("bag", mcp.Description("Beepers in the bag")),
		mcp.WithBoolean("infinite_bag", mcp.Description("Give Karel an infinite bag")),
	), c.handlePlaceRobot)

	c.mcpServer.AddTool(mcp.NewTool("toggle_wall",
		mcp.WithDescription("Add or remove the wall on one side of a corner"),
		sessionArg(),
		mcp.WithNumber("x", mcp.Required()),
		mcp.WithNumber("y", mcp.Required()),
		mcp.WithString("direction", mcp.Required(), mcp.Enum("north", "east", "south", "west")),
	), c.handleToggleWall)

	c.mcpServer.AddTool(mcp.NewTool("set_beepers",
		mcp.WithDescription("Set the number of beepers on a corner (-1 for infinite)"),
		sessionArg(),
		mcp.WithNumber("x", mcp.Required()),
		mcp.WithNumber("y", mcp.Required()),
		mcp.WithNumber("count", mcp.Required()),
	), c.handleSetBeepers)

	c.mcpServer.AddTool(mcp.NewTool("reset_world",
		mcp.WithDescription("Restore the world to its state when loaded"),
		sessionArg(),
	), c.handleReset)

	// Programs
	c.mcpServer.AddTool(mcp.NewTool("run_program",
		mcp.WithDescription("Run a registered program, or Lua source using the Karel instructions as global functions"),
		sessionArg(),
		mcp.WithString("program", mcp.Description("Registered program name (see list_programs)")),
		mcp.WithString("source", mcp.Description("Lua source, e.g. \"while frontIsClear() do move() end\"")),
		mcp.WithString("kind", mcp.Enum("karel", "superkarel"), mcp.Description("Instruction set for Lua source (default superkarel)")),
		mcp.WithString("world", mcp.Description("Load this library world first")),
		mcp.WithNumber("instruction_limit", mcp.Description("Stop after this many instructions")),
		mcp.WithBoolean("reset", mcp.Description("Reset a finished session before running")),
	), c.handleRun)

	c.mcpServer.AddTool(mcp.NewTool("cancel_run",
		mcp.WithDescription("Cancel the running program"),
		sessionArg(),
	), c.handleCancel)

	c.mcpServer.AddTool(mcp.NewTool("run_history",
		mcp.WithDescription("List past runs of a session"),
		sessionArg(),
		mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
		mcp.WithNumber("limit", mcp.Description("Runs per page (default 20)")),
		mcp.WithString("order", mcp.Enum("asc", "desc")),
	), c.handleRunHistory)

	c.mcpServer.AddTool(mcp.NewTool("list_programs",
		mcp.WithDescription("List registered programs"),
	), c.handleListPrograms)

	// World library
	c.mcpServer.AddTool(mcp.NewTool("list_worlds",
		mcp.WithDescription("List worlds in the library"),
	), c.handleListWorlds)

	c.mcpServer.AddTool(mcp.NewTool("get_world",
		mcp.WithDescription("Show a library world's file and rendering"),
		mcp.WithString("name", mcp.Required()),
	), c.handleGetWorld)

	c.mcpServer.AddTool(mcp.NewTool("karel_instructions",
		mcp.WithDescription("Describe the Karel and SuperKarel instruction sets and world file format"),
	), c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result == nil {
		return nil
	}
	if s, ok := result.(*string); ok {
		data, err := io.ReadAll(resp.Body)
		*s = string(data)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) render(ctx context.Context, sessionID string) string {
	var out string
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "render"), nil, &out); err != nil {
		return fmt.Sprintf("(render failed: %v)", err)
	}
	return out
}

func sessionPath(sessionID, op string) string {
	p := "/api/sessions/" + url.PathEscape(sessionID)
	if op != "" {
		p += "/" + op
	}
	return p
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body := map[string]string{}
	if world := request.GetString("world", ""); world != "" {
		body["world"] = world
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &info); err != nil {
		return toolError(err)
	}

	return mcp.NewToolResultText(formatSessionInfo(&info) + "\n" + c.render(ctx, info.ID)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var resp struct {
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &resp); err != nil {
		return toolError(err)
	}

	if len(resp.Sessions) == 0 {
		return mcp.NewToolResultText("No active sessions"), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active sessions (%d):\n", len(resp.Sessions))
	for _, s := range resp.Sessions {
		fmt.Fprintf(&b, "- %s: world=%s state=%s last_accessed=%s\n",
			s.ID, s.WorldName, s.State, s.LastAccessedAt.Format("2006-01-02 15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &info); err != nil {
		return toolError(err)
	}

	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleRender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}

	var out string
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "render"), nil, &out); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(out), nil
}

func (c *Client) handleLoadWorld(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}
	body := map[string]string{
		"world": request.GetString("world", ""),
		"name":  request.GetString("name", ""),
		"text":  request.GetString("text", ""),
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "world"), body, &info); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(formatSessionInfo(&info) + "\n" + c.render(ctx, sessionID)), nil
}

func (c *Client) handlePlaceRobot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}
	req := service.PlaceRequest{
		X:           request.GetInt("x", 0),
		Y:           request.GetInt("y", 0),
		Direction:   request.GetString("direction", ""),
		Bag:         request.GetInt("bag", 0),
		InfiniteBag: request.GetBool("infinite_bag", false),
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "robot"), req, nil); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(c.render(ctx, sessionID)), nil
}

func (c *Client) handleToggleWall(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}
	req := service.EditRequest{ToggleWalls: []service.WallEdit{{
		X:         request.GetInt("x", 0),
		Y:         request.GetInt("y", 0),
		Direction: request.GetString("direction", ""),
	}}}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "edit"), req, nil); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(c.render(ctx, sessionID)), nil
}

func (c *Client) handleSetBeepers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}
	req := service.EditRequest{Beepers: []service.BeeperEdit{{
		X:     request.GetInt("x", 0),
		Y:     request.GetInt("y", 0),
		Count: request.GetInt("count", 0),
	}}}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "edit"), req, nil); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(c.render(ctx, sessionID)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "reset"), nil, nil); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("World reset\n\n" + c.render(ctx, sessionID)), nil
}

func (c *Client) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}
	req := service.RunRequest{
		Program:          request.GetString("program", ""),
		Source:           request.GetString("source", ""),
		Kind:             request.GetString("kind", ""),
		World:            request.GetString("world", ""),
		InstructionLimit: request.GetInt("instruction_limit", 0),
		Reset:            request.GetBool("reset", false),
	}

	var resp service.RunResponse
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "run"), req, &resp); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(formatRun(&resp) + "\n" + c.render(ctx, sessionID)), nil
}

func (c *Client) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "cancel"), nil, nil); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("Cancellation requested"), nil
}

func (c *Client) handleRunHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(err)
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(request.GetInt("page", 1)))
	q.Set("limit", fmt.Sprint(request.GetInt("limit", 20)))
	q.Set("order", request.GetString("order", "desc"))

	var page history.Page
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "history")+"?"+q.Encode(), nil, &page); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(formatHistory(&page)), nil
}

func (c *Client) handleListPrograms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var programs []program.Info
	if err := c.apiCall(ctx, "GET", "/api/programs", nil, &programs); err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Programs (%d):\n", len(programs))
	for _, p := range programs {
		fmt.Fprintf(&b, "- %s [%s, %s]", p.Name, p.Kind, p.Language)
		if p.World != "" {
			fmt.Fprintf(&b, " world=%s", p.World)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListWorlds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var worlds []library.WorldInfo
	if err := c.apiCall(ctx, "GET", "/api/worlds", nil, &worlds); err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Worlds (%d):\n", len(worlds))
	for _, w := range worlds {
		b.WriteString("- " + formatWorldInfo(&w) + "\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetWorld(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return toolError(err)
	}

	var detail service.WorldDetail
	if err := c.apiCall(ctx, "GET", "/api/worlds/"+url.PathEscape(name), nil, &detail); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(formatWorldInfo(detail.Info) + "\n\n" + detail.Text), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(karelInstructions), nil
}

const karelInstructions = `# Karel instructions

Lua programs call these as global functions.

## Karel
Actions: move(), turnLeft(), pickBeeper(), putBeeper()
Sensors (return booleans): frontIsClear(), frontIsBlocked(), leftIsClear(),
leftIsBlocked(), rightIsClear(), rightIsBlocked(), beepersPresent(),
noBeepersPresent(), beepersInBag(), noBeepersInBag(), facingNorth(),
facingEast(), facingSouth(), facingWest(), notFacingNorth(), notFacingEast(),
notFacingSouth(), notFacingWest()

## SuperKarel adds
turnRight(), turnAround(), paintCorner(color), cornerColorIs(color),
random(p), pause(ms)
Colors: black, blue, cyan, dark_gray, gray, green, light_gray, magenta,
orange, pink, red, white, yellow

## Errors
A run stops at the first failing instruction: moving into a wall (Blocked),
picking where there is no beeper (NoBeeperHere), putting with an empty bag
(BagEmpty). The world keeps every change made before the failure; use
reset_world to start over.

## World files
Dimension: (width, height)
Wall: (x, y) north|east|south|west
Beeper: (x, y) count|INFINITE
Color: (x, y) color
Robot: (x, y) direction
RobotBag: count|INFINITE
Speed: 0.0-1.0`

// Formatting helpers

func formatSessionInfo(info *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nWorld: %s\nState: %s\nCreated: %s\n",
		info.ID, info.WorldName, info.State,
		info.CreatedAt.Format("2006-01-02 15:04:05"))
	if info.World != nil {
		b.WriteString(formatSnapshot(info.World))
	}
	if info.LastResult != nil {
		fmt.Fprintf(&b, "Last run: %s %s after %d instructions",
			info.LastResult.Program, info.LastResult.State, info.LastResult.Instructions)
		if info.LastResult.Message != "" {
			fmt.Fprintf(&b, " (%s)", info.LastResult.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatSnapshot(s *engine.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Size: %dx%d, walls: %d, beeper corners: %d\n", s.Width, s.Height, len(s.Walls), len(s.Beepers))
	for _, r := range s.Robots {
		bag := fmt.Sprint(r.Bag)
		if r.InfiniteBag {
			bag = "infinite"
		}
		fmt.Fprintf(&b, "Karel: %s facing %s, bag %s\n", r.Point, r.Direction, bag)
	}
	return b.String()
}

func formatRun(resp *service.RunResponse) string {
	if resp.Result == nil {
		return fmt.Sprintf("Program %s started in the background", resp.Program)
	}
	r := resp.Result
	var b strings.Builder
	fmt.Fprintf(&b, "Program %s %s after %d instructions (%s)\n",
		r.Program, r.State, r.Instructions, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	if r.Kind != "" {
		fmt.Fprintf(&b, "Error: %s: %s\n", r.Kind, r.Message)
	}
	return b.String()
}

func formatWorldInfo(w *library.WorldInfo) string {
	if w == nil {
		return ""
	}
	beepers := fmt.Sprint(w.Beepers)
	if w.InfiniteBeepers {
		beepers += "+infinite"
	}
	return fmt.Sprintf("%s: %dx%d, %d walls, %s beepers, %d robots", w.WorldID, w.Width, w.Height, w.Walls, beepers, w.Robots)
}

func formatHistory(page *history.Page) string {
	if len(page.Runs) == 0 {
		return "No runs yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Runs (page %d/%d, total %d):\n", page.Page, page.TotalPages, page.TotalRuns)
	for _, r := range page.Runs {
		fmt.Fprintf(&b, "- %s %s on %s: %s, %d instructions", r.StartedAt.Format("15:04:05"), r.Program, r.World, r.State, r.Instructions)
		if r.Kind != "" {
			fmt.Fprintf(&b, " (%s)", r.Kind)
		}
		b.WriteString("\n")
	}
	return b.String()
}
