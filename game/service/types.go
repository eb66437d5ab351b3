package service

import (
	"time"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/session"
)

// SessionInfo provides information about a session
type SessionInfo struct {
	ID             string           `json:"id"`
	WorldName      string           `json:"world_name"`
	State          session.State    `json:"state"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	World          *engine.Snapshot `json:"world,omitempty"` // nil while a program runs
	LastResult     *session.Result  `json:"last_result,omitempty"`
}

// PlaceRequest positions the session's robot
type PlaceRequest struct {
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Direction   string `json:"direction"`
	Bag         int    `json:"bag"`
	InfiniteBag bool   `json:"infinite_bag"`
}

// WallEdit names one wall edge
type WallEdit struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction"`
}

// BeeperEdit sets the beeper count of a corner. Count -1 means infinite.
type BeeperEdit struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Count int `json:"count"`
}

// ColorEdit paints a corner. An empty color removes the paint.
type ColorEdit struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// EditRequest batches editor actions applied in order: wall toggles, corner
// clicks, beeper counts, colors
type EditRequest struct {
	ToggleWalls []WallEdit     `json:"toggle_walls,omitempty"`
	Clicks      []engine.Point `json:"clicks,omitempty"`
	Beepers     []BeeperEdit   `json:"beepers,omitempty"`
	Colors      []ColorEdit    `json:"colors,omitempty"`
}

// RunRequest selects a program and how to run it. Either Program names a
// registered program or Source holds a Lua program of the given Kind.
type RunRequest struct {
	Program          string `json:"program,omitempty"`
	Source           string `json:"source,omitempty"`
	Kind             string `json:"kind,omitempty"`
	World            string `json:"world,omitempty"`
	InstructionLimit int    `json:"instruction_limit,omitempty"`
	Reset            bool   `json:"reset,omitempty"`
	Async            bool   `json:"async,omitempty"`
}

// RunResponse reports a run. Result is nil for an asynchronous run; its
// outcome arrives as a run_finished event and in the session's last result.
type RunResponse struct {
	SessionID string           `json:"session_id"`
	Program   string           `json:"program"`
	RunID     string           `json:"run_id,omitempty"`
	Async     bool             `json:"async"`
	Result    *session.Result  `json:"result,omitempty"`
	World     *engine.Snapshot `json:"world,omitempty"`
}

// WorldDetail is a library world with its file text
type WorldDetail struct {
	Info  *library.WorldInfo `json:"info"`
	Text  string             `json:"text"`
	World engine.Snapshot    `json:"world"`
}
