package service

import (
	"context"
	"errors"
	"time"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/session"
)

var (
	ErrHistoryDisabled = errors.New("run history is not enabled")
	ErrNoProgram       = errors.New("no program given")
	ErrInvalidRequest  = errors.New("invalid request")
)

// KarelService defines all Karel operations offered to the transports
type KarelService interface {
	// Session Management
	CreateSession(ctx context.Context, world string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// World Operations
	LoadWorld(ctx context.Context, sessionID, world string) (*SessionInfo, error)
	LoadWorldText(ctx context.Context, sessionID, name, text string) (*SessionInfo, error)
	PlaceRobot(ctx context.Context, sessionID string, req PlaceRequest) (*SessionInfo, error)
	EditWorld(ctx context.Context, sessionID string, req EditRequest) (*SessionInfo, error)
	Reset(ctx context.Context, sessionID string) (*SessionInfo, error)
	Render(ctx context.Context, sessionID string) (string, error)

	// Programs
	Run(ctx context.Context, sessionID string, req RunRequest) (*RunResponse, error)
	Cancel(ctx context.Context, sessionID string) error
	ListPrograms(ctx context.Context) ([]program.Info, error)
	GetRunHistory(ctx context.Context, sessionID string, q history.Query) (*history.Page, error)

	// World Library
	ListWorlds(ctx context.Context) ([]*library.WorldInfo, error)
	GetWorld(ctx context.Context, name string) (*WorldDetail, error)
	SaveWorld(ctx context.Context, name, text string) error
	SaveSessionWorld(ctx context.Context, sessionID, name string) error

	// Close cancels asynchronous runs and waits for them to finish.
	Close() error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string) (*session.Session, error)
	Get(id string) (*session.Session, error)
	List() []*session.Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// WorldLibrary handles world file loading
type WorldLibrary interface {
	Load(name string) (*engine.World, error)
	Text(name string) (string, error)
	Exists(name string) bool
	List() ([]*library.WorldInfo, error)
	Default() (*engine.World, string)
	Save(name string, w *engine.World) error
	SaveText(name, text string) error
}

// HistoryStore records finished runs
type HistoryStore interface {
	Record(ctx context.Context, run *history.Run) error
	List(ctx context.Context, sessionID string, q history.Query) (*history.Page, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

// Broadcaster fans events out to a session's subscribers
type Broadcaster interface {
	Broadcast(sessionID string, msg any)
	HasSubscribers(sessionID string) bool
}

// Event types sent through a Broadcaster
const (
	EventTrace       = "trace"
	EventRunStarted  = "run_started"
	EventRunFinished = "run_finished"
	EventWorld       = "world"
	EventReset       = "reset"
)

// Event is the message broadcast to session subscribers
type Event struct {
	Type         string           `json:"type"`
	SessionID    string           `json:"session_id"`
	Program      string           `json:"program,omitempty"`
	Instructions int              `json:"instructions,omitempty"`
	World        *engine.Snapshot `json:"world,omitempty"`
	Result       *session.Result  `json:"result,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// TraceBroadcaster returns a session trace hook that sends a trace event
// with a world snapshot after every instruction, when anyone listens.
func TraceBroadcaster(b Broadcaster) session.TraceFunc {
	return func(id string, w *engine.World, instructions int) {
		if b == nil || !b.HasSubscribers(id) {
			return
		}
		snap := w.Snapshot()
		b.Broadcast(id, Event{
			Type:         EventTrace,
			SessionID:    id,
			Instructions: instructions,
			World:        &snap,
			Timestamp:    time.Now(),
		})
	}
}
