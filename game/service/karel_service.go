package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/script"
	"github.com/wricardo/karel/game/session"
)

// inlineProgram names programs submitted as source without a name.
const inlineProgram = "inline"

// Limits bounds program runs.
type Limits struct {
	InstructionLimit  int
	ScriptOpcodeLimit int
	RunTimeout        time.Duration
	// Speed overrides the world's pacing speed when >= 0.
	Speed float64
}

// DefaultLimits leaves instruction counts unbounded and keeps world speeds.
func DefaultLimits() Limits {
	return Limits{Speed: -1}
}

// Option configures the service.
type Option func(*karelService)

// WithHistory records every finished run in h.
func WithHistory(h HistoryStore) Option {
	return func(s *karelService) { s.history = h }
}

// WithBroadcaster sends session events through b.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *karelService) { s.broadcaster = b }
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *karelService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLimits sets run limits.
func WithLimits(l Limits) Option {
	return func(s *karelService) { s.limits = l }
}

// karelService implements the KarelService interface
type karelService struct {
	sessions    SessionManager
	worlds      WorldLibrary
	programs    *program.Registry
	history     HistoryStore
	broadcaster Broadcaster
	logger      *zap.Logger
	limits      Limits

	// background is the parent of asynchronous runs.
	background context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
}

// NewKarelService creates a new service instance
func NewKarelService(sessions SessionManager, worlds WorldLibrary, programs *program.Registry, opts ...Option) KarelService {
	background, stop := context.WithCancel(context.Background())
	s := &karelService{
		sessions:   sessions,
		worlds:     worlds,
		programs:   programs,
		logger:     zap.NewNop(),
		limits:     DefaultLimits(),
		background: background,
		stop:       stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newSessionInfo(sess *session.Session) *SessionInfo {
	st := sess.Status()
	return &SessionInfo{
		ID:             sess.ID,
		WorldName:      st.WorldName,
		State:          st.State,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: st.LastAccessedAt,
		World:          st.World,
		LastResult:     st.LastResult,
	}
}

// session fetches a session and marks it accessed.
func (s *karelService) session(sessionID string) (*session.Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, err)
	}
	if err := s.sessions.UpdateLastAccessed(sess.ID); err != nil {
		s.logger.Debug("failed to update last access", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return sess, nil
}

// save persists a session after a change. Failures are logged.
func (s *karelService) save(sess *session.Session) {
	if err := s.sessions.Save(sess.ID); err != nil {
		s.logger.Warn("failed to save session", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *karelService) broadcast(sessionID string, ev Event) {
	if s.broadcaster == nil || !s.broadcaster.HasSubscribers(sessionID) {
		return
	}
	ev.SessionID = sessionID
	ev.Timestamp = time.Now()
	s.broadcaster.Broadcast(sessionID, ev)
}

// broadcastWorld sends the session's current world under the given event type.
func (s *karelService) broadcastWorld(sess *session.Session, eventType string) {
	if s.broadcaster == nil || !s.broadcaster.HasSubscribers(sess.ID) {
		return
	}
	snap, err := sess.Snapshot()
	if err != nil {
		return
	}
	s.broadcast(sess.ID, Event{Type: eventType, World: &snap})
}

// loadLibraryWorld returns the named library world, or the default world for
// an empty name.
func (s *karelService) loadLibraryWorld(name string) (*engine.World, string, error) {
	if name == "" {
		w, id := s.worlds.Default()
		return w, id, nil
	}
	w, err := s.worlds.Load(name)
	if err != nil {
		if errors.Is(err, library.ErrWorldNotFound) {
			if infos, listErr := s.worlds.List(); listErr == nil && len(infos) > 0 {
				ids := make([]string, 0, len(infos))
				for _, info := range infos {
					ids = append(ids, info.WorldID)
				}
				return nil, "", fmt.Errorf("world '%s' not found. Available worlds: %v: %w", name, ids, err)
			}
		}
		return nil, "", fmt.Errorf("failed to load world %s: %w", name, err)
	}
	return w, strings.TrimSuffix(name, library.Ext), nil
}

// install loads w into sess and places the default robot when the world
// has none.
func (s *karelService) install(sess *session.Session, name string, w *engine.World) error {
	if err := sess.SetWorld(name, w); err != nil {
		return err
	}
	if _, err := sess.PlaceDefaultRobot(); err != nil {
		return err
	}
	return nil
}

// CreateSession creates a new session with the named world loaded, or the
// default world when world is empty
func (s *karelService) CreateSession(ctx context.Context, world string) (*SessionInfo, error) {
	w, name, err := s.loadLibraryWorld(world)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create("")
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := s.install(sess, name, w); err != nil {
		_ = s.sessions.Delete(sess.ID)
		return nil, err
	}
	s.save(sess)
	s.logger.Info("session created", zap.String("session_id", sess.ID), zap.String("world", name))
	return newSessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *karelService) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return newSessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *karelService) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, newSessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session and its run history
func (s *karelService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("session %q: %w", sessionID, err)
	}
	if s.history != nil {
		if _, err := s.history.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn("failed to delete run history", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// LoadWorld replaces the session's world with a library world
func (s *karelService) LoadWorld(ctx context.Context, sessionID, world string) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	w, name, err := s.loadLibraryWorld(world)
	if err != nil {
		return nil, err
	}
	if err := s.install(sess, name, w); err != nil {
		return nil, err
	}
	s.save(sess)
	s.broadcastWorld(sess, EventWorld)
	return newSessionInfo(sess), nil
}

// LoadWorldText replaces the session's world with one parsed from text
func (s *karelService) LoadWorldText(ctx context.Context, sessionID, name, text string) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	w, err := engine.LoadString(text)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "custom"
	}
	if err := s.install(sess, name, w); err != nil {
		return nil, err
	}
	s.save(sess)
	s.broadcastWorld(sess, EventWorld)
	return newSessionInfo(sess), nil
}

// PlaceRobot moves the session's robot, creating one if the world has none
func (s *karelService) PlaceRobot(ctx context.Context, sessionID string, req PlaceRequest) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	dir, err := engine.ParseDirection(req.Direction)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	bag := req.Bag
	if req.InfiniteBag {
		bag = engine.Infinite
	}

	var robot *engine.Robot
	if err := sess.View(func(w *engine.World) error {
		robot = w.Robot()
		return nil
	}); err != nil {
		return nil, err
	}
	if robot == nil {
		robot = engine.NewRobot()
	}
	if err := sess.PlaceRobot(robot, req.X, req.Y, dir, bag); err != nil {
		return nil, err
	}
	s.save(sess)
	s.broadcastWorld(sess, EventWorld)
	return newSessionInfo(sess), nil
}

// EditWorld applies editor actions to the session's world
func (s *karelService) EditWorld(ctx context.Context, sessionID string, req EditRequest) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	err = sess.Edit(func(w *engine.World) error {
		for _, e := range req.ToggleWalls {
			dir, err := engine.ParseDirection(e.Direction)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
			if err := w.ToggleWall(e.X, e.Y, dir); err != nil {
				return err
			}
		}
		for _, p := range req.Clicks {
			if err := w.ClickCorner(p.X, p.Y); err != nil {
				return err
			}
		}
		for _, e := range req.Beepers {
			n := e.Count
			if n < 0 {
				n = engine.Infinite
			}
			if err := w.SetBeepersOnCorner(e.X, e.Y, n); err != nil {
				return err
			}
		}
		for _, e := range req.Colors {
			c := engine.NoColor
			if e.Color != "" {
				parsed, err := engine.ParseColor(e.Color)
				if err != nil {
					return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
				}
				c = parsed
			}
			if err := w.SetCornerColor(e.X, e.Y, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.save(sess)
	s.broadcastWorld(sess, EventWorld)
	return newSessionInfo(sess), nil
}

// Reset restores the session's world to its loaded state
func (s *karelService) Reset(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Reset(); err != nil {
		return nil, err
	}
	s.save(sess)
	s.broadcastWorld(sess, EventReset)
	return newSessionInfo(sess), nil
}

// Render draws the session's world as text. It waits for a running program.
func (s *karelService) Render(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return "", err
	}
	var out string
	err = sess.View(func(w *engine.World) error {
		out = w.Render()
		return nil
	})
	return out, err
}

// resolveProgram finds the registered program or compiles the submitted
// source.
func (s *karelService) resolveProgram(req RunRequest) (program.Program, error) {
	if req.Source != "" {
		kind := program.KindSuperKarel
		if req.Kind != "" {
			k, err := program.ParseKind(req.Kind)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
			kind = k
		}
		name := req.Program
		if name == "" {
			name = inlineProgram
		}
		prog := script.New(name, kind, req.Source).WithWorld(req.World)
		if s.limits.ScriptOpcodeLimit > 0 {
			prog = prog.WithOpcodeLimit(s.limits.ScriptOpcodeLimit)
		}
		if err := prog.Check(); err != nil {
			return nil, err
		}
		return prog, nil
	}
	if req.Program == "" {
		return nil, ErrNoProgram
	}
	return s.programs.Get(req.Program)
}

// programWorld picks the world a program starts in: the one it names, a
// library world named after the program, or the default world.
func (s *karelService) programWorld(info program.Info) string {
	if info.World != "" {
		return info.World
	}
	if s.worlds.Exists(info.Name) {
		return info.Name
	}
	return ""
}

// prepare brings the session into a runnable state for prog.
func (s *karelService) prepare(sess *session.Session, prog program.Program, req RunRequest) error {
	switch st := sess.State(); {
	case st == session.StateRunning:
		return session.ErrRunning
	case req.World != "":
		w, name, err := s.loadLibraryWorld(req.World)
		if err != nil {
			return err
		}
		if err := s.install(sess, name, w); err != nil {
			return err
		}
	case st == session.StateIdle:
		w, name, err := s.loadLibraryWorld(s.programWorld(prog.Info()))
		if err != nil {
			return err
		}
		if err := s.install(sess, name, w); err != nil {
			return err
		}
	case st.Terminal() && req.Reset:
		if err := sess.Reset(); err != nil {
			return err
		}
	case st.Terminal():
		return fmt.Errorf("%w: run while %s, reset first", session.ErrInvalidState, st)
	}
	if s.limits.Speed >= 0 {
		sess.SetSpeed(s.limits.Speed)
	}
	_, err := sess.PlaceDefaultRobot()
	return err
}

// Run runs a program on the session's robot. A synchronous run returns its
// result; an asynchronous one returns at once and reports through the
// broadcaster.
func (s *karelService) Run(ctx context.Context, sessionID string, req RunRequest) (*RunResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	prog, err := s.resolveProgram(req)
	if err != nil {
		return nil, err
	}
	if err := s.prepare(sess, prog, req); err != nil {
		return nil, err
	}

	opts := []program.Option{}
	limit := s.limits.InstructionLimit
	if req.InstructionLimit > 0 {
		limit = req.InstructionLimit
	}
	if limit > 0 {
		opts = append(opts, program.WithInstructionLimit(limit))
	}

	resp := &RunResponse{SessionID: sess.ID, Program: prog.Info().Name, Async: req.Async}
	if req.Async {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.execute(s.background, sess, prog, opts); err != nil {
				s.logger.Warn("async run did not start",
					zap.String("session_id", sess.ID),
					zap.String("program", resp.Program),
					zap.Error(err),
				)
			}
		}()
		return resp, nil
	}

	run, err := s.execute(ctx, sess, prog, opts)
	if err != nil {
		return nil, err
	}
	resp.RunID = run.runID
	resp.Result = run.result
	resp.World = run.world
	return resp, nil
}

type runOutcome struct {
	runID  string
	result *session.Result
	world  *engine.Snapshot
}

// execute runs prog to completion and records the outcome.
func (s *karelService) execute(ctx context.Context, sess *session.Session, prog program.Program, opts []program.Option) (*runOutcome, error) {
	if s.limits.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.RunTimeout)
		defer cancel()
	}

	name := prog.Info().Name
	s.broadcast(sess.ID, Event{Type: EventRunStarted, Program: name})
	res, err := sess.Run(ctx, prog, opts...)
	if err != nil {
		return nil, err
	}

	out := &runOutcome{result: res}
	if snap, err := sess.Snapshot(); err == nil {
		out.world = &snap
	}
	out.runID = s.record(sess, res)
	s.save(sess)
	s.broadcast(sess.ID, Event{
		Type:         EventRunFinished,
		Program:      name,
		Instructions: res.Instructions,
		World:        out.world,
		Result:       res,
	})
	s.logger.Info("run finished",
		zap.String("session_id", sess.ID),
		zap.String("program", name),
		zap.String("state", string(res.State)),
		zap.Int("instructions", res.Instructions),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	)
	return out, nil
}

// record stores a finished run in the history, returning its ID.
func (s *karelService) record(sess *session.Session, res *session.Result) string {
	if s.history == nil {
		return ""
	}
	run := &history.Run{
		ID:           uuid.NewString(),
		SessionID:    sess.ID,
		Program:      res.Program,
		World:        sess.Status().WorldName,
		State:        string(res.State),
		Kind:         string(res.Kind),
		Message:      res.Message,
		Instructions: res.Instructions,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	// the run's own context may already be cancelled
	if err := s.history.Record(context.Background(), run); err != nil {
		s.logger.Warn("failed to record run", zap.String("session_id", sess.ID), zap.Error(err))
		return ""
	}
	return run.ID
}

// Cancel stops the session's running program
func (s *karelService) Cancel(ctx context.Context, sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	return sess.Cancel()
}

// ListPrograms returns the registered programs
func (s *karelService) ListPrograms(ctx context.Context) ([]program.Info, error) {
	return s.programs.List(), nil
}

// GetRunHistory returns paginated run history for a session
func (s *karelService) GetRunHistory(ctx context.Context, sessionID string, q history.Query) (*history.Page, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.history.List(ctx, sess.ID, q)
}

// ListWorlds returns the library's worlds
func (s *karelService) ListWorlds(ctx context.Context) ([]*library.WorldInfo, error) {
	return s.worlds.List()
}

// GetWorld returns a library world with its file text
func (s *karelService) GetWorld(ctx context.Context, name string) (*WorldDetail, error) {
	w, err := s.worlds.Load(name)
	if err != nil {
		return nil, err
	}
	text, err := s.worlds.Text(name)
	if err != nil {
		return nil, err
	}
	return &WorldDetail{
		Info:  library.Summarize(strings.TrimSuffix(name, library.Ext), w),
		Text:  text,
		World: w.Snapshot(),
	}, nil
}

// SaveWorld validates a world file and stores it in the library
func (s *karelService) SaveWorld(ctx context.Context, name, text string) error {
	return s.worlds.SaveText(name, text)
}

// SaveSessionWorld stores the session's current world in the library
func (s *karelService) SaveSessionWorld(ctx context.Context, sessionID, name string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}
	var w *engine.World
	if err := sess.View(func(cur *engine.World) error {
		w = cur.Clone()
		return nil
	}); err != nil {
		return err
	}
	return s.worlds.Save(name, w)
}

// Close cancels asynchronous runs and waits for them to finish
func (s *karelService) Close() error {
	s.stop()
	s.wg.Wait()
	return nil
}
