package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/service"
	"github.com/wricardo/karel/game/session"
)

const (
	lineWorld = "Dimension: (5, 1)\nRobot: (1, 1) east\nRobotBag: INFINITE\n"
	openWorld = "Dimension: (3, 3)\n"
	pitWorld  = "Dimension: (2, 2)\nRobot: (1, 1) north\nRobotBag: 0\nBeeper: (2, 2) 1\n"
)

// recorder implements service.Broadcaster for testing
type recorder struct {
	mu     sync.Mutex
	events []service.Event
}

func (r *recorder) Broadcast(sessionID string, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg.(service.Event))
}

func (r *recorder) HasSubscribers(string) bool { return true }

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

var walker = program.New("walker", func(k program.Karel) {
	for k.FrontIsClear() {
		k.PutBeeper()
		k.Move()
	}
}).WithWorld("line")

var picker = program.New("picker", func(k program.Karel) {
	k.PickBeeper()
})

var spinner = program.New("spinner", func(k program.Karel) {
	for {
		k.TurnLeft()
	}
})

type fixture struct {
	svc      service.KarelService
	sessions *session.Manager
	worlds   *library.Library
	history  *history.Store
	events   *recorder
}

func newFixture(t *testing.T, limits service.Limits) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, text := range map[string]string{
		"default.w": openWorld,
		"line.w":    lineWorld,
		"picker.w":  pitWorld,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0644))
	}
	worlds, err := library.New(dir, zap.NewNop())
	require.NoError(t, err)

	store, err := history.Open("sqlite", filepath.Join(t.TempDir(), "runs.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	programs, err := program.NewRegistry(walker, picker, spinner)
	require.NoError(t, err)

	events := &recorder{}
	sessions := session.NewManager(zap.NewNop(), session.WithTrace(service.TraceBroadcaster(events)))
	svc := service.NewKarelService(sessions, worlds, programs,
		service.WithHistory(store),
		service.WithBroadcaster(events),
		service.WithLimits(limits),
	)
	t.Cleanup(func() { _ = svc.Close() })
	return &fixture{svc: svc, sessions: sessions, worlds: worlds, history: store, events: events}
}

func TestCreateSessionDefaultWorld(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()

	info, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Len(t, info.ID, 4)
	assert.Equal(t, "default", info.WorldName)
	assert.Equal(t, session.StateLoaded, info.State)
	require.NotNil(t, info.World)
	// the default world declares no robot
	assert.Equal(t, []engine.RobotSnapshot{{
		Point:       engine.Point{X: 1, Y: 1},
		Direction:   "east",
		Bag:         -1,
		InfiniteBag: true,
	}}, info.World.Robots)

	got, err := f.svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)

	list, err := f.svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateSessionUnknownWorld(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	_, err := f.svc.CreateSession(context.Background(), "atlantis")
	require.ErrorIs(t, err, library.ErrWorldNotFound)
	assert.Contains(t, err.Error(), "Available worlds: [default line picker]")
	assert.Zero(t, f.sessions.Count())
}

func TestRunRegisteredProgram(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "line")
	require.NoError(t, err)

	resp, err := f.svc.Run(ctx, info.ID, service.RunRequest{Program: "walker"})
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, session.StateCompleted, resp.Result.State)
	assert.Equal(t, 8, resp.Result.Instructions)
	assert.NotEmpty(t, resp.RunID)
	require.NotNil(t, resp.World)
	assert.Equal(t, engine.Point{X: 5, Y: 1}, resp.World.Robots[0].Point)
	assert.Len(t, resp.World.Beepers, 4)

	types := f.events.types()
	require.NotEmpty(t, types)
	assert.Equal(t, service.EventRunStarted, types[0])
	assert.Equal(t, service.EventRunFinished, types[len(types)-1])
	assert.Equal(t, 8, len(types)-2, "one trace event per instruction")

	page, err := f.svc.GetRunHistory(ctx, info.ID, history.Query{})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalRuns)
	assert.Equal(t, resp.RunID, page.Runs[0].ID)
	assert.Equal(t, "walker", page.Runs[0].Program)
	assert.Equal(t, "line", page.Runs[0].World)
	assert.Equal(t, "completed", page.Runs[0].State)
}

func TestRunFailureAndReset(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "default")
	require.NoError(t, err)

	resp, err := f.svc.Run(ctx, info.ID, service.RunRequest{Program: "picker"})
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, resp.Result.State)
	assert.Equal(t, engine.KindNoBeeperHere, resp.Result.Kind)

	// a finished session must be reset before the next run
	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{Program: "picker"})
	assert.ErrorIs(t, err, session.ErrInvalidState)

	resp, err = f.svc.Run(ctx, info.ID, service.RunRequest{Program: "picker", Reset: true})
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, resp.Result.State)

	got, err := f.svc.Reset(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateLoaded, got.State)
	assert.Nil(t, got.LastResult)
}

func TestRunPicksWorldByProgramName(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	sess, err := f.sessions.Create("")
	require.NoError(t, err)

	// picker names no world; the library has one called picker
	resp, err := f.svc.Run(ctx, sess.ID, service.RunRequest{Program: "picker"})
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, resp.Result.State)
	assert.Equal(t, "picker", sess.Status().WorldName)

	resp, err = f.svc.Run(ctx, sess.ID, service.RunRequest{Program: "walker", World: "line"})
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, resp.Result.State)
}

func TestRunLuaSource(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "line")
	require.NoError(t, err)

	resp, err := f.svc.Run(ctx, info.ID, service.RunRequest{
		Source: "turnAround()\nwhile frontIsClear() do move() end\n",
		Kind:   "superkarel",
	})
	require.NoError(t, err)
	assert.Equal(t, "inline", resp.Program)
	assert.Equal(t, session.StateCompleted, resp.Result.State)

	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{Source: "while do", Reset: true})
	assert.Error(t, err)
	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{Source: "move()", Kind: "mega", Reset: true})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)
	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{})
	assert.ErrorIs(t, err, service.ErrNoProgram)
	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{Program: "nope"})
	assert.ErrorIs(t, err, program.ErrProgramNotFound)
}

func TestRunInstructionLimit(t *testing.T) {
	f := newFixture(t, service.Limits{InstructionLimit: 50, Speed: -1})
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	resp, err := f.svc.Run(ctx, info.ID, service.RunRequest{Program: "spinner"})
	require.NoError(t, err)
	assert.Equal(t, session.StateCancelled, resp.Result.State)
	assert.Equal(t, session.KindCancelled, resp.Result.Kind)
	assert.Equal(t, 50, resp.Result.Instructions)

	resp, err = f.svc.Run(ctx, info.ID, service.RunRequest{Program: "spinner", Reset: true, InstructionLimit: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Result.Instructions)
}

func TestRunTimeout(t *testing.T) {
	f := newFixture(t, service.Limits{RunTimeout: 20 * time.Millisecond, Speed: -1})
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	resp, err := f.svc.Run(ctx, info.ID, service.RunRequest{Program: "spinner"})
	require.NoError(t, err)
	assert.Equal(t, session.StateCancelled, resp.Result.State)
	assert.Contains(t, resp.Result.Message, "deadline exceeded")
}

func TestAsyncRunAndCancel(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	resp, err := f.svc.Run(ctx, info.ID, service.RunRequest{Program: "spinner", Async: true})
	require.NoError(t, err)
	assert.True(t, resp.Async)
	assert.Nil(t, resp.Result)

	require.Eventually(t, func() bool {
		return f.svc.Cancel(ctx, info.ID) == nil
	}, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		got, err := f.svc.GetSession(ctx, info.ID)
		return err == nil && got.State == session.StateCancelled
	}, 2*time.Second, time.Millisecond)

	got, err := f.svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastResult)
	assert.Equal(t, session.KindCancelled, got.LastResult.Kind)

	err = f.svc.Cancel(ctx, info.ID)
	assert.ErrorIs(t, err, session.ErrNotRunning)
}

func TestPlaceRobotAndEdit(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	got, err := f.svc.PlaceRobot(ctx, info.ID, service.PlaceRequest{X: 3, Y: 2, Direction: "west", Bag: 2})
	require.NoError(t, err)
	require.Len(t, got.World.Robots, 1)
	assert.Equal(t, engine.RobotSnapshot{Point: engine.Point{X: 3, Y: 2}, Direction: "west", Bag: 2}, got.World.Robots[0])

	_, err = f.svc.PlaceRobot(ctx, info.ID, service.PlaceRequest{X: 9, Y: 9, Direction: "west"})
	assert.ErrorIs(t, err, engine.ErrOutOfBounds)
	_, err = f.svc.PlaceRobot(ctx, info.ID, service.PlaceRequest{X: 1, Y: 1, Direction: "up"})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	got, err = f.svc.EditWorld(ctx, info.ID, service.EditRequest{
		ToggleWalls: []service.WallEdit{{X: 2, Y: 2, Direction: "west"}},
		Clicks:      []engine.Point{{X: 1, Y: 1}, {X: 1, Y: 1}},
		Beepers:     []service.BeeperEdit{{X: 3, Y: 3, Count: -1}},
		Colors:      []service.ColorEdit{{X: 2, Y: 2, Color: "red"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []engine.Wall{{Point: engine.Point{X: 1, Y: 2}, Dir: engine.East}}, got.World.Walls)
	assert.Contains(t, got.World.Beepers, engine.BeeperSnapshot{Point: engine.Point{X: 1, Y: 1}, Count: 2})
	assert.Contains(t, got.World.Beepers, engine.BeeperSnapshot{Point: engine.Point{X: 3, Y: 3}, Count: -1, Infinite: true})
	assert.Equal(t, []engine.ColorSnapshot{{Point: engine.Point{X: 2, Y: 2}, Color: engine.Red}}, got.World.Colors)

	_, err = f.svc.EditWorld(ctx, info.ID, service.EditRequest{Colors: []service.ColorEdit{{X: 1, Y: 1, Color: "plaid"}}})
	assert.ErrorIs(t, err, service.ErrInvalidRequest)

	// a failing edit applies none of its changes
	_, err = f.svc.EditWorld(ctx, info.ID, service.EditRequest{
		ToggleWalls: []service.WallEdit{{X: 1, Y: 1, Direction: "north"}},
		Clicks:      []engine.Point{{X: 99, Y: 99}},
	})
	assert.ErrorIs(t, err, engine.ErrOutOfBounds)
	got, err = f.svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, []engine.Wall{{Point: engine.Point{X: 1, Y: 2}, Dir: engine.East}}, got.World.Walls)
	assert.Equal(t, engine.Point{X: 3, Y: 2}, got.World.Robots[0].Point)

	// placements and edits survive a reset
	got, err = f.svc.Reset(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.Point{X: 3, Y: 2}, got.World.Robots[0].Point)
	assert.Len(t, got.World.Walls, 1)

	out, err := f.svc.Render(ctx, info.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestLoadWorldText(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	got, err := f.svc.LoadWorldText(ctx, info.ID, "", pitWorld)
	require.NoError(t, err)
	assert.Equal(t, "custom", got.WorldName)
	assert.Equal(t, 2, got.World.Width)

	_, err = f.svc.LoadWorldText(ctx, info.ID, "bad", "Dimension: nope\n")
	assert.ErrorIs(t, err, engine.ErrMalformedWorldFile)

	got, err = f.svc.LoadWorld(ctx, info.ID, "line")
	require.NoError(t, err)
	assert.Equal(t, "line", got.WorldName)
	assert.Equal(t, 5, got.World.Width)
}

func TestWorldLibraryOperations(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()

	worlds, err := f.svc.ListWorlds(ctx)
	require.NoError(t, err)
	assert.Len(t, worlds, 3)

	detail, err := f.svc.GetWorld(ctx, "line")
	require.NoError(t, err)
	assert.Equal(t, "line", detail.Info.WorldID)
	assert.Equal(t, lineWorld, detail.Text)
	assert.Equal(t, 5, detail.World.Width)

	require.NoError(t, f.svc.SaveWorld(ctx, "tiny", "Dimension: (1, 1)\n"))
	assert.True(t, f.worlds.Exists("tiny"))
	assert.ErrorIs(t, f.svc.SaveWorld(ctx, "broken", "Robot: (1, 1) sideways\n"), library.ErrInvalidWorld)

	info, err := f.svc.CreateSession(ctx, "line")
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{Program: "walker"})
	require.NoError(t, err)
	require.NoError(t, f.svc.SaveSessionWorld(ctx, info.ID, "walked"))
	w, err := f.worlds.Load("walked")
	require.NoError(t, err)
	assert.Equal(t, engine.Point{X: 5, Y: 1}, w.Robot().Location())
}

func TestDeleteSessionDropsHistory(t *testing.T) {
	f := newFixture(t, service.DefaultLimits())
	ctx := context.Background()
	info, err := f.svc.CreateSession(ctx, "line")
	require.NoError(t, err)
	_, err = f.svc.Run(ctx, info.ID, service.RunRequest{Program: "walker"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(ctx, info.ID))
	_, err = f.svc.GetSession(ctx, info.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	page, err := f.history.List(ctx, info.ID, history.Query{})
	require.NoError(t, err)
	assert.Zero(t, page.TotalRuns)

	assert.ErrorIs(t, f.svc.DeleteSession(ctx, info.ID), session.ErrSessionNotFound)
}

func TestHistoryDisabled(t *testing.T) {
	worlds, err := library.New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	programs, err := program.NewRegistry(program.Samples()...)
	require.NoError(t, err)
	svc := service.NewKarelService(session.NewManager(nil), worlds, programs)
	defer svc.Close()

	ctx := context.Background()
	info, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = svc.GetRunHistory(ctx, info.ID, history.Query{})
	assert.ErrorIs(t, err, service.ErrHistoryDisabled)

	progs, err := svc.ListPrograms(ctx)
	require.NoError(t, err)
	assert.Len(t, progs, len(program.Samples()))
}
