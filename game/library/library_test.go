package library

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wricardo/karel/game/engine"
)

const mazeWorld = `Dimension: (3, 3)
Wall: (1, 1) east
Wall: (2, 2) north
Beeper: (3, 3) 2
Beeper: (1, 3) INFINITE
Robot: (1, 1) north
RobotBag: 1
`

func writeWorld(t *testing.T, dir, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0644))
}

func TestNew(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := New(filepath.Join(t.TempDir(), "nope"), zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("empty directory uses built-in default", func(t *testing.T) {
		lib, err := New(t.TempDir(), nil)
		require.NoError(t, err)
		w, id := lib.Default()
		assert.Equal(t, DefaultWorldName, id)
		assert.Equal(t, 10, w.Width())
		assert.Equal(t, 10, w.Height())
		assert.Empty(t, w.Robots())
	})

	t.Run("default.w wins", func(t *testing.T) {
		dir := t.TempDir()
		writeWorld(t, dir, "aaa.w", "Dimension: (2, 2)\n")
		writeWorld(t, dir, "default.w", "Dimension: (4, 4)\n")
		lib, err := New(dir, zap.NewNop())
		require.NoError(t, err)
		w, id := lib.Default()
		assert.Equal(t, "default", id)
		assert.Equal(t, 4, w.Width())
	})

	t.Run("first world otherwise", func(t *testing.T) {
		dir := t.TempDir()
		writeWorld(t, dir, "zed.w", "Dimension: (5, 5)\n")
		writeWorld(t, dir, "alpha.w", "Dimension: (2, 3)\n")
		lib, err := New(dir, zap.NewNop())
		require.NoError(t, err)
		_, id := lib.Default()
		assert.Equal(t, "alpha", id)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "maze.w", mazeWorld)
	writeWorld(t, dir, "broken.w", "Dimension: (0, 3)\n")
	lib, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	w, err := lib.Load("maze")
	require.NoError(t, err)
	assert.True(t, w.HasWall(2, 1, engine.West))
	assert.Equal(t, 2, w.BeepersOnCorner(3, 3))

	// callers get independent copies
	require.NoError(t, w.Robot().Move())
	again, err := lib.Load("maze.w")
	require.NoError(t, err)
	assert.Equal(t, engine.Point{X: 1, Y: 1}, again.Robot().Location())

	_, err = lib.Load("missing")
	assert.ErrorIs(t, err, ErrWorldNotFound)
	_, err = lib.Load("broken")
	assert.ErrorIs(t, err, ErrInvalidWorld)
	assert.ErrorIs(t, err, engine.ErrInvalidDimension)
	_, err = lib.Load("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)

	assert.True(t, lib.Exists("maze"))
	assert.False(t, lib.Exists("missing"))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "maze.w", mazeWorld)
	writeWorld(t, dir, "empty.w", "Dimension: (2, 2)\n")
	writeWorld(t, dir, "broken.w", "nonsense\n")
	writeWorld(t, dir, "notes.txt", "ignored")
	lib, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	worlds, err := lib.List()
	require.NoError(t, err)
	require.Len(t, worlds, 2)
	assert.Equal(t, &WorldInfo{Filename: "empty.w", WorldID: "empty", Width: 2, Height: 2}, worlds[0])
	assert.Equal(t, &WorldInfo{
		Filename:        "maze.w",
		WorldID:         "maze",
		Width:           3,
		Height:          3,
		Walls:           2,
		Beepers:         2,
		InfiniteBeepers: true,
		Robots:          1,
	}, worlds[1])
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	lib, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, lib.SaveText("maze", mazeWorld))
	text, err := lib.Text("maze")
	require.NoError(t, err)
	w, err := engine.LoadString(text)
	require.NoError(t, err)
	assert.Equal(t, text, w.Text())

	data, err := os.ReadFile(filepath.Join(dir, "maze.w"))
	require.NoError(t, err)
	assert.Equal(t, text, string(data))

	assert.ErrorIs(t, lib.SaveText("bad", "Wall: (1, 1) north\n"), ErrInvalidWorld)
	assert.ErrorIs(t, lib.Save("a/b", w), ErrInvalidName)

	require.NoError(t, lib.SetDefault("maze"))
	_, id := lib.Default()
	assert.Equal(t, "maze", id)

	require.NoError(t, os.Remove(filepath.Join(dir, "maze.w")))
	lib.RefreshCache()
	_, id = lib.Default()
	assert.Equal(t, DefaultWorldName, id)
}

func TestConcurrentLoad(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "maze.w", mazeWorld)
	lib, err := New(dir, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := lib.Load("maze")
			if assert.NoError(t, err) {
				assert.NoError(t, w.Robot().Move())
			}
		}()
	}
	wg.Wait()
}
