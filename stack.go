package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/wricardo/karel/game/history"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/program"
	"github.com/wricardo/karel/game/script"
	"github.com/wricardo/karel/game/service"
	"github.com/wricardo/karel/game/session"
)

// stack is the wired set of game services a command works with.
type stack struct {
	sessions    *session.Manager
	persistence session.SessionPersistence
	worlds      *library.Library
	programs    *program.Registry
	history     *history.Store
	service     service.KarelService
}

// stackOptions adjust buildStack per command.
type stackOptions struct {
	broadcaster service.Broadcaster
	persist     bool // use cfg.Sessions.Dir
	history     bool // use cfg.History
	sessionOpts []session.Option
}

// buildStack wires the world library, program registry, session manager,
// history store and service from the configuration.
func (a *app) buildStack(opts stackOptions) (*stack, error) {
	cfg := a.cfg
	st := &stack{}

	worlds, err := library.New(cfg.Worlds.Dir, a.logger.Named("library"))
	if err != nil {
		return nil, fmt.Errorf("failed to open world library: %w", err)
	}
	if cfg.Worlds.Default != "" {
		if err := worlds.SetDefault(cfg.Worlds.Default); err != nil {
			return nil, fmt.Errorf("failed to set default world: %w", err)
		}
	}
	st.worlds = worlds

	programs, err := loadPrograms(cfg.Programs.Dir, cfg.Simulation.ScriptOpcodeLimit, a.logger)
	if err != nil {
		return nil, err
	}
	st.programs = programs

	sessionOpts := opts.sessionOpts
	if cfg.Simulation.Paced {
		sessionOpts = append(sessionOpts, session.WithPacing(nil))
	}
	if opts.broadcaster != nil {
		sessionOpts = append(sessionOpts, session.WithTrace(service.TraceBroadcaster(opts.broadcaster)))
	}

	if opts.persist && cfg.Sessions.Dir != "" {
		persistence, err := session.NewFilePersistence(cfg.Sessions.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		st.persistence = persistence
		st.sessions = session.NewManagerWithPersistence(persistence, a.logger.Named("sessions"), sessionOpts...)
		if err := st.sessions.LoadPersistedSessions(); err != nil {
			a.logger.Warn("failed to load persisted sessions", zap.Error(err))
		}
	} else {
		st.sessions = session.NewManager(a.logger.Named("sessions"), sessionOpts...)
	}

	svcOpts := []service.Option{
		service.WithLogger(a.logger.Named("service")),
		service.WithLimits(service.Limits{
			InstructionLimit:  cfg.Simulation.InstructionLimit,
			ScriptOpcodeLimit: cfg.Simulation.ScriptOpcodeLimit,
			RunTimeout:        cfg.Simulation.RunTimeout,
			Speed:             cfg.Simulation.Speed,
		}),
	}
	if opts.broadcaster != nil {
		svcOpts = append(svcOpts, service.WithBroadcaster(opts.broadcaster))
	}
	if opts.history && cfg.History.Driver != "" {
		store, err := history.Open(cfg.History.Driver, cfg.History.DSN, a.logger.Named("history"))
		if err != nil {
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
		st.history = store
		svcOpts = append(svcOpts, service.WithHistory(store))
	}

	st.service = service.NewKarelService(st.sessions, worlds, programs, svcOpts...)
	return st, nil
}

// loadPrograms registers the built-in samples plus the Lua programs of dir.
// A missing dir only leaves the samples.
func loadPrograms(dir string, opcodeLimit int, logger *zap.Logger) (*program.Registry, error) {
	reg, err := program.NewRegistry(program.Samples()...)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return reg, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		logger.Debug("no program directory", zap.String("dir", dir))
		return reg, nil
	}

	scripts, err := script.LoadDir(dir, opcodeLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load programs: %w", err)
	}
	if err := script.Register(reg, scripts); err != nil {
		return nil, fmt.Errorf("failed to register programs: %w", err)
	}
	logger.Info("programs loaded", zap.Int("lua", len(scripts)), zap.Int("total", reg.Len()))
	return reg, nil
}

// Close stops async runs, saves sessions and closes the history store.
func (st *stack) Close(logger *zap.Logger) {
	if err := st.service.Close(); err != nil {
		logger.Warn("service close failed", zap.Error(err))
	}
	if st.persistence != nil {
		if err := st.sessions.SaveAllSessions(); err != nil {
			logger.Warn("failed to save sessions", zap.Error(err))
		}
	}
	if st.history != nil {
		if err := st.history.Close(); err != nil {
			logger.Warn("history close failed", zap.Error(err))
		}
	}
}

// sessionCleanupRoutine periodically removes sessions that have not been
// accessed within ttl.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, ttl time.Duration, logger *zap.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(min(time.Hour, ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(ttl); removed > 0 {
				logger.Info("cleaned up expired sessions", zap.Int("removed", removed))
			}
		}
	}
}

// filesystemSyncRoutine removes sessions from memory once their files have
// been deleted from the sessions directory.
func filesystemSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, logger *zap.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pruned := 0
		for _, sess := range manager.List() {
			if persistence.Exists(sess.ID) {
				continue
			}
			if err := manager.DeleteFromMemory(sess.ID); err == nil {
				pruned++
				logger.Info("pruned session from memory (file deleted)", zap.String("session_id", sess.ID))
			}
		}
		if pruned > 0 {
			logger.Info("filesystem sync pruned orphaned sessions", zap.Int("pruned", pruned))
		}
	}
}
