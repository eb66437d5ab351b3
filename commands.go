package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/karel/game/engine"
	"github.com/wricardo/karel/game/library"
	"github.com/wricardo/karel/game/service"
	"github.com/wricardo/karel/game/session"
)

func (a *app) runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a program against a world and print the result",
		ArgsUsage: "PROGRAM | FILE.lua",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "world", Aliases: []string{"w"}, Usage: "library world to run in (default: the program's world)"},
			&cli.StringFlag{Name: "world-file", Usage: "world file to run in"},
			&cli.StringFlag{Name: "kind", Usage: "instruction set of a Lua file: karel or superkarel"},
			&cli.IntFlag{Name: "limit", Usage: "stop after this many instructions"},
			&cli.DurationFlag{Name: "timeout", Usage: "stop after this long"},
			&cli.FloatFlag{Name: "speed", Usage: "pace the run at this speed, 0 to 1"},
			&cli.BoolFlag{Name: "watch", Usage: "print the world after every instruction"},
		},
		Action: a.run,
	}
}

func (a *app) run(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("expected one program name or Lua file, got %d arguments", cmd.NArg())
	}
	target := cmd.Args().First()

	if cmd.IsSet("timeout") {
		a.cfg.Simulation.RunTimeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("speed") {
		a.cfg.Simulation.Speed = cmd.Float("speed")
		a.cfg.Simulation.Paced = true
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	var opts []session.Option
	if cmd.Bool("watch") {
		opts = append(opts, session.WithTrace(func(id string, w *engine.World, instructions int) {
			fmt.Fprintf(a.out, "step %d\n%s", instructions, w.Render())
		}))
	}
	st, err := a.buildStack(stackOptions{history: true, sessionOpts: opts})
	if err != nil {
		return err
	}
	defer st.Close(a.logger)

	req := service.RunRequest{
		World:            cmd.String("world"),
		Kind:             cmd.String("kind"),
		InstructionLimit: cmd.Int("limit"),
	}
	if strings.HasSuffix(target, ".lua") {
		src, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("reading program: %w", err)
		}
		req.Program = strings.TrimSuffix(filepath.Base(target), ".lua")
		req.Source = string(src)
	} else {
		req.Program = target
	}

	// an idle session lets the service pick the program's own world
	sess, err := st.sessions.Create("")
	if err != nil {
		return err
	}
	if path := cmd.String("world-file"); path != "" {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading world: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(path), library.Ext)
		if _, err := st.service.LoadWorldText(ctx, sess.ID, name, string(text)); err != nil {
			return err
		}
	}

	resp, err := st.service.Run(ctx, sess.ID, req)
	if err != nil {
		return err
	}
	view, err := st.service.Render(ctx, sess.ID)
	if err != nil {
		return err
	}

	r := resp.Result
	fmt.Fprint(a.out, view)
	fmt.Fprintf(a.out, "%s %s after %d instructions in %s\n", r.Program, r.State, r.Instructions, r.FinishedAt.Sub(r.StartedAt))
	if r.State != session.StateCompleted {
		return fmt.Errorf("%s: %s", r.Kind, r.Message)
	}
	return nil
}

func (a *app) renderCommand() *cli.Command {
	return &cli.Command{
		Name:      "render",
		Usage:     "Print a library world or world file",
		ArgsUsage: "WORLD | FILE.w",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "ascii", Usage: "ascii, text (world file) or json"},
		},
		Action: a.render,
	}
}

func (a *app) loadWorld(name string) (*engine.World, error) {
	if strings.HasSuffix(name, library.Ext) {
		text, err := os.ReadFile(name)
		if err == nil {
			return engine.LoadString(string(text))
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	lib, err := library.New(a.cfg.Worlds.Dir, a.logger.Named("library"))
	if err != nil {
		return nil, err
	}
	return lib.Load(name)
}

func (a *app) render(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return fmt.Errorf("expected one world, got %d arguments", cmd.NArg())
	}
	w, err := a.loadWorld(cmd.Args().First())
	if err != nil {
		return err
	}

	switch format := cmd.String("format"); format {
	case "ascii":
		fmt.Fprint(a.out, w.Render())
	case "text":
		fmt.Fprint(a.out, w.Text())
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(w.Snapshot())
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

func (a *app) validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate the world files in a directory",
		ArgsUsage: "[DIR]",
		Action:    a.validate,
	}
}

func (a *app) validate(ctx context.Context, cmd *cli.Command) error {
	dir := a.cfg.Worlds.Dir
	if cmd.NArg() > 0 {
		dir = cmd.Args().First()
	}
	reports, err := library.ValidateDir(dir)
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Fprint(a.out, r)
	}

	if !library.AllValid(reports) {
		return errors.New("some worlds have errors")
	}
	fmt.Fprintf(a.out, "All %d worlds are valid\n", len(reports))
	return nil
}

func (a *app) programsCommand() *cli.Command {
	return &cli.Command{
		Name:   "programs",
		Usage:  "List the built-in and Lua programs",
		Action: a.listPrograms,
	}
}

func (a *app) listPrograms(ctx context.Context, cmd *cli.Command) error {
	reg, err := loadPrograms(a.cfg.Programs.Dir, a.cfg.Simulation.ScriptOpcodeLimit, a.logger)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tLANGUAGE\tWORLD\tDESCRIPTION")
	for _, info := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.Kind, info.Language, info.World, info.Description)
	}
	return tw.Flush()
}
