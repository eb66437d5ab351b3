package program

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wricardo/karel/game/engine"
)

var (
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	ErrPanic            = errors.New("program panicked")
	ErrProgramNotFound  = errors.New("program not found")
	ErrDuplicateProgram = errors.New("program already registered")
)

// Kind names the capability set a program is written against.
type Kind string

const (
	KindKarel      Kind = "karel"
	KindSuperKarel Kind = "superkarel"
)

// ParseKind accepts "karel" or "superkarel" in any case. The empty string
// means KindKarel.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "karel":
		return KindKarel, nil
	case "superkarel", "super":
		return KindSuperKarel, nil
	}
	return "", fmt.Errorf("unknown program kind %q", s)
}

// Info describes a registered program.
type Info struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Language    string `json:"language"`
	World       string `json:"world,omitempty"`
	Description string `json:"description,omitempty"`
}

// Program is a runnable robot program.
type Program interface {
	Info() Info
	// Execute drives r until the program returns, an instruction fails or
	// ctx is done. Instruction failures are returned as *engine.Error.
	Execute(ctx context.Context, r *engine.Robot, opts ...Option) error
}

// Options bound a single execution.
type Options struct {
	// InstructionLimit caps the number of instructions and sensor queries;
	// zero means unlimited.
	InstructionLimit int
}

type Option func(*Options)

// WithInstructionLimit stops the program with ErrInstructionLimit after n
// instructions and sensor queries.
func WithInstructionLimit(n int) Option {
	return func(o *Options) { o.InstructionLimit = n }
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Func is a program written in Go against Karel or SuperKarel.
type Func struct {
	info  Info
	basic func(Karel)
	super func(SuperKarel)
}

// New returns a program that only sees the basic Karel instruction set.
func New(name string, body func(Karel)) *Func {
	return &Func{info: Info{Name: name, Kind: KindKarel, Language: "go"}, basic: body}
}

// NewSuper returns a program that uses the SuperKarel instruction set.
func NewSuper(name string, body func(SuperKarel)) *Func {
	return &Func{info: Info{Name: name, Kind: KindSuperKarel, Language: "go"}, super: body}
}

// WithWorld records the world file the program expects to run in.
func (f *Func) WithWorld(world string) *Func {
	f.info.World = world
	return f
}

// WithDescription attaches a one-line description.
func (f *Func) WithDescription(desc string) *Func {
	f.info.Description = desc
	return f
}

func (f *Func) Info() Info { return f.info }

func (f *Func) Execute(ctx context.Context, r *engine.Robot, opts ...Option) error {
	return drive(ctx, r, Apply(opts...), func(d *driver) {
		if f.super != nil {
			f.super(d)
			return
		}
		// the anonymous struct hides the SuperKarel methods of the driver
		f.basic(struct{ Karel }{d})
	})
}
