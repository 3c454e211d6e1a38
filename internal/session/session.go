// Package session drives an interactive stepping session: it feeds the
// preprocessor's hooks into a tracker and talks to the user whenever the
// tracker stops.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fwessels/ppstep"
	"github.com/fwessels/ppstep/internal/preprocessor"
	"github.com/fwessels/ppstep/internal/view"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Terminal is where commands come from and output goes to.
type Terminal interface {
	io.Writer
	ReadLine() (string, error)
}

type Options struct {
	Mode         ppstep.Mode
	CallBreaks   []string
	ExpandBreaks []string
	Logger       *zap.Logger
}

type Session struct {
	ID string

	term     Terminal
	view     *view.Renderer
	log      *zap.Logger
	ctl      *ppstep.Controller
	tracker  *ppstep.Tracker
	steps    int
	detached bool
}

func New(term Terminal, r *view.Renderer, opts Options) *Session {
	id := uuid.NewString()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session", id))

	ctl := ppstep.NewController()
	ctl.SetMode(opts.Mode)
	for _, name := range opts.CallBreaks {
		ctl.Add(name, ppstep.KindCall)
	}
	for _, name := range opts.ExpandBreaks {
		ctl.Add(name, ppstep.KindExpanded)
	}

	s := &Session{ID: id, term: term, view: r, log: log, ctl: ctl}
	s.tracker = ppstep.NewTracker(ctl, s, ppstep.WithLogger(log))
	return s
}

// Tracker returns the session's history tracker.
func (s *Session) Tracker() *ppstep.Tracker { return s.tracker }

// Controller returns the session's breakpoints and stepping mode.
func (s *Session) Controller() *ppstep.Controller { return s.ctl }

// Run preprocesses src under the session. It returns ppstep.ErrTerminate
// if the user quit, and the engine's error after the user has seen it.
func (s *Session) Run(ctx context.Context, filename string, src io.Reader, pp *preprocessor.Preprocessor) error {
	s.log.Info("session started", zap.String("file", filename))
	if err := s.tracker.Start(filename); err != nil {
		return err
	}

	err := pp.Process(ctx, filename, src, NewServer(s.tracker))
	switch {
	case err == nil:
		return s.tracker.Complete()
	case errors.Is(err, ppstep.ErrTerminate), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.Info("session ended early", zap.Error(err))
		return err
	}

	if perr := s.tracker.Exception(err.Error()); perr != nil {
		return perr
	}
	return err
}

// Prompt implements ppstep.Prompter.
func (s *Session) Prompt(p ppstep.Pause) error {
	switch p.Phase {
	case ppstep.PhaseStart:
		s.printf("%s\n", s.view.Notice("Preprocessing "+p.Message+"."))
		if s.ctl.Mode() == ppstep.ModeUntilBreak {
			return nil
		}
	case ppstep.PhaseComplete:
		s.printf("%s\n", s.view.Notice("Preprocessing complete."))
	case ppstep.PhaseException:
		s.printf("%s\n", s.view.Error(p.Message))
	}
	if s.detached {
		return nil
	}

	if !p.Forced() {
		if s.steps > 0 {
			s.steps--
		}
		if s.steps > 0 {
			return nil
		}
	}
	s.ctl.SetMode(ppstep.ModeFree)
	if p.Phase != ppstep.PhaseStart {
		s.printState()
	}
	return s.loop()
}

func (s *Session) loop() error {
	for {
		line, err := s.term.ReadLine()
		if err == io.EOF {
			s.printf("\n")
			s.log.Info("input closed, running to completion")
			s.detached = true
			return nil
		}
		if err != nil {
			return err
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			s.printf("Undefined command: \"%s\".\n", line)
			continue
		}
		s.log.Debug("command", zap.String("line", line))

		resume, err := s.exec(cmd)
		if err != nil || resume {
			return err
		}
	}
}

func (s *Session) exec(cmd Command) (resume bool, err error) {
	switch cmd.Kind {
	case CmdStep:
		s.steps = cmd.Steps
		return s.steps > 0, nil
	case CmdContinue:
		s.steps = 1
		s.ctl.SetMode(ppstep.ModeUntilBreak)
		return true, nil
	case CmdBreak:
		s.ctl.Add(cmd.Name, cmd.Event)
	case CmdDelete:
		s.ctl.Remove(cmd.Name, cmd.Event)
	case CmdQuit:
		return false, ppstep.ErrTerminate
	case CmdState:
		s.printState()
	case CmdInfo:
		s.printInfo()
	case CmdHelp:
		s.printf("%s", helpText)
	}
	return false, nil
}

func (s *Session) printState() {
	e, ok := s.tracker.Last()
	if !ok {
		return
	}
	s.printf("%s\n", s.view.Entry(e))
}

func (s *Session) printInfo() {
	bps := s.ctl.Breakpoints()
	list := func(k ppstep.Kind) string {
		names := bps.List(k)
		if len(names) == 0 {
			return "none"
		}
		return strings.Join(names, ", ")
	}
	s.printf("Mode: %s\n", s.ctl.Mode())
	s.printf("Call breakpoints: %s\n", list(ppstep.KindCall))
	s.printf("Expand breakpoints: %s\n", list(ppstep.KindExpanded))
	if e, ok := s.tracker.Last(); ok {
		s.printf("Last event: %s %s\n", e.Kind, e.Name)
	}
}

func (s *Session) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(s.term, format, args...); err != nil {
		s.log.Warn("write failed", zap.Error(err))
	}
}
