package session

import (
	"fmt"

	"github.com/fwessels/ppstep"
)

type expansion struct {
	name ppstep.Token
	call ppstep.Sequence
}

type rescan struct {
	name    ppstep.Token
	cause   ppstep.Sequence
	initial ppstep.Sequence
}

// Server turns preprocessor hooks into tracker events. Expanded and
// rescanned notifications only carry the result, so the server remembers
// which call each one belongs to.
type Server struct {
	tracker    *ppstep.Tracker
	expanding  []expansion
	rescanning []rescan
}

func NewServer(t *ppstep.Tracker) *Server {
	return &Server{tracker: t}
}

func (s *Server) LexedToken(tok ppstep.Token) error {
	return s.tracker.Handle(ppstep.Lexed{Token: tok})
}

func (s *Server) ExpandingFunctionLikeMacro(name ppstep.Token, args []ppstep.Sequence, call ppstep.Sequence) error {
	s.expanding = append(s.expanding, expansion{name: name, call: call.Clone()})
	return s.tracker.Handle(ppstep.Call{Name: name, Args: args, Span: call})
}

func (s *Server) ExpandingObjectLikeMacro(name ppstep.Token) error {
	s.expanding = append(s.expanding, expansion{name: name, call: ppstep.Sequence{name}})
	return s.tracker.Handle(ppstep.ObjectCall(name))
}

func (s *Server) ExpandedMacro(result ppstep.Sequence) error {
	n := len(s.expanding)
	if n == 0 {
		return fmt.Errorf("expansion result %q without a macro call", result)
	}
	top := s.expanding[n-1]
	s.expanding = s.expanding[:n-1]
	s.rescanning = append(s.rescanning, rescan{name: top.name, cause: top.call, initial: result.Clone()})
	return s.tracker.Handle(ppstep.Expanded{Name: top.name, Before: top.call, After: result})
}

func (s *Server) RescannedMacro(result ppstep.Sequence) error {
	n := len(s.rescanning)
	if n == 0 {
		return fmt.Errorf("rescan result %q without an expansion", result)
	}
	top := s.rescanning[n-1]
	s.rescanning = s.rescanning[:n-1]
	return s.tracker.Handle(ppstep.Rescanned{
		Name:   top.name,
		Cause:  top.cause,
		Before: top.initial,
		After:  result,
	})
}

// RescanOverrun extends the tokens the innermost frames rescans started
// from, so their rescanned events cover the arguments a trailing macro
// invocation read from the input after them.
func (s *Server) RescanOverrun(consumed ppstep.Sequence, frames int) error {
	n := len(s.rescanning)
	if frames > n {
		return fmt.Errorf("overrun of %d rescans with only %d in progress", frames, n)
	}
	for i := n - frames; i < n; i++ {
		s.rescanning[i].initial = append(s.rescanning[i].initial.Clone(), consumed...)
	}
	return nil
}
