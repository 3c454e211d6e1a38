package preprocessor

import "github.com/fwessels/ppstep"

// Hooks receives the preprocessor's progress. The calls mirror the order
// in which the work happens: a macro call is announced, its arguments are
// expanded (which may announce further calls), the substituted body is
// reported, and the body is reported again once rescanning is done.
//
// A non-nil error from any hook stops processing and is returned from
// Process unchanged.
type Hooks interface {
	LexedToken(tok ppstep.Token) error
	ExpandingFunctionLikeMacro(name ppstep.Token, args []ppstep.Sequence, call ppstep.Sequence) error
	ExpandingObjectLikeMacro(name ppstep.Token) error
	ExpandedMacro(result ppstep.Sequence) error
	RescannedMacro(result ppstep.Sequence) error
}

// OverrunHooks is implemented by hooks that want to know when a function-like
// macro found at the end of a rescanned body reads its arguments from the
// tokens that follow the body. It is called before the macro's
// ExpandingFunctionLikeMacro with the tokens taken from beyond the innermost
// frames rescans in progress.
type OverrunHooks interface {
	RescanOverrun(consumed ppstep.Sequence, frames int) error
}

// NopHooks ignores every notification.
type NopHooks struct{}

func (NopHooks) LexedToken(ppstep.Token) error { return nil }
func (NopHooks) ExpandingFunctionLikeMacro(ppstep.Token, []ppstep.Sequence, ppstep.Sequence) error {
	return nil
}
func (NopHooks) ExpandingObjectLikeMacro(ppstep.Token) error { return nil }
func (NopHooks) ExpandedMacro(ppstep.Sequence) error         { return nil }
func (NopHooks) RescannedMacro(ppstep.Sequence) error        { return nil }

// collector keeps the output tokens.
type collector struct {
	NopHooks
	out ppstep.Sequence
}

func (c *collector) LexedToken(tok ppstep.Token) error {
	c.out = append(c.out, tok)
	return nil
}
