/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ppstep

import (
	"fmt"

	"go.uber.org/zap"
)

// Entry is one reconstructed view of the program: the full token sequence
// after an event and the span [Start,End) that event produced.
type Entry struct {
	Tokens   Sequence
	Kind     Kind
	Name     string
	Start    int
	End      int
	Lexed    int  // length of the committed prefix when the entry was made
	Fallback bool // the replaced span could not be located
}

// Highlight returns the tokens of the changed span.
func (e Entry) Highlight() Sequence {
	return e.Tokens[e.Start:e.End]
}

// Phase tells a Prompter why it is being asked to stop.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseStep
	PhaseComplete
	PhaseException
)

// Pause describes a stop. Entry is the latest history entry and is only
// meaningful when HasEntry is set.
type Pause struct {
	Phase    Phase
	Kind     Kind
	Name     string
	Entry    Entry
	HasEntry bool
	Message  string
}

// Forced reports whether step counters must be ignored for this stop.
func (p Pause) Forced() bool {
	return p.Phase != PhaseStep
}

// Prompter is asked to stop the session. A non-nil error aborts the event
// that caused it and is returned to the engine unchanged.
type Prompter interface {
	Prompt(p Pause) error
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(p Pause) error

func (f PrompterFunc) Prompt(p Pause) error { return f(p) }

// Tracker rebuilds the full token sequence after every engine event. It is
// not safe for concurrent use; events must be delivered one at a time.
type Tracker struct {
	ctl     *Controller
	prompt  Prompter
	log     *zap.Logger
	stack   Stack
	history []Entry
	lexed   Sequence
	staged  Sequence
	done    bool
	failure string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for event tracing.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTracker returns a tracker that consults ctl and stops through p. A nil
// p never stops.
func NewTracker(ctl *Controller, p Prompter, opts ...Option) *Tracker {
	if ctl == nil {
		ctl = NewController()
	}
	if p == nil {
		p = PrompterFunc(func(Pause) error { return nil })
	}
	t := &Tracker{ctl: ctl, prompt: p, log: zap.NewNop()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Handle dispatches one engine event.
func (t *Tracker) Handle(ev Event) error {
	if t.done {
		return ErrCompleted
	}
	switch ev := ev.(type) {
	case Lexed:
		return t.onLexed(ev.Token)
	case Call:
		return t.onCall(ev)
	case Expanded:
		return t.onExpanded(ev.Name, KindExpanded, ev.Before, ev.After)
	case Rescanned:
		if len(ev.Before) == 0 {
			return nil
		}
		return t.onExpanded(ev.Name, KindRescanned, ev.Before, ev.After)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Start stops once before the first event.
func (t *Tracker) Start(filename string) error {
	return t.prompt.Prompt(Pause{Phase: PhaseStart, Message: filename})
}

// Complete ends the session's event stream and stops one last time.
func (t *Tracker) Complete() error {
	if t.done {
		return ErrCompleted
	}
	t.done = true
	t.log.Debug("preprocessing complete", zap.Int("entries", len(t.history)))
	p := Pause{Phase: PhaseComplete}
	p.Entry, p.HasEntry = t.Last()
	return t.prompt.Prompt(p)
}

// Exception records an engine failure and stops one last time.
func (t *Tracker) Exception(description string) error {
	t.failure = description
	t.log.Warn("engine exception", zap.String("description", description))
	p := Pause{Phase: PhaseException, Message: description}
	p.Entry, p.HasEntry = t.Last()
	return t.prompt.Prompt(p)
}

// Failure returns the description passed to Exception, if any.
func (t *Tracker) Failure() string { return t.failure }

// Done reports whether Complete has been called.
func (t *Tracker) Done() bool { return t.done }

// History returns every entry in emission order. The slice must not be
// modified.
func (t *Tracker) History() []Entry { return t.history }

// Last returns the most recent entry.
func (t *Tracker) Last() (Entry, bool) {
	if len(t.history) == 0 {
		return Entry{}, false
	}
	return t.history[len(t.history)-1], true
}

// Committed returns the tokens that will never be touched again.
func (t *Tracker) Committed() Sequence { return t.lexed.Clone() }

// Depth returns the number of candidate buffers currently retained.
func (t *Tracker) Depth() int { return t.stack.Len() }

// ---------------- Event handlers ----------------

func (t *Tracker) onLexed(tok Token) error {
	if t.stack.Len() == 0 {
		return t.commitLexed(tok)
	}

	last, _ := t.Last()
	var tail Sequence
	if len(last.Tokens) > len(t.lexed) {
		tail = last.Tokens[len(t.lexed):]
	}
	if len(tail) == 0 {
		// Nothing is left to re-lex; the open contexts are stale.
		t.stack.Reset()
		t.staged = nil
		return t.commitLexed(tok)
	}

	t.staged = append(t.staged, tok)
	switch {
	case t.staged.Equal(tail):
		t.lexed = append(t.lexed, t.staged...)
		t.log.Debug("re-lexed expansion",
			zap.Stringer("tokens", t.staged),
			zap.Int("dropped", t.stack.Len()))
		t.staged = nil
		t.stack.Reset()
		return nil
	case tail.HasPrefix(t.staged):
		return nil
	}

	// The engine produced something other than the expansion we
	// reconstructed. Take its output as authoritative.
	t.log.Warn("re-lex diverged from reconstruction",
		zap.Stringer("expected", tail),
		zap.Stringer("got", t.staged))
	start := len(t.lexed)
	t.lexed = append(t.lexed, t.staged...)
	t.staged = nil
	t.stack.Reset()
	t.appendEntry(Entry{
		Tokens: t.lexed.Clone(),
		Kind:   KindLexed,
		Name:   tok.Value,
		Start:  start,
		End:    len(t.lexed),
		Lexed:  start,
	})
	return t.maybePause(KindLexed, tok.Value)
}

func (t *Tracker) commitLexed(tok Token) error {
	start := len(t.lexed)
	t.lexed = append(t.lexed, tok)
	t.appendEntry(Entry{
		Tokens: t.lexed.Clone(),
		Kind:   KindLexed,
		Name:   tok.Value,
		Start:  start,
		End:    start + 1,
		Lexed:  start,
	})
	return t.maybePause(KindLexed, tok.Value)
}

func (t *Tracker) onCall(ev Call) error {
	name := ev.Name.Value
	if t.stack.Len() > 0 {
		if m, ok := t.stack.Find(ev.Span); ok {
			t.log.Debug("call inside open expansion",
				zap.String("macro", name),
				zap.Int("start", m.Start),
				zap.Int("discarded", m.Discarded))
			t.appendEntry(t.entry(KindCall, name, m.Tokens, m.Start, m.End, false))
			return t.maybePause(KindCall, name)
		}
	}
	span := ev.Span.Clone()
	t.stack.Push(span, 0)
	t.log.Debug("call", zap.String("macro", name), zap.Stringer("span", span))
	t.appendEntry(t.entry(KindCall, name, span, 0, len(span), false))
	return t.maybePause(KindCall, name)
}

func (t *Tracker) onExpanded(name Token, k Kind, before, after Sequence) error {
	m, ok := t.stack.Find(before)
	if !ok {
		t.log.Warn("pattern not found, starting a fresh buffer",
			zap.Stringer("kind", k),
			zap.String("macro", name.Value),
			zap.Stringer("pattern", before))
		seq := after.Clone()
		t.stack.Push(seq, 0)
		t.appendEntry(t.entry(k, name.Value, seq, 0, len(seq), true))
		return t.maybePause(k, name.Value)
	}

	seq, start, end := Splice(m.Tokens, m.Start, m.End, after)
	t.stack.Push(seq, start)
	t.log.Debug("spliced",
		zap.Stringer("kind", k),
		zap.String("macro", name.Value),
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("discarded", m.Discarded))
	t.appendEntry(t.entry(k, name.Value, seq, start, end, false))
	return t.maybePause(k, name.Value)
}

// entry builds a history entry whose tokens are the committed prefix
// followed by buf.
func (t *Tracker) entry(k Kind, name string, buf Sequence, start, end int, fallback bool) Entry {
	off := len(t.lexed)
	return Entry{
		Tokens:   t.lexed.Concat(buf),
		Kind:     k,
		Name:     name,
		Start:    off + start,
		End:      off + end,
		Lexed:    off,
		Fallback: fallback,
	}
}

func (t *Tracker) appendEntry(e Entry) {
	t.history = append(t.history, e)
}

func (t *Tracker) maybePause(k Kind, name string) error {
	if !t.ctl.ShouldPause(k, name) {
		return nil
	}
	last, ok := t.Last()
	return t.prompt.Prompt(Pause{
		Phase:    PhaseStep,
		Kind:     k,
		Name:     name,
		Entry:    last,
		HasEntry: ok,
	})
}
