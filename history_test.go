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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	pauses []Pause
	err    error
}

func (r *recorder) Prompt(p Pause) error {
	r.pauses = append(r.pauses, p)
	return r.err
}

type entryView struct {
	Kind     string
	Name     string
	Tokens   string
	Start    int
	End      int
	Fallback bool
}

func viewEntries(es []Entry) []entryView {
	out := make([]entryView, len(es))
	for i, e := range es {
		out[i] = entryView{e.Kind.String(), e.Name, e.Tokens.String(), e.Start, e.End, e.Fallback}
	}
	return out
}

func feed(t *testing.T, tr *Tracker, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := tr.Handle(ev); err != nil {
			t.Fatalf("%T: %v", ev, err)
		}
	}
}

func lexed(values ...string) []Event {
	evs := make([]Event, len(values))
	for i, v := range values {
		evs[i] = Lexed{Token: Tok(v)}
	}
	return evs
}

// #define A B
// #define B 1
// A
func scenarioA() []Event {
	return append([]Event{
		ObjectCall(Tok("A")),
		Expanded{Name: Tok("A"), Before: Seq("A"), After: Seq("B")},
		ObjectCall(Tok("B")),
		Expanded{Name: Tok("B"), Before: Seq("B"), After: Seq("1")},
		Rescanned{Name: Tok("B"), Cause: Seq("B"), Before: Seq("1"), After: Seq("1")},
		Rescanned{Name: Tok("A"), Cause: Seq("A"), Before: Seq("B"), After: Seq("1")},
	}, lexed("1")...)
}

func TestScenarioObjectChain(t *testing.T) {
	tr := NewTracker(nil, nil)
	feed(t, tr, scenarioA()...)

	want := []entryView{
		{"call", "A", "A", 0, 1, false},
		{"expanded", "A", "B", 0, 1, false},
		{"call", "B", "B", 0, 1, false},
		{"expanded", "B", "1", 0, 1, false},
		{"rescanned", "B", "1", 0, 1, false},
		{"rescanned", "A", "1", 0, 1, false},
	}
	if diff := cmp.Diff(want, viewEntries(tr.History())); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := tr.Committed().String(); got != "1" {
		t.Errorf("committed: got %q; want %q", got, "1")
	}
	if tr.Depth() != 0 {
		t.Errorf("re-lexing the result must clear the stack, depth %d", tr.Depth())
	}
}

// #define INC(x) x+1
// INC(5)
func TestScenarioFunctionLike(t *testing.T) {
	tr := NewTracker(nil, nil)
	span := Seq("INC", "(", "5", ")")
	feed(t, tr, Call{Name: Tok("INC"), Args: []Sequence{Seq("5")}, Span: span})
	feed(t, tr, Expanded{Name: Tok("INC"), Before: span, After: Seq("5", "+", "1")})
	feed(t, tr, Rescanned{Name: Tok("INC"), Cause: span, Before: Seq("5", "+", "1"), After: Seq("5", "+", "1")})
	feed(t, tr, lexed("5", "+", "1")...)

	want := []entryView{
		{"call", "INC", "INC ( 5 )", 0, 4, false},
		{"expanded", "INC", "5 + 1", 0, 3, false},
		{"rescanned", "INC", "5 + 1", 0, 3, false},
	}
	if diff := cmp.Diff(want, viewEntries(tr.History())); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := tr.Committed().String(); got != "5 + 1" {
		t.Errorf("committed: got %q", got)
	}
}

// #define A x
// #define B y
// A B
func TestScenarioBreakOnCall(t *testing.T) {
	ctl := NewController()
	ctl.Add("A", KindCall)
	ctl.SetMode(ModeUntilBreak)
	rec := &recorder{}
	tr := NewTracker(ctl, rec)

	feed(t, tr,
		ObjectCall(Tok("A")),
		Expanded{Name: Tok("A"), Before: Seq("A"), After: Seq("x")},
		Rescanned{Name: Tok("A"), Cause: Seq("A"), Before: Seq("x"), After: Seq("x")},
		Lexed{Token: Tok("x")},
		ObjectCall(Tok("B")),
		Expanded{Name: Tok("B"), Before: Seq("B"), After: Seq("y")},
		Rescanned{Name: Tok("B"), Cause: Seq("B"), Before: Seq("y"), After: Seq("y")},
		Lexed{Token: Tok("y")},
	)

	if len(rec.pauses) != 1 {
		t.Fatalf("got %d pauses; want 1", len(rec.pauses))
	}
	p := rec.pauses[0]
	if p.Kind != KindCall || p.Name != "A" || !p.HasEntry || p.Entry.Tokens.String() != "A" {
		t.Errorf("unexpected pause %+v", p)
	}
	if got := tr.Committed().String(); got != "x y" {
		t.Errorf("committed: got %q", got)
	}
}

func TestFreeModePausesOnEveryEntry(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(nil, rec)
	feed(t, tr, lexed("int", "x", "=")...)
	feed(t, tr, scenarioA()...)

	if len(rec.pauses) != len(tr.History()) {
		t.Errorf("got %d pauses for %d entries", len(rec.pauses), len(tr.History()))
	}
	for i, p := range rec.pauses {
		if p.Forced() {
			t.Errorf("pause %d is forced", i)
		}
	}
}

func TestHistoryPrefixInvariant(t *testing.T) {
	tr := NewTracker(nil, nil)
	feed(t, tr, lexed("int", "x", "=")...)
	feed(t, tr, scenarioA()...)
	feed(t, tr, lexed(";")...)

	want := []string{"int", "int x", "int x =", "int x = A", "int x = B", "int x = B",
		"int x = 1", "int x = 1", "int x = 1", "int x = 1 ;"}
	var got []string
	for _, e := range tr.History() {
		got = append(got, e.Tokens.String())
		prefix := e.Tokens[:e.Lexed]
		if !tr.Committed().HasPrefix(prefix) {
			t.Errorf("entry %q: prefix %q is not committed", e.Tokens, prefix)
		}
		if e.Kind == KindLexed {
			if e.End != len(e.Tokens) || e.Start != e.Lexed {
				t.Errorf("lexed entry %q highlights [%d,%d)", e.Tokens, e.Start, e.End)
			}
		} else if e.Lexed >= len(e.Tokens) {
			t.Errorf("entry %q: committed prefix is not strict", e.Tokens)
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	last, _ := tr.Last()
	if diff := cmp.Diff(Seq("x", "=", "1").Values(), last.Tokens[1:4].Values()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyRescanIsNoop(t *testing.T) {
	for _, after := range []Sequence{nil, Seq(), Seq("1"), Seq("a", "b")} {
		rec := &recorder{}
		tr := NewTracker(nil, rec)
		feed(t, tr, ObjectCall(Tok("E")), Expanded{Name: Tok("E"), Before: Seq("E"), After: Seq()})
		n, depth := len(tr.History()), tr.Depth()
		feed(t, tr, Rescanned{Name: Tok("E"), Cause: Seq("E"), Before: Seq(), After: after})
		if len(tr.History()) != n || len(rec.pauses) != n || tr.Depth() != depth {
			t.Errorf("after=%v: rescan of an empty span must not change anything", after)
		}
	}
}

func TestEmptyExpansionThenLex(t *testing.T) {
	tr := NewTracker(nil, nil)
	feed(t, tr, ObjectCall(Tok("E")), Expanded{Name: Tok("E"), Before: Seq("E"), After: Seq()})
	feed(t, tr, lexed("y")...)

	if got := tr.Committed().String(); got != "y" {
		t.Errorf("committed: got %q; want %q", got, "y")
	}
	if tr.Depth() != 0 {
		t.Errorf("depth: got %d", tr.Depth())
	}
	last, _ := tr.Last()
	if last.Kind != KindLexed || last.Tokens.String() != "y" {
		t.Errorf("last: %+v", last)
	}
}

func TestCallInsideOpenBufferReusesIt(t *testing.T) {
	tr := NewTracker(nil, nil)
	span := Seq("F", "(", "A", ",", "A", ")")
	feed(t, tr, lexed("x")...)
	feed(t, tr, Call{Name: Tok("F"), Span: span})
	feed(t, tr, ObjectCall(Tok("A")))

	if tr.Depth() != 1 {
		t.Errorf("depth: got %d; want 1", tr.Depth())
	}
	last, _ := tr.Last()
	if last.Kind != KindCall || last.Tokens.String() != "x F ( A , A )" || last.Start != 3 || last.End != 4 {
		t.Errorf("unexpected entry %+v", last)
	}

	feed(t, tr, Expanded{Name: Tok("A"), Before: Seq("A"), After: Seq("1")})
	last, _ = tr.Last()
	if last.Tokens.String() != "x F ( 1 , A )" || last.Start != 3 || last.End != 4 {
		t.Errorf("unexpected entry %+v", last)
	}
	top, _ := tr.stack.Top()
	if top.Cursor != 2 {
		t.Errorf("cursor: got %d; want 2", top.Cursor)
	}
}

func TestExpandedFallbackWhenPatternMissing(t *testing.T) {
	tr := NewTracker(nil, nil)
	feed(t, tr, lexed("a")...)
	feed(t, tr, Call{Name: Tok("F"), Span: Seq("F", "(", ")")})
	feed(t, tr, Expanded{Name: Tok("G"), Before: Seq("G"), After: Seq("q", "r")})

	last, _ := tr.Last()
	want := entryView{"expanded", "G", "a q r", 1, 3, true}
	if diff := cmp.Diff(want, viewEntries([]Entry{last})[0]); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if tr.Depth() != 1 {
		t.Errorf("depth: got %d; want 1", tr.Depth())
	}
}

func TestCallWithoutMatchPushesFresh(t *testing.T) {
	tr := NewTracker(nil, nil)
	feed(t, tr, ObjectCall(Tok("F")), Expanded{Name: Tok("F"), Before: Seq("F"), After: Seq("f")})
	feed(t, tr, Call{Name: Tok("f"), Span: Seq("f", "(", "1", ")")})

	last, _ := tr.Last()
	if last.Tokens.String() != "f ( 1 )" || last.Start != 0 || last.End != 4 || last.Fallback {
		t.Errorf("unexpected entry %+v", last)
	}
	if tr.Depth() != 1 {
		t.Errorf("depth: got %d; want 1", tr.Depth())
	}
}

func TestRelexDivergenceCommitsEngineOutput(t *testing.T) {
	tr := NewTracker(nil, nil)
	feed(t, tr, ObjectCall(Tok("A")), Expanded{Name: Tok("A"), Before: Seq("A"), After: Seq("1", "2")})
	feed(t, tr, lexed("1", "3")...)

	if got := tr.Committed().String(); got != "1 3" {
		t.Errorf("committed: got %q", got)
	}
	last, _ := tr.Last()
	if last.Kind != KindLexed || last.Start != 0 || last.End != 2 {
		t.Errorf("unexpected entry %+v", last)
	}
	if tr.Depth() != 0 {
		t.Errorf("depth: got %d", tr.Depth())
	}
}

func TestCompleteRejectsFurtherEvents(t *testing.T) {
	rec := &recorder{}
	ctl := NewController()
	ctl.SetMode(ModeUntilBreak)
	tr := NewTracker(ctl, rec)
	feed(t, tr, lexed("a")...)
	if err := tr.Complete(); err != nil {
		t.Fatal(err)
	}
	if len(rec.pauses) != 1 || rec.pauses[0].Phase != PhaseComplete || !rec.pauses[0].Forced() {
		t.Fatalf("complete must force one pause, got %+v", rec.pauses)
	}
	if err := tr.Handle(Lexed{Token: Tok("b")}); !errors.Is(err, ErrCompleted) {
		t.Errorf("got %v; want ErrCompleted", err)
	}
	if err := tr.Complete(); !errors.Is(err, ErrCompleted) {
		t.Errorf("got %v; want ErrCompleted", err)
	}
}

func TestExceptionForcesPause(t *testing.T) {
	rec := &recorder{}
	ctl := NewController()
	ctl.SetMode(ModeUntilBreak)
	tr := NewTracker(ctl, rec)
	if err := tr.Exception("x.c:3: #error boom"); err != nil {
		t.Fatal(err)
	}
	if len(rec.pauses) != 1 || rec.pauses[0].Phase != PhaseException || rec.pauses[0].Message != "x.c:3: #error boom" {
		t.Errorf("unexpected pauses %+v", rec.pauses)
	}
	if tr.Failure() != "x.c:3: #error boom" {
		t.Errorf("failure not recorded")
	}
}

func TestPromptErrorPropagates(t *testing.T) {
	rec := &recorder{err: ErrTerminate}
	tr := NewTracker(nil, rec)
	err := tr.Handle(ObjectCall(Tok("A")))
	if !errors.Is(err, ErrTerminate) {
		t.Fatalf("got %v; want ErrTerminate", err)
	}
	if len(tr.History()) != 1 {
		t.Errorf("the entry must be recorded before stopping")
	}
}
