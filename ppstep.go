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

// Package ppstep reconstructs the full token sequence of a program while a
// C preprocessor works on it, one macro event at a time.
//
// The preprocessing engine only ever reports "this span became that span".
// A Tracker turns those notifications into a history of complete token
// sequences, each with the span that just changed, and asks a Prompter
// whether to stop after every step.
package ppstep

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTerminate is returned through every hook when the user quits.
	ErrTerminate = errors.New("session terminated")

	// ErrCompleted is returned for events delivered after Complete.
	ErrCompleted = errors.New("preprocessing already completed")
)

// Kind is the kind of a preprocessing event.
type Kind int

const (
	KindLexed Kind = iota
	KindCall
	KindExpanded
	KindRescanned
)

func (k Kind) String() string {
	switch k {
	case KindLexed:
		return "lexed"
	case KindCall:
		return "call"
	case KindExpanded:
		return "expanded"
	case KindRescanned:
		return "rescanned"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts the long and one-letter names used on the command line.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "lex", "lexed", "l":
		return KindLexed, nil
	case "call", "c":
		return KindCall, nil
	case "expand", "expanded", "e":
		return KindExpanded, nil
	case "rescan", "rescanned", "r":
		return KindRescanned, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// ---------------- Events ----------------

// Event is one notification from the preprocessing engine. The set of
// implementations is closed: Lexed, Call, Expanded and Rescanned.
type Event interface {
	Kind() Kind
	event()
}

// Lexed reports a token the engine handed to its output.
type Lexed struct {
	Token Token
}

// Call reports that a macro invocation is about to be substituted. Span is
// the full invocation, name and arguments included; for object-like macros
// it is the name alone.
type Call struct {
	Name Token
	Args []Sequence
	Span Sequence
}

// Expanded reports one substitution step. Name is the macro of the
// enclosing call.
type Expanded struct {
	Name   Token
	Before Sequence
	After  Sequence
}

// Rescanned reports the result of rescanning a substitution for further
// macros.
type Rescanned struct {
	Name   Token
	Cause  Sequence
	Before Sequence
	After  Sequence
}

func (Lexed) Kind() Kind     { return KindLexed }
func (Call) Kind() Kind      { return KindCall }
func (Expanded) Kind() Kind  { return KindExpanded }
func (Rescanned) Kind() Kind { return KindRescanned }

func (Lexed) event()     {}
func (Call) event()      {}
func (Expanded) event()  {}
func (Rescanned) event() {}

// ObjectCall builds the Call event for an object-like macro.
func ObjectCall(name Token) Call {
	return Call{Name: name, Span: Sequence{name}}
}
