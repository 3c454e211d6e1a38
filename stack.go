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

// Candidate is a retained snapshot of the remaining program. Searches start
// at Cursor; a cursor equal to the length means the buffer is exhausted.
type Candidate struct {
	Tokens Sequence
	Cursor int
}

// Exhausted reports whether no position is left to search.
func (c Candidate) Exhausted() bool {
	return c.Cursor >= len(c.Tokens)
}

// Match locates a pattern inside the buffer that is now the top of the stack.
type Match struct {
	Tokens    Sequence
	Start     int
	End       int
	Discarded int
}

// Stack holds candidate buffers, most recently pushed last. Buffers are
// addressed by index and never modified after Push.
type Stack struct {
	bufs []Candidate
}

// Push adds seq as the new top with its cursor at head.
func (s *Stack) Push(seq Sequence, head int) {
	if head < 0 {
		head = 0
	}
	if head > len(seq) {
		head = len(seq)
	}
	s.bufs = append(s.bufs, Candidate{Tokens: seq, Cursor: head})
}

// Find searches the buffers from the top down. Each buffer that does not
// contain pattern at or after its cursor is dropped for good; the first
// one that does becomes the top. When nothing matches the stack is empty
// afterwards.
func (s *Stack) Find(pattern Sequence) (Match, bool) {
	discarded := 0
	for len(s.bufs) > 0 {
		top := s.bufs[len(s.bufs)-1]
		if i := top.Tokens.Index(pattern, top.Cursor); i >= 0 {
			return Match{
				Tokens:    top.Tokens,
				Start:     i,
				End:       i + len(pattern),
				Discarded: discarded,
			}, true
		}
		s.bufs[len(s.bufs)-1] = Candidate{}
		s.bufs = s.bufs[:len(s.bufs)-1]
		discarded++
	}
	return Match{Discarded: discarded}, false
}

// Top returns the most recently pushed buffer.
func (s *Stack) Top() (Candidate, bool) {
	if len(s.bufs) == 0 {
		return Candidate{}, false
	}
	return s.bufs[len(s.bufs)-1], true
}

func (s *Stack) Len() int {
	return len(s.bufs)
}

// Reset drops every buffer.
func (s *Stack) Reset() {
	clear(s.bufs)
	s.bufs = s.bufs[:0]
}

// Splice replaces seq[start:end] with repl and returns the new sequence
// together with the span repl occupies in it.
func Splice(seq Sequence, start, end int, repl Sequence) (Sequence, int, int) {
	out := make(Sequence, 0, len(seq)-(end-start)+len(repl))
	out = append(out, seq[:start]...)
	out = append(out, repl...)
	out = append(out, seq[end:]...)
	return out, start, start + len(repl)
}
