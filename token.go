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

import "strings"

// TokenKind classifies a token for presentation only; it plays no part in
// equality.
type TokenKind int

const (
	TokenOther TokenKind = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenChar
	TokenPunct
)

// Token is an immutable preprocessing token. Two tokens are equal when their
// values are equal. Space records whitespace before the token on its line.
type Token struct {
	Value string
	Kind  TokenKind
	Line  int
	Space bool
}

// Tok returns a token carrying only a value.
func Tok(value string) Token {
	return Token{Value: value}
}

func (t Token) Equal(u Token) bool {
	return t.Value == u.Value
}

func (t Token) String() string {
	return t.Value
}

// Sequence is an ordered run of tokens.
type Sequence []Token

// Seq builds a sequence from token values.
func Seq(values ...string) Sequence {
	s := make(Sequence, len(values))
	for i, v := range values {
		s[i] = Tok(v)
	}
	return s
}

// Clone returns an independent copy. The copy of an empty sequence is empty
// but not nil.
func (s Sequence) Clone() Sequence {
	c := make(Sequence, len(s))
	copy(c, s)
	return c
}

// Equal compares two sequences elementwise by value.
func (s Sequence) Equal(o Sequence) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is a value-equal prefix of s.
func (s Sequence) HasPrefix(p Sequence) bool {
	return len(p) <= len(s) && s[:len(p)].Equal(p)
}

// Index returns the first position at or after from where pattern occurs in
// s, or -1.
func (s Sequence) Index(pattern Sequence, from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i+len(pattern) <= len(s); i++ {
		if s[i : i+len(pattern)].Equal(pattern) {
			return i
		}
	}
	return -1
}

// Concat returns s followed by o in a fresh sequence.
func (s Sequence) Concat(o Sequence) Sequence {
	c := make(Sequence, 0, len(s)+len(o))
	c = append(c, s...)
	return append(c, o...)
}

// Values returns the token values.
func (s Sequence) Values() []string {
	v := make([]string, len(s))
	for i, t := range s {
		v[i] = t.Value
	}
	return v
}

// String joins the token values with single spaces.
func (s Sequence) String() string {
	return strings.Join(s.Values(), " ")
}
