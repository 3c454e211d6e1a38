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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSequenceIndex(t *testing.T) {
	testCases := []struct {
		name    string
		seq     Sequence
		pattern Sequence
		from    int
		want    int
	}{
		{"first occurrence", Seq("a", "b", "a", "b"), Seq("a", "b"), 0, 0},
		{"from cursor", Seq("a", "b", "a", "b"), Seq("a", "b"), 1, 2},
		{"cursor on match", Seq("a", "b", "a", "b"), Seq("a", "b"), 2, 2},
		{"before cursor only", Seq("a", "b", "c"), Seq("a"), 1, -1},
		{"missing", Seq("a", "b"), Seq("c"), 0, -1},
		{"longer than sequence", Seq("a"), Seq("a", "a"), 0, -1},
		{"whole sequence", Seq("INC", "(", "5", ")"), Seq("INC", "(", "5", ")"), 0, 0},
		{"empty pattern", Seq("a"), Seq(), 1, 1},
		{"negative from", Seq("a"), Seq("a"), -3, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.seq.Index(tc.pattern, tc.from); got != tc.want {
				t.Errorf("got: %d; want: %d", got, tc.want)
			}
		})
	}
}

func TestSequenceEqualIgnoresKindAndLine(t *testing.T) {
	a := Sequence{{Value: "x", Kind: TokenIdent, Line: 3}}
	b := Sequence{{Value: "x", Kind: TokenOther, Line: 9}}
	if !a.Equal(b) {
		t.Errorf("expected %v to equal %v", a, b)
	}
	if a.Equal(Seq("y")) {
		t.Errorf("expected %v to differ from y", a)
	}
}

func TestSequenceCloneIsIndependent(t *testing.T) {
	s := Seq("a", "b")
	c := s.Clone()
	c[0] = Tok("z")
	if diff := cmp.Diff([]string{"a", "b"}, s.Values()); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceString(t *testing.T) {
	if got := Seq("5", "+", "1").String(); got != "5 + 1" {
		t.Errorf("got: %q", got)
	}
	if !Seq("a", "b", "c").HasPrefix(Seq("a", "b")) || Seq("a").HasPrefix(Seq("a", "b")) {
		t.Errorf("HasPrefix")
	}
}
