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
	"sort"
)

// Mode selects which events stop the session.
type Mode int

const (
	// ModeFree stops on every event.
	ModeFree Mode = iota
	// ModeUntilBreak stops only on registered call and expanded breakpoints.
	ModeUntilBreak
)

func (m Mode) String() string {
	switch m {
	case ModeFree:
		return "free"
	case ModeUntilBreak:
		return "until-break"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the names used in configuration files.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "free", "step":
		return ModeFree, nil
	case "until-break", "continue", "run":
		return ModeUntilBreak, nil
	}
	return 0, fmt.Errorf("unknown stepping mode %q", s)
}

// Breakpoints holds macro names that stop the session at call time and at
// expansion-completion time.
type Breakpoints struct {
	call     map[string]struct{}
	expanded map[string]struct{}
}

func NewBreakpoints() *Breakpoints {
	return &Breakpoints{
		call:     map[string]struct{}{},
		expanded: map[string]struct{}{},
	}
}

func (b *Breakpoints) set(k Kind) map[string]struct{} {
	switch k {
	case KindCall:
		return b.call
	case KindExpanded:
		return b.expanded
	case KindLexed, KindRescanned:
		return nil
	}
	return nil
}

// Add registers name for kind. Lexed and rescanned breakpoints do not exist;
// asking for one is a no-op.
func (b *Breakpoints) Add(name string, k Kind) {
	if set := b.set(k); set != nil {
		set[name] = struct{}{}
	}
}

func (b *Breakpoints) Remove(name string, k Kind) {
	if set := b.set(k); set != nil {
		delete(set, name)
	}
}

func (b *Breakpoints) Has(name string, k Kind) bool {
	set := b.set(k)
	if set == nil {
		return false
	}
	_, ok := set[name]
	return ok
}

// List returns the registered names for kind in sorted order.
func (b *Breakpoints) List(k Kind) []string {
	set := b.set(k)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShouldPause decides whether an event of kind k for macro name stops the
// session.
func ShouldPause(mode Mode, k Kind, name string, b *Breakpoints) bool {
	switch mode {
	case ModeFree:
		return true
	case ModeUntilBreak:
		switch k {
		case KindCall, KindExpanded:
			return b != nil && b.Has(name, k)
		case KindLexed, KindRescanned:
			return false
		}
	}
	return false
}

// Controller combines the stepping mode with the breakpoint sets.
type Controller struct {
	mode Mode
	bps  *Breakpoints
}

func NewController() *Controller {
	return &Controller{bps: NewBreakpoints()}
}

func (c *Controller) Mode() Mode                { return c.mode }
func (c *Controller) SetMode(m Mode)            { c.mode = m }
func (c *Controller) Breakpoints() *Breakpoints { return c.bps }

func (c *Controller) Add(name string, k Kind)    { c.bps.Add(name, k) }
func (c *Controller) Remove(name string, k Kind) { c.bps.Remove(name, k) }

func (c *Controller) ShouldPause(k Kind, name string) bool {
	return ShouldPause(c.mode, k, name, c.bps)
}
