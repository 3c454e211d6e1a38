package preprocessor

import (
	"fmt"
	"strings"

	"github.com/fwessels/ppstep"
)

// ---------------- Macro expansion ----------------

// item is a token on its way through expansion. A painted identifier names
// a macro that was disabled when it was seen and is never expanded again.
// A placemark stands for an empty argument next to ##.
type item struct {
	tok       ppstep.Token
	painted   bool
	placemark bool
	paste     bool
}

type chunk struct {
	items []item
	pos   int
}

func (c *chunk) done() bool { return c.pos >= len(c.items) }

type expander struct {
	p          *Preprocessor
	hooks      Hooks
	chunks     []*chunk
	bases      []int // first chunk of each rescan in progress, outermost first
	active     map[string]int
	expansions int
}

// overrun is a run of tokens a macro invocation read from beyond the end of
// the innermost frames rescans in progress.
type overrun struct {
	frames int
	items  []item
}

func (p *Preprocessor) expandLine(toks []ppstep.Token, h Hooks) error {
	e := &expander{p: p, hooks: h, active: map[string]int{}}
	e.push(toItems(toks))
	for e.pending(0) {
		it := e.next()
		out, err := e.expandItem(it)
		if err != nil {
			return err
		}
		for _, o := range out {
			if o.placemark {
				continue
			}
			if err := h.LexedToken(o.tok); err != nil {
				return err
			}
		}
	}
	return nil
}

func toItems(toks []ppstep.Token) []item {
	items := make([]item, len(toks))
	for i, t := range toks {
		items[i] = item{tok: t}
	}
	return items
}

func toSequence(items []item) ppstep.Sequence {
	seq := make(ppstep.Sequence, 0, len(items))
	for _, it := range items {
		if !it.placemark {
			seq = append(seq, it.tok)
		}
	}
	return seq
}

func (e *expander) push(items []item) {
	e.chunks = append(e.chunks, &chunk{items: items})
}

// pending reports whether any chunk at or above base has input left.
func (e *expander) pending(base int) bool {
	for i := len(e.chunks) - 1; i >= base; i-- {
		if !e.chunks[i].done() {
			return true
		}
	}
	return false
}

func (e *expander) current() *chunk {
	if i := e.currentIndex(); i >= 0 {
		return e.chunks[i]
	}
	return nil
}

func (e *expander) currentIndex() int {
	for i := len(e.chunks) - 1; i >= 0; i-- {
		if !e.chunks[i].done() {
			return i
		}
	}
	return -1
}

func (e *expander) next() item {
	it, _ := e.nextFrom()
	return it
}

// nextFrom is next, also reporting how many rescans in progress the item
// lies beyond.
func (e *expander) nextFrom() (item, int) {
	i := e.currentIndex()
	if i < 0 {
		return item{}, 0
	}
	c := e.chunks[i]
	it := c.items[c.pos]
	c.pos++
	frames := 0
	for _, b := range e.bases {
		if b > i {
			frames++
		}
	}
	return it, frames
}

func (e *expander) peek() (item, bool) {
	c := e.current()
	if c == nil {
		return item{}, false
	}
	return c.items[c.pos], true
}

// expandItem returns the fully expanded replacement of it, reading macro
// arguments from the input when it names a function-like macro.
func (e *expander) expandItem(it item) ([]item, error) {
	if it.painted || it.placemark || it.tok.Kind != ppstep.TokenIdent {
		return []item{it}, nil
	}
	m, ok := e.p.macros[it.tok.Value]
	if !ok {
		return []item{it}, nil
	}
	if e.active[m.Name] > 0 {
		it.painted = true
		return []item{it}, nil
	}
	if m.Function() {
		nx, ok := e.peek()
		if !ok || nx.tok.Value != "(" {
			return []item{it}, nil
		}
	}
	return e.expandMacro(it.tok, m)
}

func (e *expander) expandMacro(name ppstep.Token, m *Macro) ([]item, error) {
	e.expansions++
	if limit := e.p.MaxExpansions; limit > 0 && e.expansions > limit {
		return nil, &Error{
			Msg: fmt.Sprintf("expanding %q: more than %d expansions on one line", m.Name, limit),
			Err: ErrRecursion,
		}
	}

	var args [][]item
	if m.Function() {
		raw, span, over, err := e.readArgs(name)
		if err != nil {
			return nil, err
		}
		if oh, ok := e.hooks.(OverrunHooks); ok {
			for _, o := range over {
				if err := oh.RescanOverrun(toSequence(o.items), o.frames); err != nil {
					return nil, err
				}
			}
		}
		if args, err = bindArgs(m, raw); err != nil {
			return nil, err
		}
		rawSeqs := make([]ppstep.Sequence, len(args))
		for i, a := range args {
			rawSeqs[i] = toSequence(a)
		}
		if err := e.hooks.ExpandingFunctionLikeMacro(name, rawSeqs, toSequence(span)); err != nil {
			return nil, err
		}
	} else if err := e.hooks.ExpandingObjectLikeMacro(name); err != nil {
		return nil, err
	}

	expanded := make([][]item, len(args))
	for i, a := range args {
		if !m.plain[i] {
			continue
		}
		x, err := e.expandArg(a)
		if err != nil {
			return nil, err
		}
		expanded[i] = x
	}

	body, err := substitute(m, name, args, expanded)
	if err != nil {
		return nil, err
	}
	if err := e.hooks.ExpandedMacro(toSequence(body)); err != nil {
		return nil, err
	}

	e.active[m.Name]++
	result, err := e.rescan(body)
	e.active[m.Name]--
	if err != nil {
		return nil, err
	}
	if err := e.hooks.RescannedMacro(toSequence(result)); err != nil {
		return nil, err
	}
	return result, nil
}

// rescan expands body. A function-like macro name at the end of body may
// take its arguments from the input that follows.
func (e *expander) rescan(body []item) ([]item, error) {
	base := len(e.chunks)
	e.push(body)
	e.bases = append(e.bases, base)
	defer func() {
		e.chunks = e.chunks[:base]
		e.bases = e.bases[:len(e.bases)-1]
	}()

	var out []item
	for e.pending(base) {
		r, err := e.expandItem(e.next())
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out, nil
}

// expandArg fully expands one argument in isolation from the surrounding
// input.
func (e *expander) expandArg(arg []item) ([]item, error) {
	saved, savedBases := e.chunks, e.bases
	e.chunks, e.bases = nil, nil
	defer func() { e.chunks, e.bases = saved, savedBases }()

	e.push(arg)
	out := []item{}
	for e.pending(0) {
		r, err := e.expandItem(e.next())
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out, nil
}

// readArgs consumes "( ... )" after a macro name. It returns the arguments
// split at top-level commas, the whole invocation with the name included, and
// the tokens read from past the end of rescans in progress.
func (e *expander) readArgs(name ppstep.Token) ([][]item, []item, []overrun, error) {
	var over []overrun
	read := func() item {
		it, frames := e.nextFrom()
		if frames == 0 {
			return it
		}
		if n := len(over); n > 0 && over[n-1].frames == frames {
			over[n-1].items = append(over[n-1].items, it)
		} else {
			over = append(over, overrun{frames: frames, items: []item{it}})
		}
		return it
	}

	span := []item{{tok: name}, read()}
	var args [][]item
	cur := []item{}
	depth := 0
	for {
		if _, ok := e.peek(); !ok {
			return nil, nil, nil, &Error{Msg: fmt.Sprintf("unterminated argument list invoking macro %q", name.Value)}
		}
		it := read()
		span = append(span, it)
		switch it.tok.Value {
		case "(":
			depth++
		case ")":
			if depth == 0 {
				args = append(args, cur)
				return args, span, over, nil
			}
			depth--
		case ",":
			if depth == 0 {
				args = append(args, cur)
				cur = []item{}
				continue
			}
		}
		cur = append(cur, it)
	}
}

func bindArgs(m *Macro, raw [][]item) ([][]item, error) {
	n := len(m.Params)
	if n == 0 {
		if len(raw) == 1 && len(raw[0]) == 0 {
			return nil, nil
		}
		return nil, &Error{Msg: fmt.Sprintf("macro %q passed %d arguments, but takes just 0", m.Name, len(raw))}
	}
	if m.Variadic {
		if len(raw) == n-1 {
			return append(raw, []item{}), nil
		}
		if len(raw) < n-1 {
			return nil, &Error{Msg: fmt.Sprintf("macro %q requires at least %d arguments, but only %d given", m.Name, n-1, len(raw))}
		}
		rest := raw[n-1]
		for _, a := range raw[n:] {
			rest = append(rest, item{tok: ppstep.Token{Value: ",", Kind: ppstep.TokenPunct}})
			rest = append(rest, a...)
		}
		return append(raw[:n-1:n-1], rest), nil
	}
	if len(raw) < n {
		return nil, &Error{Msg: fmt.Sprintf("macro %q requires %d arguments, but only %d given", m.Name, n, len(raw))}
	}
	if len(raw) > n {
		return nil, &Error{Msg: fmt.Sprintf("macro %q passed %d arguments, but takes just %d", m.Name, len(raw), n)}
	}
	return raw, nil
}

// substitute replaces parameters in the body of m and performs # and ##.
func substitute(m *Macro, name ppstep.Token, args, expanded [][]item) ([]item, error) {
	body := m.Body
	out := make([]item, 0, len(body))
	for i := 0; i < len(body); i++ {
		t := body[i]
		t.Line = name.Line

		if t.Value == "#" && m.Function() && i+1 < len(body) {
			if idx := m.param(body[i+1].Value); idx >= 0 {
				out = append(out, item{tok: stringize(args[idx], name.Line)})
				i++
				continue
			}
		}
		if t.Value == "##" && len(out) > 0 && i+1 < len(body) {
			out = append(out, item{tok: t, paste: true})
			continue
		}
		if idx := m.param(t.Value); idx >= 0 {
			pasted := (i > 0 && body[i-1].Value == "##") || (i+1 < len(body) && body[i+1].Value == "##")
			arg := expanded[idx]
			if pasted || arg == nil {
				arg = args[idx]
			}
			if len(arg) == 0 {
				if pasted {
					out = append(out, item{placemark: true})
				}
				continue
			}
			out = append(out, arg...)
			continue
		}
		out = append(out, item{tok: t})
	}
	return paste(out)
}

// paste joins the operands around every ## marker.
func paste(in []item) ([]item, error) {
	out := make([]item, 0, len(in))
	for i := 0; i < len(in); i++ {
		it := in[i]
		if !it.paste {
			out = append(out, it)
			continue
		}
		if len(out) == 0 || i+1 >= len(in) {
			continue
		}
		lhs := out[len(out)-1]
		rhs := in[i+1]
		i++
		switch {
		case rhs.placemark:
			continue
		case lhs.placemark:
			out[len(out)-1] = rhs
			continue
		}
		joined := lhs.tok.Value + rhs.tok.Value
		toks := lexTokens(joined, lhs.tok.Line)
		if len(toks) != 1 {
			return nil, &Error{Msg: fmt.Sprintf("pasting %q and %q does not give a valid preprocessing token", lhs.tok.Value, rhs.tok.Value)}
		}
		toks[0].Space = lhs.tok.Space
		out[len(out)-1] = item{tok: toks[0]}
	}
	n := 0
	for _, it := range out {
		if !it.placemark {
			out[n] = it
			n++
		}
	}
	return out[:n], nil
}

func stringize(arg []item, line int) ppstep.Token {
	var b strings.Builder
	b.WriteByte('"')
	for i, it := range arg {
		if i > 0 && it.tok.Space {
			b.WriteByte(' ')
		}
		v := it.tok.Value
		if it.tok.Kind == ppstep.TokenString || it.tok.Kind == ppstep.TokenChar {
			v = strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
		}
		b.WriteString(v)
	}
	b.WriteByte('"')
	return ppstep.Token{Value: b.String(), Kind: ppstep.TokenString, Line: line}
}
