package preprocessor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fwessels/ppstep"
	"go.uber.org/zap"
)

// DefaultMaxExpansions bounds the number of macro expansions per line.
const DefaultMaxExpansions = 1000

// ErrRecursion is wrapped by errors raised when the expansion budget of a
// line is exhausted.
var ErrRecursion = errors.New("recursive macro invocation")

// Error is a diagnostic tied to a source position.
type Error struct {
	File string
	Line int
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.File == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// ---------------- Preprocessor ----------------

type Preprocessor struct {
	IncludeDirs       []string
	MaxExpansions     int
	Logger            *zap.Logger
	macros            map[string]*Macro
	includeStackGuard map[string]bool
}

// Macro is a macro definition. Function-like macros have non-nil Params;
// a variadic macro names its last parameter __VA_ARGS__ unless it was
// declared with a name, as in "args...".
type Macro struct {
	Name     string
	Params   []string
	Variadic bool
	Body     []ppstep.Token
	plain    []bool // parameter appears outside # and ##
}

func (m *Macro) Function() bool { return m.Params != nil }

func (m *Macro) param(name string) int {
	for i, p := range m.Params {
		if p == name {
			return i
		}
	}
	return -1
}

func (m *Macro) same(o *Macro) bool {
	if m.Function() != o.Function() || m.Variadic != o.Variadic || len(m.Params) != len(o.Params) {
		return false
	}
	for i := range m.Params {
		if m.Params[i] != o.Params[i] {
			return false
		}
	}
	return ppstep.Sequence(m.Body).Equal(o.Body)
}

func newMacro(name string, params []string, body string, line int) *Macro {
	m := &Macro{Name: name, Params: params, Body: lexTokens(body, line)}
	if n := len(params); n > 0 {
		last := params[n-1]
		if last == "..." {
			m.Variadic = true
			m.Params[n-1] = "__VA_ARGS__"
		} else if strings.HasSuffix(last, "...") {
			m.Variadic = true
			m.Params[n-1] = strings.TrimSuffix(last, "...")
		}
	}
	m.plain = make([]bool, len(m.Params))
	for i, t := range m.Body {
		idx := m.param(t.Value)
		if idx < 0 {
			continue
		}
		stringized := i > 0 && m.Body[i-1].Value == "#"
		pasted := (i > 0 && m.Body[i-1].Value == "##") || (i+1 < len(m.Body) && m.Body[i+1].Value == "##")
		if !stringized && !pasted {
			m.plain[idx] = true
		}
	}
	return m
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		MaxExpansions:     DefaultMaxExpansions,
		Logger:            zap.NewNop(),
		macros:            map[string]*Macro{},
		includeStackGuard: map[string]bool{},
	}
}

func (p *Preprocessor) DefineObject(name, value string) {
	p.macros[name] = newMacro(name, nil, value, 0)
}

func (p *Preprocessor) DefineFunc(name string, params []string, body string) {
	if params == nil {
		params = []string{}
	}
	p.macros[name] = newMacro(name, append([]string(nil), params...), body, 0)
}

// Define installs a definition given as a command-line style name and value.
// A name of the form NAME(params) defines a function-like macro.
func (p *Preprocessor) Define(name, value string) error {
	n, params, body, ok := parseDefineDirective(name + " " + value)
	if !ok || (params == nil && n != strings.TrimSpace(name)) {
		return errorf("invalid macro definition %q", name)
	}
	if params != nil {
		p.DefineFunc(n, params, body)
		return nil
	}
	p.DefineObject(n, body)
	return nil
}

func (p *Preprocessor) Undefine(name string) {
	delete(p.macros, name)
}

func (p *Preprocessor) IsDefined(name string) bool {
	_, ok := p.macros[name]
	return ok
}

func (p *Preprocessor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Expand preprocesses src and returns the output tokens.
func (p *Preprocessor) Expand(ctx context.Context, src string) (ppstep.Sequence, error) {
	var c collector
	if err := p.Process(ctx, "<input>", strings.NewReader(src), &c); err != nil {
		return c.out, err
	}
	return c.out, nil
}

// Process preprocesses file content, reporting every step to h.
func (p *Preprocessor) Process(ctx context.Context, filename string, r io.Reader, h Hooks) error {
	if h == nil {
		h = NopHooks{}
	}
	abs, err := p.resolveAsFile(filename, "")
	if err == nil {
		filename = abs
	}

	if p.includeStackGuard[filename] {
		return fmt.Errorf("include cycle detected at %q", filename)
	}
	p.includeStackGuard[filename] = true
	defer delete(p.includeStackGuard, filename)

	lr := newLineReader(r)
	cond := newCondStack()

	lineNo := 0
	inComment := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, _, ok, err := lr.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if !ok {
			break
		}
		lineNo++
		line = stripComments(line, &inComment)

		trim := strings.TrimSpace(line)
		if strings.HasPrefix(trim, "#") {
			startLineNo := lineNo
			fullLine, consumed, err := readDirectiveLine(line, lr, &inComment)
			if err != nil {
				return err
			}
			lineNo += consumed
			if err := p.handleDirective(ctx, h, filename, startLineNo, strings.TrimSpace(fullLine), cond); err != nil {
				return err
			}
			continue
		}

		if !cond.Active() {
			continue
		}

		toks := lexTokens(line, lineNo)
		if misplacedDirective(toks) {
			return &Error{File: shortPath(filename), Line: lineNo, Msg: "'#' must be first item on line"}
		}
		if err := p.expandLine(toks, h); err != nil {
			var pe *Error
			if errors.As(err, &pe) && pe.File == "" {
				pe.File, pe.Line = shortPath(filename), lineNo
			}
			return err
		}
	}

	if cond.Depth() != 0 {
		if line := cond.UnclosedLine(); line > 0 {
			return &Error{File: shortPath(filename), Line: line, Msg: "unclosed #if, #ifdef or #ifndef"}
		}
		return errorf("%s: unclosed #if, #ifdef or #ifndef", shortPath(filename))
	}
	return nil
}

type lineReader struct {
	r *bufio.Reader
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReader(r)}
}

func (lr *lineReader) next() (line string, hasNL bool, ok bool, err error) {
	s, err := lr.r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", false, false, err
	}
	if len(s) == 0 && err == io.EOF {
		return "", false, false, io.EOF
	}
	hasNL = strings.HasSuffix(s, "\n")
	if hasNL {
		s = strings.TrimSuffix(s[:len(s)-1], "\r")
	}
	return s, hasNL, true, nil
}

// readDirectiveLine joins backslash-continued lines. It returns the logical
// line and how many physical lines it read beyond the first.
func readDirectiveLine(firstLine string, lr *lineReader, inComment *bool) (string, int, error) {
	line := firstLine
	consumed := 0
	var b strings.Builder
	for lineContinues(line) {
		b.WriteString(stripLineContinuation(line))
		b.WriteByte(' ')
		next, _, ok, err := lr.next()
		if err == io.EOF || !ok {
			return b.String(), consumed, nil
		}
		if err != nil {
			return "", consumed, err
		}
		consumed++
		line = stripComments(next, inComment)
	}
	b.WriteString(line)
	return b.String(), consumed, nil
}

func lineContinues(s string) bool {
	i := strings.LastIndexFunc(s, func(r rune) bool {
		return r != ' ' && r != '\t'
	})
	return i >= 0 && s[i] == '\\'
}

func stripLineContinuation(s string) string {
	i := strings.LastIndexFunc(s, func(r rune) bool {
		return r != ' ' && r != '\t'
	})
	if i >= 0 && s[i] == '\\' {
		return strings.TrimRight(s[:i], " \t")
	}
	return s
}

func (p *Preprocessor) handleDirective(ctx context.Context, h Hooks, filename string, lineNo int, trim string, cond *condStack) error {
	fields := splitDirective(trim)
	fail := func(format string, args ...any) error {
		return &Error{File: shortPath(filename), Line: lineNo, Msg: fmt.Sprintf(format, args...)}
	}
	p.logger().Debug("directive",
		zap.String("file", shortPath(filename)),
		zap.Int("line", lineNo),
		zap.String("cmd", fields.cmd),
		zap.Bool("active", cond.Active()))

	switch fields.cmd {
	case "":
		return nil

	case "include":
		if !cond.Active() {
			return nil
		}
		path, ok := parseIncludeArg(fields.arg)
		if !ok {
			return fail("bad #include syntax: %q", trim)
		}
		bs, resolved, err := p.readInclude(path, filename)
		if err != nil {
			return fail("include %q: %v", path, err)
		}
		return p.Process(ctx, resolved, strings.NewReader(string(bs)), h)

	case "define":
		if !cond.Active() {
			return nil
		}
		name, params, body, ok := parseDefineDirective(fields.arg)
		if !ok {
			return fail("bad #define: %q", trim)
		}
		m := newMacro(name, params, body, lineNo)
		if old, ok := p.macros[name]; ok && !old.same(m) {
			return fail("redefinition of macro %q", name)
		}
		p.macros[name] = m
		return nil

	case "undef":
		if !cond.Active() {
			return nil
		}
		p.Undefine(strings.TrimSpace(fields.arg))
		return nil

	case "ifdef":
		name := strings.TrimSpace(fields.arg)
		cond.Push(p.IsDefined(name), lineNo)
		return nil

	case "ifndef":
		name := strings.TrimSpace(fields.arg)
		cond.Push(!p.IsDefined(name), lineNo)
		return nil

	case "if":
		cond.Push(cond.Active() && p.evalIfExpr(fields.arg), lineNo)
		return nil

	case "elif":
		if cond.Depth() == 0 {
			return fail("#elif without #if")
		}
		cond.Elif(p.evalIfExpr(fields.arg))
		return nil

	case "else":
		if cond.Depth() == 0 {
			return fail("#else without #if")
		}
		cond.Else()
		return nil

	case "endif":
		if cond.Depth() == 0 {
			return fail("#endif without #if")
		}
		cond.Pop()
		return nil

	case "error":
		if !cond.Active() {
			return nil
		}
		return fail("#error %s", fields.arg)

	case "warning", "pragma", "line", "ident":
		return nil

	default:
		// Unknown directives are ignored when inactive, error when active to catch typos
		if !cond.Active() {
			return nil
		}
		return fail("unknown directive %q", fields.cmd)
	}
}

// evalIfExpr understands integer literals, macro names, "defined NAME",
// "defined(NAME)" and a leading "!".
func (p *Preprocessor) evalIfExpr(expr string) bool {
	return p.evalIfTokens(lexTokens(expr, 0), 0)
}

func (p *Preprocessor) evalIfTokens(toks []ppstep.Token, depth int) bool {
	if len(toks) == 0 || depth > 32 {
		return false
	}
	if toks[0].Value == "!" {
		return !p.evalIfTokens(toks[1:], depth+1)
	}
	if toks[0].Value == "(" && toks[len(toks)-1].Value == ")" {
		return p.evalIfTokens(toks[1:len(toks)-1], depth+1)
	}
	if toks[0].Value == "defined" {
		rest := toks[1:]
		if len(rest) == 3 && rest[0].Value == "(" && rest[2].Value == ")" {
			return p.IsDefined(rest[1].Value)
		}
		if len(rest) == 1 {
			return p.IsDefined(rest[0].Value)
		}
		return false
	}
	if len(toks) != 1 {
		return false
	}
	t := toks[0]
	switch t.Kind {
	case ppstep.TokenNumber:
		v, err := strconv.ParseInt(strings.TrimRight(t.Value, "uUlL"), 0, 64)
		return err == nil && v != 0
	case ppstep.TokenIdent:
		if m, ok := p.macros[t.Value]; ok && !m.Function() {
			return p.evalIfTokens(m.Body, depth+1)
		}
	}
	return false
}

// misplacedDirective reports whether a text line carries a '#' punctuator
// followed by a directive name anywhere but at its start.
func misplacedDirective(toks []ppstep.Token) bool {
	for i := 1; i+1 < len(toks); i++ {
		if toks[i].Kind == ppstep.TokenPunct && toks[i].Value == "#" &&
			toks[i+1].Kind == ppstep.TokenIdent && isDirectiveName(toks[i+1].Value) {
			return true
		}
	}
	return false
}

func isDirectiveName(s string) bool {
	switch s {
	case "include", "define", "undef", "ifdef", "ifndef", "if", "elif", "else", "endif", "error":
		return true
	default:
		return false
	}
}

// ---------------- Directive parsing helpers ----------------

type directiveFields struct {
	cmd string
	arg string
}

func splitDirective(trim string) directiveFields {
	// trim begins with '#'
	trim = strings.TrimSpace(trim[1:])
	if trim == "" {
		return directiveFields{}
	}
	sp := strings.Fields(trim)
	cmd := sp[0]
	arg := strings.TrimSpace(trim[len(cmd):])
	return directiveFields{cmd: cmd, arg: arg}
}

func parseIncludeArg(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		return arg[1 : len(arg)-1], true
	}
	if len(arg) >= 2 && arg[0] == '<' && arg[len(arg)-1] == '>' {
		return arg[1 : len(arg)-1], true
	}
	return "", false
}

func parseDefineDirective(arg string) (name string, params []string, body string, ok bool) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", nil, "", false
	}

	// parse name
	if !isIdentStart(arg[0]) {
		return "", nil, "", false
	}
	i := 1
	for i < len(arg) && isIdentPart(arg[i]) {
		i++
	}
	name = arg[:i]
	rest := arg[i:]

	// function-like only if '(' immediately follows name
	if strings.HasPrefix(rest, "(") {
		j := strings.Index(rest, ")")
		if j < 0 {
			return "", nil, "", false
		}
		paramStr := rest[1:j]
		body = trimLeftSpaceTab(rest[j+1:])
		if strings.TrimSpace(paramStr) == "" {
			return name, []string{}, body, true
		}
		raw := strings.Split(paramStr, ",")
		params = make([]string, 0, len(raw))
		for _, r := range raw {
			param := strings.TrimSpace(r)
			if param == "" {
				return "", nil, "", false
			}
			params = append(params, param)
		}
		return name, params, body, true
	}

	// object-like: NAME body...
	body = trimLeftSpaceTab(arg[len(name):])
	return name, nil, body, true
}

func trimLeftSpaceTab(s string) string {
	return strings.TrimLeft(s, " \t")
}

// ParseDefine splits a command-line definition of the form NAME or
// NAME=VALUE.
func ParseDefine(s string) (name, value string) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, "1"
}

// ---------------- Include resolution ----------------

func (p *Preprocessor) readInclude(path string, includingFile string) ([]byte, string, error) {
	resolved, err := p.resolveAsFile(path, includingFile)
	if err != nil {
		return nil, "", err
	}
	bs, err := os.ReadFile(resolved)
	return bs, resolved, err
}

func (p *Preprocessor) resolveAsFile(path string, includingFile string) (string, error) {
	// If path is absolute or relative to including file
	if filepath.IsAbs(path) {
		if fileExists(path) {
			return filepath.Clean(path), nil
		}
		return "", os.ErrNotExist
	}

	// 1) relative to including file directory
	if includingFile != "" && includingFile != "<stdin>" {
		base := filepath.Dir(includingFile)
		cand := filepath.Join(base, path)
		if fileExists(cand) {
			return filepath.Clean(cand), nil
		}
	}

	// 2) include dirs
	for _, dir := range p.IncludeDirs {
		cand := filepath.Join(dir, path)
		if fileExists(cand) {
			return filepath.Clean(cand), nil
		}
	}
	return "", fmt.Errorf("cannot resolve include %q", path)
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func shortPath(p string) string {
	// nicer errors
	if p == "" {
		return p
	}
	return filepath.Base(p)
}

// ---------------- Conditionals ----------------

type condStack struct {
	// Each level stores: parentActive, thisBranchTaken, thisActive
	stack []condFrame
}

type condFrame struct {
	parentActive bool
	taken        bool
	active       bool
	line         int
}

func newCondStack() *condStack  { return &condStack{} }
func (c *condStack) Depth() int { return len(c.stack) }

func (c *condStack) Active() bool {
	if len(c.stack) == 0 {
		return true
	}
	return c.stack[len(c.stack)-1].active
}

func (c *condStack) Push(cond bool, line int) {
	parent := c.Active()
	active := parent && cond
	c.stack = append(c.stack, condFrame{
		parentActive: parent,
		taken:        active, // if active, branch is taken
		active:       active,
		line:         line,
	})
}

func (c *condStack) Elif(cond bool) {
	if len(c.stack) == 0 {
		return
	}
	top := &c.stack[len(c.stack)-1]
	if !top.parentActive {
		top.active = false
		return
	}
	if top.taken {
		top.active = false
		return
	}
	top.active = cond
	if cond {
		top.taken = true
	}
}

func (c *condStack) Else() {
	if len(c.stack) == 0 {
		return
	}
	top := &c.stack[len(c.stack)-1]
	if !top.parentActive {
		top.active = false
		return
	}
	top.active = !top.taken
	top.taken = true
}

func (c *condStack) Pop() {
	if len(c.stack) == 0 {
		return
	}
	c.stack = c.stack[:len(c.stack)-1]
}

func (c *condStack) UnclosedLine() int {
	if len(c.stack) == 0 {
		return 0
	}
	return c.stack[len(c.stack)-1].line
}
