package preprocessor

import (
	"strings"

	"github.com/fwessels/ppstep"
)

// ---------------- Tokenizer ----------------

var punctuators = []string{
	"...", "<<=", ">>=",
	"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"*=", "/=", "%=", "+=", "-=", "&=", "^=", "|=", "##", "::",
}

// lexTokens splits one line into preprocessing tokens. Whitespace and
// comments are dropped; a token they precede has Space set.
func lexTokens(line string, lineNo int) []ppstep.Token {
	toks := make([]ppstep.Token, 0, 8)
	space := false
	emit := func(kind ppstep.TokenKind, s string) {
		toks = append(toks, ppstep.Token{Value: s, Kind: kind, Line: lineNo, Space: space})
		space = false
	}
	for i := 0; i < len(line); {
		ch := line[i]
		if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f' || ch == '\v' {
			space = true
			i++
			continue
		}
		if ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			break
		}
		if ch == '/' && i+1 < len(line) && line[i+1] == '*' {
			space = true
			i += 2
			for i < len(line) {
				if line[i] == '*' && i+1 < len(line) && line[i+1] == '/' {
					i += 2
					break
				}
				i++
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			start := i
			quote := ch
			i++
			for i < len(line) {
				ch = line[i]
				i++
				if ch == '\\' && i < len(line) {
					i++
					continue
				}
				if ch == quote {
					break
				}
			}
			kind := ppstep.TokenString
			if quote == '\'' {
				kind = ppstep.TokenChar
			}
			emit(kind, line[start:i])
			continue
		}
		if isIdentStart(ch) {
			j := i + 1
			for j < len(line) && isIdentPart(line[j]) {
				j++
			}
			emit(ppstep.TokenIdent, line[i:j])
			i = j
			continue
		}
		if isDigit(ch) || (ch == '.' && i+1 < len(line) && isDigit(line[i+1])) {
			j := i + 1
			for j < len(line) {
				c := line[j]
				if (c == '+' || c == '-') && strings.ContainsRune("eEpP", rune(line[j-1])) {
					j++
					continue
				}
				if !isIdentPart(c) && c != '.' {
					break
				}
				j++
			}
			emit(ppstep.TokenNumber, line[i:j])
			i = j
			continue
		}
		if p := matchPunctuator(line[i:]); p != "" {
			emit(ppstep.TokenPunct, p)
			i += len(p)
			continue
		}
		emit(ppstep.TokenPunct, string(ch))
		i++
	}
	return toks
}

// LexTokens exposes the tokenizer for a single line.
func LexTokens(line string) ppstep.Sequence {
	return lexTokens(line, 0)
}

func matchPunctuator(s string) string {
	for _, p := range punctuators {
		if strings.HasPrefix(s, p) {
			return p
		}
	}
	return ""
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func isIdentPart(b byte) bool {
	return isIdentStart(b) || isDigit(b)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// stripComments removes comments from line, replacing each one with a
// single space. inBlock carries an unterminated block comment over to the
// next line.
func stripComments(line string, inBlock *bool) string {
	var b strings.Builder
	for i := 0; i < len(line); {
		if *inBlock {
			end := strings.Index(line[i:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 2
			*inBlock = false
			b.WriteByte(' ')
			continue
		}
		ch := line[i]
		if ch == '"' || ch == '\'' {
			quote := ch
			b.WriteByte(ch)
			i++
			for i < len(line) {
				ch = line[i]
				b.WriteByte(ch)
				i++
				if ch == '\\' && i < len(line) {
					b.WriteByte(line[i])
					i++
					continue
				}
				if ch == quote {
					break
				}
			}
			continue
		}
		if ch == '/' && i+1 < len(line) {
			if line[i+1] == '/' {
				break
			}
			if line[i+1] == '*' {
				*inBlock = true
				i += 2
				continue
			}
		}
		b.WriteByte(ch)
		i++
	}
	return b.String()
}
