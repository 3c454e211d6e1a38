// Package console reads commands from the user. On a terminal it uses a
// raw-mode line editor with history; otherwise it reads plain lines.
package console

import (
	"bufio"
	"io"
	"os"

	"golang.org/x/term"
)

type Console struct {
	readLine func() (string, error)
	out      io.Writer
	restore  func() error
}

// Open returns a console reading from in and echoing to out. prompt is
// shown before every line.
func Open(in io.Reader, out io.Writer, prompt string) (*Console, error) {
	if fin, ok := in.(*os.File); ok && isTerminal(fin) && isTerminal(out) {
		fd := int(fin.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, out}, prompt)
		return &Console{
			readLine: t.ReadLine,
			out:      t,
			restore:  func() error { return term.Restore(fd, state) },
		}, nil
	}

	sc := bufio.NewScanner(in)
	return &Console{
		readLine: func() (string, error) {
			if _, err := io.WriteString(out, prompt); err != nil {
				return "", err
			}
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return sc.Text(), nil
		},
		out: out,
	}, nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ReadLine returns the next line without its terminator, or io.EOF once the
// input is exhausted.
func (c *Console) ReadLine() (string, error) { return c.readLine() }

// Write sends output through the console so raw-mode line endings are
// translated.
func (c *Console) Write(p []byte) (int, error) { return c.out.Write(p) }

// Close leaves raw mode.
func (c *Console) Close() error {
	if c.restore == nil {
		return nil
	}
	return c.restore()
}
