package session

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fwessels/ppstep"
)

// CommandKind identifies a user command.
type CommandKind int

const (
	CmdState CommandKind = iota
	CmdStep
	CmdContinue
	CmdBreak
	CmdDelete
	CmdQuit
	CmdInfo
	CmdHelp
)

// Command is one parsed line of user input.
type Command struct {
	Kind  CommandKind
	Steps int
	Event ppstep.Kind
	Name  string
}

const helpText = `Commands:
  step|s [n]                 run until the n-th next stop (default 1)
  continue|c                 run until a breakpoint
  break|b <kind> <NAME>      stop at events of kind for macro NAME
  delete|d <kind> <NAME>     remove a breakpoint
  info|i                     show mode and breakpoints
  quit|q                     end the session
  <empty line>               show the current state
kinds: call|c, expand|e, rescan|r, lex|l
`

// ParseCommand parses a line of user input. Surrounding and repeated
// whitespace is ignored.
func ParseCommand(line string) (Command, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return Command{Kind: CmdState}, nil
	}
	bad := fmt.Errorf("undefined command %q", line)

	switch f[0] {
	case "step", "s":
		switch len(f) {
		case 1:
			return Command{Kind: CmdStep, Steps: 1}, nil
		case 2:
			n, err := strconv.ParseUint(f[1], 10, 31)
			if err != nil {
				return Command{}, bad
			}
			return Command{Kind: CmdStep, Steps: int(n)}, nil
		}
	case "continue", "c":
		if len(f) == 1 {
			return Command{Kind: CmdContinue}, nil
		}
	case "break", "b", "delete", "d":
		if len(f) != 3 {
			return Command{}, bad
		}
		k, err := ppstep.ParseKind(f[1])
		if err != nil {
			return Command{}, bad
		}
		cmd := Command{Kind: CmdBreak, Event: k, Name: f[2]}
		if f[0] == "delete" || f[0] == "d" {
			cmd.Kind = CmdDelete
		}
		return cmd, nil
	case "quit", "q":
		if len(f) == 1 {
			return Command{Kind: CmdQuit}, nil
		}
	case "info", "i":
		if len(f) == 1 {
			return Command{Kind: CmdInfo}, nil
		}
	case "help", "h", "?":
		if len(f) == 1 {
			return Command{Kind: CmdHelp}, nil
		}
	}
	return Command{}, bad
}
