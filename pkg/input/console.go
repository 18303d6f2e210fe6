package input

import (
	"bufio"
	"io"
	"strings"
)

// ReadConsole drives a local source with text commands, one per line:
// "+right" holds an action, "-right" releases it, "bomb" taps it.
// Several commands may share a line. It returns on EOF or a read error.
func ReadConsole(r io.Reader, l *Local) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, cmd := range strings.Fields(scanner.Text()) {
			Command(l, cmd)
		}
	}
	return scanner.Err()
}

// Command applies a single console command, unknown ones are ignored.
func Command(l *Local, cmd string) bool {
	op := byte(0)
	if cmd != "" && (cmd[0] == '+' || cmd[0] == '-') {
		op, cmd = cmd[0], cmd[1:]
	}
	a, ok := ParseAction(strings.ToUpper(cmd))
	if !ok {
		return false
	}
	switch op {
	case '+':
		l.Press(a)
	case '-':
		l.Release(a)
	default:
		l.Press(a)
		l.Release(a)
	}
	return true
}
