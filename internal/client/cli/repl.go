package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// executor is the command surface the REPL needs; *App implements it.
type executor interface {
	exec(ctx context.Context, cmd string) error
}

// runREPL reads commands line by line until EOF, "exit" or "quit".
// Command errors are printed and the loop goes on. Commands prompt on the
// same reader, so it is read directly rather than through a Scanner.
func runREPL(ctx context.Context, a executor, out io.Writer, reader *bufio.Reader) {
	for {
		fmt.Fprint(out, "ak> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help":
			fmt.Fprintln(out, "Available commands: register, login, me, refresh, logout, ping, exit")
		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return
		default:
			if err := a.exec(ctx, cmd); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		}
	}
}
