// Package terminal renders authorizations on a text terminal and collects the user's answers.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

type lineResult struct {
	line string
	err  error
}

// Console 终端输入输出
// Output is safe for concurrent use. Input must be read from one goroutine.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	reader  *bufio.Reader
	pending chan lineResult
	fd      int
	tty     bool
}

// NewConsole creates a console on in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	c := &Console{out: out, reader: bufio.NewReader(in), fd: -1}
	if f, ok := in.(*os.File); ok {
		c.fd = int(f.Fd())
		c.tty = term.IsTerminal(c.fd)
	}
	return c
}

// NewStdConsole creates a console on stdin and stdout.
func NewStdConsole() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

// Printf writes formatted output.
func (c *Console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// ReadLine returns the next input line without its line terminator.
// A read interrupted by ctx keeps its line for the next call.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	if c.pending == nil {
		ch := make(chan lineResult, 1)
		c.pending = ch
		go func() {
			line, err := c.reader.ReadString('\n')
			ch <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
		}()
	}
	select {
	case res := <-c.pending:
		c.pending = nil
		if res.err != nil && (res.err != io.EOF || res.line == "") {
			return "", res.err
		}
		return res.line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReadSecret prompts for a secret. On a terminal the input is not echoed.
func (c *Console) ReadSecret(ctx context.Context, prompt string) (string, error) {
	c.Printf("%s", prompt)
	if c.tty && c.pending == nil {
		secret, err := term.ReadPassword(c.fd)
		c.Printf("\n")
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}
	return c.ReadLine(ctx)
}
