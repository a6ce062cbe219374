// Package shell holds the presentation surfaces of the assistant: a
// line-based console loop and an HTTP chat server. Both are thin
// pass-throughs to a ports.QueryService.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ahrav/go-trustrag/internal/ports"
)

// ConsolePrompt is printed before each question.
const ConsolePrompt = "Query: "

var separator = strings.Repeat("-", 40)

// Console reads one question per line and prints each response.
type Console struct {
	in  io.Reader
	out io.Writer
	svc ports.QueryService
}

// NewConsole returns a console reading from in and writing to out.
func NewConsole(svc ports.QueryService, in io.Reader, out io.Writer) (*Console, error) {
	if svc == nil {
		return nil, errors.New("query service cannot be nil")
	}
	if in == nil || out == nil {
		return nil, errors.New("console input and output cannot be nil")
	}
	return &Console{in: in, out: out, svc: svc}, nil
}

// Run loops until a blank line, end of input, or ctx is canceled. A failed
// query is reported and the loop continues. Only write errors are returned.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	if _, err := fmt.Fprintln(c.out); err != nil {
		return err
	}
	for {
		if _, err := fmt.Fprint(c.out, ConsolePrompt); err != nil {
			return err
		}

		var question string
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			// Only an empty line ends the session; a line of spaces is
			// still sent and rejected by the service.
			if line == "" {
				return nil
			}
			question = strings.TrimSpace(line)
		}

		resp, err := c.svc.Query(ctx, question)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			_, err = fmt.Fprintf(c.out, "\nerror: %v\n\n%s\n\n", err, separator)
		} else {
			_, err = fmt.Fprintf(c.out, "\n%s\n\n%s\n\n", resp, separator)
		}
		if err != nil {
			return err
		}
	}
}
