package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/pkg/errors"
)

const replQuit = ":q"

// RunREPL is the line mode used when stdout is not a terminal. It reads one
// message per line and prints the entries each turn added, until EOF, ":q" or
// ctx is cancelled.
func RunREPL(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	r *conversation.Reconciler,
	t conversation.Transport,
	renderer *Renderer,
) error {
	if renderer == nil {
		renderer = NewPlainRenderer()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-scanErr:
				return errors.Wrap(err, "could not read input")
			default:
				return nil
			}
		}

		line = strings.TrimSpace(line)
		if line == replQuit {
			return nil
		}

		outcome, err := r.Exchange(ctx, t, line)
		if err != nil {
			return err
		}
		if outcome.TurnID == "" {
			continue
		}
		if err := PrintOutcome(out, renderer, line, outcome); err != nil {
			return err
		}
	}
}

// PrintOutcome writes the entries a turn added to w, or a one line notice if
// the turn was rolled back.
func PrintOutcome(w io.Writer, renderer *Renderer, input string, outcome conversation.Outcome) error {
	if renderer == nil {
		renderer = NewPlainRenderer()
	}
	if outcome.Err != nil {
		_, err := fmt.Fprintf(w, "! %v\n", outcome.Err)
		return err
	}

	added := outcome.Added
	// the user already sees their own line
	if outcome.BoundaryFound && len(added) > 0 && added[0].Role == conversation.RoleUser && added[0].Content == input {
		added = added[1:]
	}
	for _, e := range added {
		if _, err := fmt.Fprintln(w, renderer.RenderEntry(e, "")); err != nil {
			return err
		}
	}
	return nil
}
