// Package console is the terminal side of the client: line input that can
// be abandoned when a session ends, and rendering of menus and the room.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Input reads lines from r on one long-lived goroutine, so a caller
// waiting for a line can give up when its context ends.
type Input struct {
	lines chan string
	err   error
	done  chan struct{}
}

func NewInput(r io.Reader) *Input {
	in := &Input{lines: make(chan string), done: make(chan struct{})}
	go in.scan(r)
	return in
}

func (in *Input) scan(r io.Reader) {
	defer close(in.done)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		in.lines <- scanner.Text()
	}
	in.err = scanner.Err()
	if in.err == nil {
		in.err = io.EOF
	}
}

// ReadLine returns the next line, io.EOF once the input is exhausted, or
// ctx's error if ctx ends first. A line typed after an abandoned read is
// delivered to the next ReadLine.
func (in *Input) ReadLine(ctx context.Context) (string, error) {
	select {
	case line := <-in.lines:
		return line, nil
	case <-in.done:
		return "", in.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Prompt writes prompt to w and reads a trimmed answer.
func (in *Input) Prompt(ctx context.Context, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := in.ReadLine(ctx)
	return strings.TrimSpace(line), err
}
