// Package editor runs an external text editor on a file and waits for it to
// exit.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoEditor is returned when no editor command is configured.
var ErrNoEditor = errors.New("no editor configured")

// Editor edits a file in place. EditFile blocks until editing is finished.
type Editor interface {
	EditFile(ctx context.Context, path string) error
}

// Command runs an editor program with the file path as its last argument.
type Command struct {
	Name string
	Args []string

	// Stdin, Stdout and Stderr default to the process's own streams so
	// terminal editors work.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
}

// FromConfig builds a Command from a command line such as "code --wait".
// An empty line falls back to $VISUAL, then $EDITOR, then vi.
func FromConfig(line string) (*Command, error) {
	for _, candidate := range []string{line, os.Getenv("VISUAL"), os.Getenv("EDITOR"), "vi"} {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			return &Command{Name: fields[0], Args: fields[1:]}, nil
		}
	}
	return nil, ErrNoEditor
}

func (c *Command) EditFile(ctx context.Context, path string) error {
	if c.Name == "" {
		return ErrNoEditor
	}
	args := append(append([]string{}, c.Args...), path)
	cmd := exec.CommandContext(ctx, c.Name, args...)
	cmd.Stdin = orDefault(c.Stdin, os.Stdin)
	cmd.Stdout = orDefault(c.Stdout, os.Stdout)
	cmd.Stderr = orDefault(c.Stderr, os.Stderr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run editor %s: %w", c.Name, err)
	}
	return nil
}

func orDefault(f, def *os.File) *os.File {
	if f != nil {
		return f
	}
	return def
}

// Func adapts a function to the Editor interface.
type Func func(ctx context.Context, path string) error

func (f Func) EditFile(ctx context.Context, path string) error { return f(ctx, path) }

// RoundTrip writes content to a temporary file, lets ed edit it and returns
// the edited bytes. The file is removed afterwards.
func RoundTrip(ctx context.Context, ed Editor, pattern string, content []byte) ([]byte, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	defer os.Remove(name)

	if _, err := f.Write(content); err != nil {
		f.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := ed.EditFile(ctx, name); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}
