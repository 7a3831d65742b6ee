package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dgallion1/docmeta/internal/app"
	"github.com/dgallion1/docmeta/internal/config"
	"github.com/dgallion1/docmeta/internal/editor"
	"github.com/dgallion1/docmeta/internal/mangle"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pathstore"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/session"
	"github.com/dgallion1/docmeta/internal/store"
)

func main() {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], log); err != nil {
		fmt.Fprintf(os.Stderr, "docmeta %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `docmeta - inspect and edit document outlines and text layers

usage:
  docmeta outline      <file>
  docmeta text         <file> <page>
  docmeta edit-outline <file>
  docmeta edit-text    <file> <page>
  docmeta history      <file>

outline       Prints the outline, one "<uri> <title>" line per bookmark.
text          Prints the text layer of a page, one line per text line.
edit-outline  Opens the outline in $EDITOR and saves the result.
edit-text     Opens a page's text layer in $EDITOR and saves the result.
history       Lists the saved commits for the file.

Pages are numbered from 1. Edits are stored in the sidecar store selected
by DOCMETA_STORE (sqlite at DOCMETA_DB_PATH, or pathstore).
`)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func run(ctx context.Context, cmd string, args []string, log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	// Files named on the command line are taken as given.
	cfg.DocumentRoot = ""

	var ed editor.Editor
	if cmd == "edit-outline" || cmd == "edit-text" {
		c, err := editor.FromConfig(cfg.Editor)
		if err != nil {
			return err
		}
		ed = c
	}

	a, err := app.New(ctx, cfg, ed, log)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Sessions.Open(ctx, args[0])
	if err != nil {
		return err
	}

	switch cmd {
	case "outline":
		return printOutline(ctx, sess)
	case "text":
		n, err := pageArg(args)
		if err != nil {
			return err
		}
		return printText(ctx, sess, n)
	case "edit-outline":
		return edit(ctx, sess, func() (*pipeline.Task, error) { return sess.EditOutline(ctx) })
	case "edit-text":
		n, err := pageArg(args)
		if err != nil {
			return err
		}
		return edit(ctx, sess, func() (*pipeline.Task, error) { return sess.EditText(ctx, n) })
	case "history":
		return printHistory(ctx, a.Backend, sess.Path)
	}
	printUsage()
	return fmt.Errorf("unknown command %q", cmd)
}

func pageArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, errors.New("page number required")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page %q", args[1])
	}
	return n - 1, nil
}

func printOutline(ctx context.Context, sess *session.Session) error {
	var buf bytes.Buffer
	err := sess.Do(func(d *model.Document) error {
		o, err := d.Outline(ctx)
		if err != nil {
			return err
		}
		return o.ExportPlaintext(&buf)
	})
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}

func printText(ctx context.Context, sess *session.Session, n int) error {
	var buf bytes.Buffer
	err := sess.Do(func(d *model.Document) error {
		p, err := d.PageText(ctx, n)
		if err != nil {
			return err
		}
		return mangle.Export(p.Raw(), &buf)
	})
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(buf.Bytes())
	return err
}

// edit runs one external edit to completion and saves the result.
func edit(ctx context.Context, sess *session.Session, start func() (*pipeline.Task, error)) error {
	task, err := start()
	if err != nil {
		return err
	}
	out, err := sess.Await(ctx, task)
	if err != nil {
		return err
	}
	if errors.Is(out.Err, model.ErrNothingChanged) {
		fmt.Fprintln(os.Stderr, "nothing changed")
		return nil
	}
	if out.Err != nil {
		return out.Err
	}

	task, err = sess.Save()
	if err != nil {
		return err
	}
	out, err = sess.Await(ctx, task)
	if err != nil {
		return err
	}
	if out.Err != nil {
		return fmt.Errorf("save: %w", out.Err)
	}
	fmt.Fprintln(os.Stderr, "saved")
	return nil
}

func printHistory(ctx context.Context, backend app.Backend, doc string) error {
	switch b := backend.(type) {
	case *store.Store:
		commits, err := b.History(ctx, doc, 50)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "no saved changes")
			return nil
		}
		if err != nil {
			return err
		}
		for _, c := range commits {
			fmt.Printf("%d\t%s\t%d changes\n", c.ID, c.CommittedAt.Format("2006-01-02 15:04:05"), c.Changes)
		}
	case *pathstore.Store:
		commits, err := b.History(ctx, doc, 50)
		if err != nil {
			return err
		}
		for _, c := range commits {
			fmt.Printf("%s\t%s\n", c.Key, c.Value)
		}
	default:
		return fmt.Errorf("history is not supported by %T", backend)
	}
	return nil
}
