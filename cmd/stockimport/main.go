// Command stockimport runs product and serial-number imports from the
// command line, writes import templates and lists stock locations.
//
//	stockimport run --file stock.csv [--parent SKU] [--dry-run]
//	stockimport template --mode serial --format xlsx --out modele.xlsx
//	stockimport stocks
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

const (
	exitOK          = 0
	exitImportError = 1
	exitUsage       = 2
	exitUnavailable = 3
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitImportError
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.code != exitImportError {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	os.Exit(exitCode(err))
}
