// perchctl is the operator console for the Parakeet chatbot platform.
// It drives the multi-company admin API: company switching, knowledge
// base management, chat and media turns, handoff scheduling, and
// system health.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/conversation"
	"github.com/parakeetlabs/perch/internal/domain/document"
	"github.com/parakeetlabs/perch/internal/domain/schedule"
)

func main() {
	// .env is a developer convenience; the real environment wins.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "perchctl: loading .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "perchctl:", err)
		os.Exit(exitCode(err))
	}
}

// usageError marks operator mistakes, which exit 2 instead of 1.
type usageError struct{ err error }

func (u *usageError) Error() string { return u.err.Error() }
func (u *usageError) Unwrap() error { return u.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitCode maps an error to the process exit status: 2 for bad input,
// 1 for everything else. Degraded answers are not errors and exit 0.
func exitCode(err error) int {
	var uerr *usageError
	if errors.As(err, &uerr) {
		return 2
	}
	for _, sentinel := range []error{
		company.ErrInvalidID,
		conversation.ErrEmptyMessage,
		conversation.ErrEmptyMedia,
		conversation.ErrBadFormat,
		document.ErrEmptyUpload,
		document.ErrInvalidQuery,
		schedule.ErrInvalidBooking,
	} {
		if errors.Is(err, sentinel) {
			return 2
		}
	}
	return 1
}

// exactArgs mirrors cobra.ExactArgs but reports the mistake as a
// usage error so it picks up the usage exit status.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("%q expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usagef("%q expects at least %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return usagef("%q accepts at most %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}
