// -- cmd/supervise.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/claimgate/internal/handoff"
	"github.com/xkilldash9x/claimgate/internal/observability"
)

// timeoutExitCode matches coreutils timeout(1).
const timeoutExitCode = 124

// newSuperviseCmd is the watchdog the handoff re-executes when
// handoff.watchdog is set. It is not meant to be run by hand.
func newSuperviseCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:         "supervise --timeout <duration> -- <command> [args...]",
		Short:       "Run a claim command under a hard timeout.",
		Hidden:      true,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if timeout <= 0 {
				return fmt.Errorf("--timeout must be a positive duration")
			}
			code, err := handoff.Supervise(cmd.Context(), timeout, args[0], args[1:], os.Stdout, os.Stderr, observability.GetLogger())
			if errors.Is(err, context.DeadlineExceeded) {
				return &ExitError{Code: timeoutExitCode}
			}
			if err != nil {
				return err
			}
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "kill the command's process group after this long")
	return cmd
}
