// Command squashdelta produces a compact binary delta between two
// SquashFS 4.0 images, grounded on the teacher's snap-delta command
// surface but restructured around a single cobra root command, the
// way deploymenttheory-go-app-composer's cmd/root.go and the vendored
// linuxkit cobra trees lay out a CLI with no subcommands to speak of.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqfs/squashdelta/internal/deltarun"
	"github.com/sqfs/squashdelta/internal/logging"
)

func main() {
	os.Exit(run(os.Stderr))
}

// run executes the root command and writes the single diagnostic line
// spec.md §7 requires to stderr on failure, returning the process exit
// code. Factored out of main so tests can capture stderr without an
// os.Exit call tearing down the test binary.
func run(stderr io.Writer) int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// newRootCmd takes exactly three positional arguments and no flags,
// per spec.md §6's CLI contract: source image, target image, patch
// output. Diagnostics go to standard error regardless of outcome.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "squashdelta <source-image> <target-image> <patch-output>",
		Short:         "Generate a binary delta between two SquashFS 4.0 images",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(false, false); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}

			sourceImage, targetImage, patchOutput := args[0], args[1], args[2]
			return deltarun.Run(context.Background(), sourceImage, targetImage, patchOutput)
		},
	}

	return cmd
}
