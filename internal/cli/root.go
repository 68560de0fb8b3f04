// Package cli wires the engine's three-positional-argument contract
// (spec.md §6.1) into a cobra command, the way the retrieved corpus builds
// its command-line tools.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by the root command.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand builds the histfs root command: a single verb taking the
// image path and the two output paths spec.md §6 defines.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "histfs <image> <state-output> <history-output>",
		Short:         "Reconstruct a plausible history of an ext2/3/4 filesystem from ghost directory entries",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(opts.Verbose)
			return run(args[0], args[1], args[2], log)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")

	return cmd
}

func newLogger(verbose bool) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(logger)
}

// Execute runs the histfs CLI and returns the process exit code. spec.md
// §6.1 only requires "exit code 1 on usage error, non-zero on I/O error" —
// this repo does not distinguish further, since nothing downstream
// consumes a more specific code.
func Execute() int {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "histfs:", err)
		return 1
	}
	return 0
}
