package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with its subcommands
func buildRoot() *cobra.Command {
	runFlags := &RunFlags{}
	submissionFlags := &SubmissionFlags{}

	root := &cobra.Command{
		Use:   "roborun",
		Short: "Run a robot evaluation job on this host",
		Long: `Roborun executes one user code submission against a robot or
simulation backend. It clones and builds the user's repository, starts
the backends in containers, supervises all processes and collects the
results into the output directory.

Examples:
  roborun run -o /tmp/out -r https://github.com/user/code --backend-image backend.sif
  roborun submission   # batch-system mode, reads the user payload`,
	}

	root.AddCommand(
		createRunCommand(runFlags),
		createSubmissionCommand(submissionFlags),
	)

	return root
}
