package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/everydev1618/rigel/dsl"
)

// newInitCmd writes the default math pipeline as a starting point.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default pipeline document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "math.rigel.yaml"
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, dsl.DefaultYAML(), 0o644); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s\n\n", path)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintf(out, "  rigel validate %s\n", path)
			fmt.Fprintf(out, "  rigel solve -f %s \"What is 2+3?\"\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
