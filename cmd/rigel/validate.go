package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/everydev1618/rigel/dsl"
)

// newValidateCmd validates a pipeline document without calling a model.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file.rigel.yaml]",
		Short: "Validate a pipeline document",
		Args:  cobra.MaximumNArgs(1),
		Example: `  rigel validate math.rigel.yaml
  rigel validate -v math.rigel.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := viper.GetString("file")
			if len(args) == 1 {
				file = args[0]
			}

			doc, err := dsl.Load(file)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if file == "" {
				file = "(embedded default)"
			}
			fmt.Fprintf(out, "✓ %s is valid\n", file)

			if !viper.GetBool("verbose") {
				return nil
			}

			fmt.Fprintf(out, "\nName: %s\n", doc.Name)
			if doc.Description != "" {
				fmt.Fprintf(out, "Description: %s\n", doc.Description)
			}
			fmt.Fprintf(out, "Pipeline: %s\n", doc.Summary())

			roles := doc.Roles()
			names := make([]string, 0, len(roles))
			for name := range roles {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintf(out, "\nAgents (%d):\n", len(names))
			for _, name := range names {
				model := roles[name].Model
				if model == "" {
					model = "(default)"
				}
				fmt.Fprintf(out, "  - %s: %s, model=%s\n", name, roles[name].Label, model)
			}

			tasks := make([]string, 0, len(doc.Tasks))
			for name := range doc.Tasks {
				tasks = append(tasks, name)
			}
			sort.Strings(tasks)

			fmt.Fprintf(out, "\nTasks (%d):\n", len(tasks))
			for _, name := range tasks {
				fmt.Fprintf(out, "  - %s: agent=%s\n", name, doc.Tasks[name].Agent)
			}

			if s := doc.Settings; s != nil {
				fmt.Fprintln(out, "\nSettings:")
				fmt.Fprintf(out, "  rounds: %d\n", doc.Rounds(0))
				fmt.Fprintf(out, "  selection: %s\n", doc.SelectionStrategy())
				fmt.Fprintf(out, "  verify: %t\n", doc.Verifies())
				if s.Provider != "" {
					fmt.Fprintf(out, "  provider: %s\n", s.Provider)
				}
				if s.CallTimeout != "" {
					fmt.Fprintf(out, "  call_timeout: %s\n", s.CallTimeout)
				}
				if s.MaxRetries > 0 {
					fmt.Fprintf(out, "  max_retries: %d\n", s.MaxRetries)
				}
			}
			return nil
		},
	}
}
