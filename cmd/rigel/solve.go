package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/everydev1618/rigel"
	"github.com/everydev1618/rigel/dsl"
)

func newSolveCmd() *cobra.Command {
	var (
		runsFlag int
		timeout  time.Duration
		output   string
		jsonl    string
		noRecord bool
	)

	cmd := &cobra.Command{
		Use:   "solve [problem]",
		Short: "Solve a problem",
		Long: `Solve a problem given as arguments, or read from stdin when no
arguments (or "-") are given.`,
		Example: `  rigel solve "What is 2+3?"
  rigel solve --runs 5 -v < problem.txt
  rigel solve -f geometry.rigel.yaml --output json "Find the area of ..."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := readProblem(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if output != "text" && output != "json" {
				return fmt.Errorf("unknown output format %q", output)
			}

			doc, err := loadDocument()
			if err != nil {
				return err
			}
			inv, err := newInvoker(doc)
			if err != nil {
				return err
			}

			var opts []rigel.Option
			switch {
			case jsonl != "":
				opts = append(opts, rigel.WithRecorder(rigel.NewJSONLRecorder(jsonl)))
			case !noRecord:
				store, err := openStore(viper.GetString("db"))
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, rigel.WithRecorder(store))
			}
			if viper.GetBool("verbose") {
				opts = append(opts, rigel.WithEventHandler(progress(cmd.ErrOrStderr())))
			}

			pipeline, err := dsl.Build(doc, inv, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			result, err := pipeline.Solve(ctx, rigel.NewProblem(problem), runs(doc, runsFlag))
			if err != nil {
				if errors.Is(err, rigel.ErrNoCandidateAvailable) {
					return fmt.Errorf("%w (every reasoner run failed; rerun with -v for details)", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintln(out, result.Answer)
			if viper.GetBool("verbose") {
				printDetails(cmd.ErrOrStderr(), result, inv.Usage())
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&runsFlag, "runs", "n", 0, "Reasoner runs (default: settings.rounds, else 3)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Maximum solve time")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text or json")
	cmd.Flags().StringVar(&jsonl, "jsonl", "", "Append the result to a JSONL file instead of the database")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not record the run")

	return cmd
}

// readProblem joins args, or reads stdin when args are empty or "-".
func readProblem(args []string, stdin io.Reader) (string, error) {
	var text string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	} else {
		text = strings.Join(args, " ")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no problem given")
	}
	return text, nil
}

// progress prints pipeline events as they happen.
func progress(w io.Writer) rigel.EventHandler {
	return func(e rigel.Event) {
		switch e.Type {
		case rigel.EventCandidateAdded:
			fmt.Fprintf(w, "  ✓ run %d: %s\n", e.Run, e.Answer)
		case rigel.EventStageFailed:
			fmt.Fprintf(w, "  ✗ %s (%s)\n", e.Error, e.Message)
		case rigel.EventSelected:
			fmt.Fprintf(w, "  → selected %s: %s\n", e.Message, e.Answer)
		case rigel.EventVerified:
			fmt.Fprintf(w, "  → verification: %s\n", e.Message)
		}
	}
}

func printDetails(w io.Writer, r *rigel.Result, usage rigel.Usage) {
	fmt.Fprintf(w, "\nRun:        %s\n", r.RunID)
	fmt.Fprintf(w, "Source:     %s\n", r.Source)
	fmt.Fprintf(w, "Candidates: %d of %d runs\n", len(r.Candidates), r.Runs)
	for i, c := range r.Candidates {
		marker := " "
		if r.Selection != nil && r.Selection.Index == i {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %d. %s\n", marker, i+1, c.Answer)
	}
	if r.Verdict != nil {
		fmt.Fprintf(w, "Verdict:    %s\n", r.Verdict.Flag)
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "Diagnostic: %s [%s]\n", d.Message, d.Recovery)
	}
	fmt.Fprintf(w, "Usage:      %d calls, %d in / %d out tokens, $%.4f\n",
		usage.Calls, usage.InputTokens, usage.OutputTokens, usage.CostUSD)
	fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Truncate(time.Millisecond))
}
