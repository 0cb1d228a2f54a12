// Package main provides the rigel CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/everydev1618/rigel"
	"github.com/everydev1618/rigel/dsl"
)

var (
	version = "dev"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rigel",
		Short: "Generate, select and verify answers to math problems",
		Long: `rigel answers a problem in three stages: several independent reasoner
runs produce candidate solutions, an evaluator selects the most reliable
one, and a verifier confirms or corrects it.

Configuration is read from flags, RIGEL_* environment variables, a .env
file and ` + rigel.DefaultConfigPath() + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return err
			}
			slog.SetDefault(newLogger(logLevel(nil)))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("file", "f", "", "Pipeline document (default: embedded math pipeline)")
	flags.String("provider", "", "Model provider: anthropic or openai")
	flags.StringP("model", "m", "", "Default model")
	flags.String("base-url", "", "Provider base URL")
	flags.String("db", rigel.DefaultDBPath(), "SQLite database path")
	flags.BoolP("verbose", "v", false, "Verbose output")

	bindFlag(root, "file", "file")
	bindFlag(root, "provider", "provider")
	bindFlag(root, "model", "model")
	bindFlag(root, "base_url", "base-url")
	bindFlag(root, "db", "db")
	bindFlag(root, "verbose", "verbose")

	root.AddCommand(newSolveCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// loadConfig wires environment variables and the optional config file.
func loadConfig() error {
	viper.SetEnvPrefix("RIGEL")
	viper.AutomaticEnv()

	// Provider credentials fall back to each provider's own variables.
	viper.BindEnv("api_key", "RIGEL_API_KEY")
	viper.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	viper.BindEnv("openai_api_key", "DEEPSEEK_API_KEY", "OPENAI_API_KEY")
	viper.BindEnv("base_url", "RIGEL_BASE_URL", "DEEPSEEK_API_BASE_URL")

	viper.SetDefault("addr", ":3001")
	viper.SetDefault("runs", 0)

	path := rigel.DefaultConfigPath()
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// loadDocument parses --file, or the embedded default, and applies
// command-line overrides.
func loadDocument() (*dsl.Document, error) {
	doc, err := dsl.Load(viper.GetString("file"))
	if err != nil {
		return nil, err
	}

	if model := viper.GetString("model"); model != "" {
		if doc.Settings == nil {
			doc.Settings = &dsl.Settings{}
		}
		doc.Settings.DefaultModel = model
	}
	slog.SetDefault(newLogger(logLevel(doc)))
	return doc, nil
}

// logLevel picks the log level: --verbose forces debug, otherwise the
// document's settings.logging.level applies, defaulting to warn.
func logLevel(doc *dsl.Document) slog.Level {
	if viper.GetBool("verbose") {
		return slog.LevelDebug
	}
	if doc == nil {
		return slog.LevelWarn
	}
	return doc.LogLevel(slog.LevelWarn)
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rigel %s\n", version)
		},
	}
}
