// Package cli implements the flarectl command tree: one-shot analyses
// against the correlation backend, fingerprint inspection and development
// token minting.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanqian/flarecast/internal/infra/config"
	"github.com/yanqian/flarecast/pkg/logger"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	ConfigPath string
	Format     string
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "flarectl",
		Short: "flarectl talks to the flare-up correlation backend",
		Long: `flarectl runs symptom/weather analyses against the correlation backend
and inspects the inputs the insight service would send.

Examples:
  flarectl analyze --file inputs.json --token $TOKEN
  flarectl fingerprint --file inputs.json
  flarectl token --user u-123 --entitled`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch flags.Format {
			case FormatTable, FormatJSON:
				return nil
			default:
				return fmt.Errorf("unsupported format %q (want table or json)", flags.Format)
			}
		},
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to a config YAML file (default $CONFIG_PATH or configs/config.yaml)")
	root.PersistentFlags().StringVar(&flags.Format, "format", FormatTable, "output format: table or json")

	root.AddCommand(
		newAnalyzeCommand(flags),
		newFingerprintCommand(flags),
		newTokenCommand(flags),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type deps struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (f *globalFlags) load(stderr io.Writer) (*deps, error) {
	path := f.ConfigPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, logger: logger.NewWriter(stderr, cfg)}, nil
}
