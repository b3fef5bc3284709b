package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yanqian/flarecast/internal/domain/insight"
	"github.com/yanqian/flarecast/internal/infra/analysisapi"
)

func newAnalyzeCommand(flags *globalFlags) *cobra.Command {
	var (
		file    string
		token   string
		backend string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print the outcome",
		Long: `Send the inputs in --file to the correlation backend and print the
resulting insight. Loading transitions are logged to stderr.

Examples:
  flarectl analyze --file inputs.json
  flarectl analyze --file - --backend http://localhost:8000 --format json < inputs.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			req, err := readRequest(file, cmd.InOrStdin())
			if err != nil {
				return err
			}

			opts := analysisapi.OptionsFromConfig(d.cfg.Backend)
			if backend != "" {
				opts.BaseURL = backend
			}
			client := analysisapi.NewClient(opts, d.logger)
			coord := insight.NewCoordinator(insight.Config{
				AnalyzePath:    d.cfg.Backend.AnalyzePath,
				BackendAddress: strings.TrimRight(client.BaseURL(), "/"),
				HourlyWindow:   d.cfg.Insight.HourlyWindow,
				DailyWindow:    d.cfg.Insight.DailyWindow,
			}, client, nil, d.logger)
			defer coord.Close()

			states, unsubscribe := coord.Subscribe()
			defer unsubscribe()
			go func() {
				for st := range states {
					if st.Loading {
						d.logger.Info("analysis in progress", "message", st.Message)
					}
				}
			}()

			call := coord.Analyze(req, insight.Credential{BearerToken: token})
			if err := call.Wait(cmd.Context()); err != nil {
				return err
			}

			state := coord.Snapshot()
			if err := renderState(cmd.OutOrStdout(), state, flags.Format); err != nil {
				return err
			}
			if state.Error != "" {
				return errors.New(state.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", `JSON inputs file ("-" for stdin)`)
	cmd.Flags().StringVar(&token, "token", "", "bearer token forwarded to the backend")
	cmd.Flags().StringVar(&backend, "backend", "", "override the configured backend base URL")
	return cmd
}
