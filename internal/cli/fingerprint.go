package cli

import (
	"github.com/spf13/cobra"

	"github.com/yanqian/flarecast/internal/domain/insight"
)

func newFingerprintCommand(flags *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the change-detection fingerprint of an inputs file",
		Long: `Compute the fingerprint the insight service uses to decide whether an
automatic refresh can be skipped. Two files with the same fingerprint are
treated as unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			req, err := readRequest(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			detector := insight.NewChangeDetector(d.cfg.Insight.HourlyWindow, d.cfg.Insight.DailyWindow)
			return renderFingerprint(cmd.OutOrStdout(), detector.Fingerprint(insight.InputsOf(req)), flags.Format)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", `JSON inputs file ("-" for stdin)`)
	return cmd
}
