package cli

import (
	"github.com/spf13/cobra"

	"github.com/yanqian/flarecast/internal/domain/auth"
)

func newTokenCommand(flags *globalFlags) *cobra.Command {
	var (
		user     string
		email    string
		entitled bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the configured secret",
		Long: `Mint an access token for local testing of the insight API.

Examples:
  flarectl token --user u-123 --entitled
  flarectl token --user u-123 --format json | jq -r .token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := flags.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			svc := auth.NewService(auth.Config{
				Secret:             d.cfg.Auth.Secret,
				TokenTTL:           d.cfg.Auth.TokenTTL,
				RequireEntitlement: d.cfg.Auth.RequireEntitlement,
			}, d.logger)
			issued, err := svc.IssueToken(user, email, entitled)
			if err != nil {
				return err
			}
			return renderToken(cmd.OutOrStdout(), issued, flags.Format)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject user id")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	cmd.Flags().BoolVar(&entitled, "entitled", false, "mark the caller as subscribed")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
