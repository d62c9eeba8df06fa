package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Takenobou/sfoweb-appointments/internal/scraper"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "validate --username <u> --password <p>",
		Short: "Check credentials the way initial setup does, without logging in.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closer, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()

			c, err := creds.resolve(cfg)
			if err != nil {
				return err
			}

			s, err := scraper.New(scraper.ConfigFrom(cfg), logger)
			if err != nil {
				return err
			}

			result := "invalid"
			if s.ValidateCredentials(cmd.Context(), c) {
				result = "valid"
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}

	creds.register(cmd)
	return cmd
}
