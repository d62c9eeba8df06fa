package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Takenobou/sfoweb-appointments/internal/scraper"
)

func newFetchCmd(opts *globalOptions) *cobra.Command {
	var (
		creds  credentialFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [--username <u> --password <p>] [--json]",
		Short: "Log in once and print the current appointments.",
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

			out, err := s.Fetch(cmd.Context(), c)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "strategy=%s signal=%s method=%s source=%s\n", out.Strategy, out.Signal, out.Method, out.Source)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out.Appointments)
			}

			if len(out.Appointments) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No appointments")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tWHAT\tTIME\tCOMMENT")
			for _, a := range out.Appointments {
				date := a.Date
				if date == "" {
					date = a.Description()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", date, a.Category, a.TimeRange, a.Comment)
			}
			return tw.Flush()
		},
	}

	creds.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print appointments as JSON")
	return cmd
}
