package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"outreach-engine/internal/app"
	"outreach-engine/internal/campaign"
)

type runFlags struct {
	template string
	channel  string
	limit    int
	dryRun   bool
	runID    string
	vars     map[string]string
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one campaign and print the result as JSON",
		Example: `  outreach run --template welcome --channel email --limit 50
  outreach run -t spring-promo --channel sms --dry-run --var coupon=SPRING10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.load()
			if err != nil {
				return err
			}

			var opts []app.Option
			if f.dryRun {
				opts = append(opts, app.WithoutLiveAdapters())
			}
			engine, err := app.Build(cmd.Context(), cfg, log, opts...)
			if err != nil {
				return err
			}
			defer engine.Close()

			result, err := engine.Dispatcher.Dispatch(cmd.Context(), campaign.Request{
				TemplateID: f.template,
				Channel:    f.channel,
				Limit:      f.limit,
				DryRun:     f.dryRun,
				Variables:  f.vars,
				RunID:      f.runID,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&f.template, "template", "t", "", "template id")
	cmd.Flags().StringVar(&f.channel, "channel", "", "channel lane (email, sms, linkedin, reddit)")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "max targets, 0 uses campaign.default_limit")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "render and log messages without sending or updating targets")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id recorded in the audit log (default: random)")
	cmd.Flags().StringToStringVar(&f.vars, "var", nil, "extra template variable, key=value (repeatable)")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
