package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"outreach-engine/internal/campaign"
	"outreach-engine/internal/common/config"
	"outreach-engine/internal/common/logger"
	"outreach-engine/internal/models"
	"outreach-engine/internal/template"
	"outreach-engine/pkg/registry"
)

func newTemplatesCmd(g *globalFlags) *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect the template catalog",
	}
	cmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "catalog file (default: template.catalog_path, else the database)")

	cmd.AddCommand(
		newTemplatesListCmd(g, &catalogPath),
		newTemplatesValidateCmd(&catalogPath),
		newTemplatesPreviewCmd(g, &catalogPath),
	)
	return cmd
}

// loadTemplates reads the catalog when one is named, otherwise the
// database configured in g.
func loadTemplates(ctx context.Context, g *globalFlags, catalogPath string) ([]models.Template, map[string]string, error) {
	if catalogPath != "" {
		cat, err := registry.LoadCatalog(catalogPath)
		if err != nil {
			return nil, nil, err
		}
		return cat.Templates, nil, nil
	}

	cfg, log, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Template.CatalogPath != "" {
		cat, err := registry.LoadCatalog(cfg.Template.CatalogPath)
		if err != nil {
			return nil, nil, err
		}
		return cat.Templates, cfg.Campaign.Constants, nil
	}
	tpls, err := listFromDB(ctx, cfg, log)
	return tpls, cfg.Campaign.Constants, err
}

func listFromDB(ctx context.Context, cfg *config.Config, log logger.Logger) ([]models.Template, error) {
	st, closeDB, err := openStore(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	defer closeDB()
	return st.ListTemplates(ctx)
}

func newTemplatesListCmd(g *globalFlags, catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates with their channel and variables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tpls, _, err := loadTemplates(cmd.Context(), g, *catalogPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCHANNEL\tKIND\tVARIABLES")
			for _, t := range tpls {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Channel, t.Kind, strings.Join(t.DeclaredVariables(), ","))
			}
			return w.Flush()
		},
	}
}

func newTemplatesValidateCmd(catalogPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog]",
		Short: "Check a catalog file for invalid or duplicate templates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *catalogPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no catalog given: pass a path or --catalog")
			}

			cat, err := registry.LoadCatalog(path)
			if err != nil {
				return err
			}
			if err := cat.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d templates ok\n", path, len(cat.Templates))
			return nil
		},
	}
}

func newTemplatesPreviewCmd(g *globalFlags, catalogPath *string) *cobra.Command {
	var (
		handle string
		name   string
		vars   map[string]string
	)
	cmd := &cobra.Command{
		Use:   "preview <template-id>",
		Short: "Render a template for a sample target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpls, constants, err := loadTemplates(cmd.Context(), g, *catalogPath)
			if err != nil {
				return err
			}

			var tpl *models.Template
			for i := range tpls {
				if tpls[i].ID == args[0] {
					tpl = &tpls[i]
					break
				}
			}
			if tpl == nil {
				return fmt.Errorf("template %q not found", args[0])
			}

			target := models.Target{ID: "preview", Channel: tpl.Channel, Handle: handle}
			if name != "" {
				target.DisplayName = &name
			}
			values := campaign.Variables(target, constants, vars)

			out := cmd.OutOrStdout()
			var unresolved []string
			if tpl.SubjectPattern != nil {
				subject := template.Compile(*tpl.SubjectPattern)
				fmt.Fprintf(out, "Subject: %s\n", subject.Render(values))
				unresolved = append(unresolved, subject.Unresolved(values)...)
			}
			body := template.Compile(tpl.BodyPattern)
			fmt.Fprintf(out, "\n%s\n", body.Render(values))
			unresolved = append(unresolved, body.Unresolved(values)...)

			if len(unresolved) > 0 {
				fmt.Fprintf(out, "\nunresolved: %s\n", strings.Join(unresolved, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&handle, "handle", "jane@example.com", "sample target handle")
	cmd.Flags().StringVar(&name, "name", "Jane Doe", "sample target display name")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "extra template variable, key=value (repeatable)")
	return cmd
}
