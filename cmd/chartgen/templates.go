package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RhNO3-lx/chartgen/internal/registry"
	"github.com/RhNO3-lx/chartgen/internal/render"
)

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect the template registry",
	}
	cmd.AddCommand(newTemplatesListCmd(), newTemplatesShowCmd())
	return cmd
}

func buildStore() (*registry.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store := registry.NewStore(cfg.TemplateRoot)
	if err := store.Rebuild(render.BuiltinTemplates(), false); err != nil {
		return nil, err
	}
	return store, nil
}

func newTemplatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all registered templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENGINE\tTYPE\tNAME\tTHEME\tFIELDS")
			for _, t := range store.All() {
				roles, err := t.Requirements.ResolveRoles()
				fields := "?"
				if err == nil {
					fields = fmt.Sprintf("%d", len(roles))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					t.Engine, t.ChartType, t.ChartName, t.Requirements.Theme(), fields)
			}
			return w.Flush()
		},
	}
}

func newTemplatesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <chart-name>",
		Short: "Show one template's requirements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore()
			if err != nil {
				return err
			}
			t, err := store.LookupByName(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
