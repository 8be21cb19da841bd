package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List and inspect form templates",
}

// TemplateSummary is one row of the templates list.
type TemplateSummary struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	LangCode string `json:"lang_code" yaml:"lang_code"`
	Fields   int    `json:"fields" yaml:"fields"`
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := svcctx.RegistryFrom(cmd.Context())
		if reg == nil {
			return errors.New("template registry not initialized")
		}
		var out []TemplateSummary
		for _, t := range reg.Templates() {
			out = append(out, TemplateSummary{
				ID:       t.ID,
				Name:     t.Name,
				LangCode: t.LangCode,
				Fields:   len(t.Fields),
			})
		}
		return api.Output(out)
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a template's fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := svcctx.RegistryFrom(cmd.Context())
		if reg == nil {
			return errors.New("template registry not initialized")
		}
		t, err := reg.Resolve(args[0])
		if err != nil {
			return err
		}
		return api.Output(t)
	},
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesShowCmd)
	rootCmd.AddCommand(templatesCmd)
}
