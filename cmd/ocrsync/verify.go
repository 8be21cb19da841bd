package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/api"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/ingest"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/reconcile"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/session"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/svcctx"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/verify"
)

var (
	verifyFields      []string
	verifyValuesFile  string
	verifyExtract     bool
	verifyTemplate    string
	verifyRequirePass bool
	verifyTimeout     time.Duration
)

// VerifyReport is the verify command's output.
type VerifyReport struct {
	Document     string                    `json:"document" yaml:"document"`
	Template     string                    `json:"template" yaml:"template"`
	Submitted    map[schema.FieldID]string `json:"submitted" yaml:"submitted"`
	Verification *verify.Outcome           `json:"verification" yaml:"verification"`
	Summary      verify.Summary            `json:"summary" yaml:"summary"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Verify submitted field values against a document",
	Long: `Verify submitted field values against a document.

Values come from --field flags, a YAML map in --values, or both (flags win).
With --extract the document is extracted first and the merged form, with the
given values applied on top, is submitted.

Examples:
  ocrsync verify id.png -f name="John Doe" -f age=30
  ocrsync verify id.png --values form.yaml
  ocrsync verify id.png --extract -f phone=5551234 --require-pass`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := svcctx.LoggerFrom(ctx)

		doc, err := ingest.Load(args[0], logger)
		if err != nil {
			return err
		}
		values, err := collectValues(verifyValuesFile, verifyFields)
		if err != nil {
			return err
		}

		s, stop, err := startSession(ctx, verifyTemplate)
		if err != nil {
			return err
		}
		defer stop()

		if err := s.Upload(ctx, doc); err != nil {
			return err
		}

		submitted := values
		if verifyExtract {
			if err := s.ExtractSingle(ctx, session.SingleOptions{}); err != nil {
				return err
			}
			if err := settle(ctx, s, verifyTimeout); err != nil {
				return err
			}
			for id, v := range values {
				if err := s.SetField(ctx, id, v); err != nil {
					return err
				}
			}
			// Submit the effective form.
			submitted = nil
		}

		if err := s.Verify(ctx, "", submitted); err != nil {
			if errors.Is(err, session.ErrEmptyInput) {
				return fmt.Errorf("nothing to verify: pass --field, --values or --extract")
			}
			return err
		}
		if err := settle(ctx, s, verifyTimeout); err != nil {
			return err
		}

		view, err := s.Snapshot(ctx)
		if err != nil {
			return err
		}
		if msg := view.Domains[reconcile.DomainVerification].Error; msg != "" {
			return errors.New(msg)
		}
		if view.Verification == nil {
			return errors.New("verification produced no result")
		}

		report := VerifyReport{
			Document:     doc.Name,
			Template:     view.Template,
			Submitted:    submittedValues(view, submitted),
			Verification: view.Verification,
			Summary:      *view.VerificationSummary,
		}
		if err := api.Output(report); err != nil {
			return err
		}
		if verifyRequirePass && !report.Summary.Passed {
			return fmt.Errorf("verification did not pass: match rate %.2f", report.Summary.MatchRate)
		}
		return nil
	},
}

// collectValues merges a YAML values file with key=value flags.
func collectValues(file string, pairs []string) (map[schema.FieldID]string, error) {
	values := make(map[schema.FieldID]string)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read values file: %w", err)
		}
		var raw map[string]string
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse values file: %w", err)
		}
		for k, v := range raw {
			values[schema.FieldID(k)] = v
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid field %q: want key=value", p)
		}
		values[schema.FieldID(strings.TrimSpace(k))] = v
	}
	return values, nil
}

// submittedValues returns what was sent: the explicit map, or the effective
// form when the session chose.
func submittedValues(view *session.View, submitted map[schema.FieldID]string) map[schema.FieldID]string {
	if submitted != nil {
		return submitted
	}
	out := make(map[schema.FieldID]string)
	for id, r := range view.Verification.Fields {
		if r.Submitted != nil {
			out[id] = *r.Submitted
		}
	}
	return out
}

func init() {
	verifyCmd.Flags().StringArrayVarP(&verifyFields, "field", "f", nil, "submitted value as key=value (repeatable)")
	verifyCmd.Flags().StringVar(&verifyValuesFile, "values", "", "YAML file with submitted values")
	verifyCmd.Flags().BoolVar(&verifyExtract, "extract", false, "extract the document first and submit the merged form")
	verifyCmd.Flags().StringVarP(&verifyTemplate, "template", "t", "", "form template (default from config)")
	verifyCmd.Flags().BoolVar(&verifyRequirePass, "require-pass", false, "exit non-zero unless the verification passes")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 5*time.Minute, "how long to wait for the service")

	rootCmd.AddCommand(verifyCmd)
}
