package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice-engine/internal/engine"
	"github.com/rezonia/einvoice-engine/internal/model"
	"github.com/rezonia/einvoice-engine/internal/profile"
	"github.com/rezonia/einvoice-engine/internal/rules"
)

var (
	validateProfile string
	validateDraft   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoice files against a compliance profile",
	Long: `Validate encoded invoices (XML or hybrid PDF) against their detected
profile, or JSON drafts against a profile given with --profile. Every
violation is reported, not just the first.

Examples:
  einvoice-engine validate invoice.xml
  einvoice-engine validate *.xml
  einvoice-engine validate --draft draft.json --profile xrechnung-3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateProfile, "profile", "p", "", "Profile for draft validation (overrides detection)")
	validateCmd.Flags().BoolVar(&validateDraft, "draft", false, "Treat inputs as JSON drafts")
}

// fileValidation holds the result of validating a single file
type fileValidation struct {
	File     string          `json:"file"`
	Profile  string          `json:"profile,omitempty"`
	Valid    bool            `json:"valid"`
	Errors   []rules.Finding `json:"errors,omitempty"`
	Warnings []rules.Finding `json:"warnings,omitempty"`
	Problem  string          `json:"problem,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	eng := newEngine()
	results := make([]fileValidation, 0, len(args))
	allValid := true

	for _, file := range args {
		r := validateFile(eng, file)
		results = append(results, r)
		if !r.Valid {
			allValid = false
		}
	}

	if err := printJSON(results); err != nil {
		return err
	}
	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

func validateFile(eng *engine.Engine, file string) fileValidation {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := fileValidation{File: file}

	var (
		inv *model.Invoice
		p   profile.Profile
		err error
	)
	if validateDraft {
		if inv, err = loadDraft(file); err != nil {
			out.Problem = err.Error()
			return out
		}
		if p, err = resolveProfile(validateProfile); err != nil {
			out.Problem = err.Error()
			return out
		}
	} else {
		data, err := os.ReadFile(file)
		if err != nil {
			out.Problem = fmt.Sprintf("reading file: %v", err)
			return out
		}
		if inv, p, err = eng.Decode(ctx, data); err != nil {
			out.Problem = err.Error()
			return out
		}
		if validateProfile != "" {
			if p, err = resolveProfile(validateProfile); err != nil {
				out.Problem = err.Error()
				return out
			}
		}
	}

	result, err := eng.Validate(ctx, inv, p)
	if err != nil {
		out.Problem = err.Error()
		return out
	}
	out.Profile = p.ID
	out.Valid = result.Valid()
	out.Errors = result.Errors
	out.Warnings = result.Warnings
	return out
}
