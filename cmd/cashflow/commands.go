package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lease-cashflow/cashflow-backend/internal/leases"
	"lease-cashflow/cashflow-backend/internal/projection"
	"lease-cashflow/cashflow-backend/internal/reports/export"
)

type projectOptions struct {
	input         string
	output        string
	format        string
	valuationDate string
	escalation    float64
	rounding      string
	strict        bool
	workers       int
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "cashflow",
		Short:         "10-year term and reversion cash flow projector",
		Long:          `Project a rent roll into a 10-year cash flow: passing rent while a lease runs, market rent once it has expired.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")

	logger := func() *zap.Logger {
		if !verbose {
			return zap.NewNop()
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return l
	}

	rootCmd.AddCommand(newProjectCmd(logger), newSampleCmd())
	return rootCmd
}

func newProjectCmd(logger func() *zap.Logger) *cobra.Command {
	opts := projectOptions{}

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project a rent roll (.xlsx or .csv)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProject(cmd.Context(), opts, cmd.OutOrStdout(), logger())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "rent roll file (.xlsx or .csv)")
	flags.StringVarP(&opts.output, "output", "o", "", "output file, stdout when empty")
	flags.StringVarP(&opts.format, "format", "f", "", "output format: excel, csv, pdf or json (default from output extension, else csv)")
	flags.StringVar(&opts.valuationDate, "valuation-date", "", "valuation date, default today")
	flags.Float64VarP(&opts.escalation, "escalation", "e", 0, "annual escalation percent (0-20)")
	flags.StringVar(&opts.rounding, "rounding", string(projection.RoundHalfEven), "rounding mode: half_even or half_up")
	flags.BoolVar(&opts.strict, "strict", false, "reject inconsistent lease records instead of projecting them as-is")
	flags.IntVar(&opts.workers, "workers", projection.DefaultOptions().Workers, "rows projected in parallel")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func newSampleCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write the sample rent roll workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := leases.WriteSampleWorkbook(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "sample_rent_roll.xlsx", "output file")

	return cmd
}

func runProject(ctx context.Context, opts projectOptions, stdout io.Writer, logger *zap.Logger) error {
	if e := opts.escalation; !(e >= 0 && e <= 20) {
		return fmt.Errorf("escalation must be within [0, 20], got %g", opts.escalation)
	}
	rounding, err := projection.ParseRoundingMode(opts.rounding)
	if err != nil {
		return err
	}

	valuationDate := projection.Date(time.Now())
	if opts.valuationDate != "" {
		if valuationDate, err = leases.ParseDate(opts.valuationDate); err != nil {
			return fmt.Errorf("invalid valuation date: %w", err)
		}
	}

	format, err := outputFormat(opts.format, opts.output)
	if err != nil {
		return err
	}

	inputFormat, err := leases.DetectFormat(opts.input)
	if err != nil {
		return err
	}

	in, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	records, err := leases.Read(in, inputFormat)
	if err != nil {
		return err
	}
	logger.Info("Rent roll loaded", zap.String("input", opts.input), zap.Int("rows", len(records)))

	rate := opts.escalation / 100
	if issues := projection.Validate(records, rate); len(issues) > 0 {
		if opts.strict {
			return issues
		}
		for _, issue := range issues {
			logger.Warn("Inconsistent lease record projected as-is", zap.String("issue", issue.Error()))
		}
	}

	grid, err := projection.ProjectConcurrent(ctx, records, valuationDate, rate, projection.Options{
		Rounding: rounding,
		Workers:  opts.workers,
	})
	if err != nil {
		return err
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if err := export.WriteGrid(out, grid, format); err != nil {
		return err
	}
	logger.Info("Cash flow written", zap.String("format", string(format)), zap.String("output", opts.output))

	return nil
}

// outputFormat picks the explicit format, else the output extension, else csv
func outputFormat(explicit, output string) (export.ExportFormat, error) {
	if explicit != "" {
		return export.ParseExportFormat(explicit)
	}
	switch filepath.Ext(output) {
	case ".xlsx":
		return export.ExportFormatExcel, nil
	case ".pdf":
		return export.ExportFormatPDF, nil
	case ".json":
		return export.ExportFormatJSON, nil
	default:
		return export.ExportFormatCSV, nil
	}
}
