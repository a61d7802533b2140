package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"lambari-service/internal/config"
	"lambari-service/internal/importer"
	"lambari-service/internal/models"
	"lambari-service/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type openDBFunc func(cfg *config.Config) (*gorm.DB, error)

type app struct {
	cfg     *config.Config
	openDB  openDBFunc
	logger  *logrus.Logger
	verbose bool
}

func newRootCmd(cfg *config.Config, openDB openDBFunc) *cobra.Command {
	a := &app{cfg: cfg, openDB: openDB, logger: logrus.New()}

	root := &cobra.Command{
		Use:           "kit-import",
		Short:         "Validate and import clothing kit spreadsheets into the catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger.SetOutput(cmd.ErrOrStderr())
			a.logger.SetLevel(logrus.WarnLevel)
			if a.verbose {
				a.logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log every row event")

	root.AddCommand(a.newValidateCmd(), a.newCommitCmd())
	return root
}

func (a *app) newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and validate a spreadsheet without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, closeDB, err := a.orchestrator(a.cfg.Workers)
			if err != nil {
				return err
			}
			defer closeDB()

			validations, err := load(cmd.Context(), orch, file)
			if err != nil {
				return err
			}
			printValidations(cmd.OutOrStdout(), validations)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV or XLSX file path (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) newCommitCmd() *cobra.Command {
	var (
		file    string
		workers int
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Validate a spreadsheet and create its kits in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, closeDB, err := a.orchestrator(workers)
			if err != nil {
				return err
			}
			defer closeDB()

			out := cmd.OutOrStdout()
			validations, err := load(cmd.Context(), orch, file)
			if err != nil {
				return err
			}
			printValidations(out, validations)

			if !yes {
				fmt.Fprintln(out, "\nNothing was written. Re-run with --yes to commit the valid rows.")
				return nil
			}

			report, err := orch.Commit(cmd.Context(), validations)
			if report != nil {
				printReport(out, report)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV or XLSX file path (required)")
	cmd.Flags().IntVarP(&workers, "workers", "w", a.cfg.Workers, "Rows committed in parallel")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the commit after the review")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) orchestrator(workers int) (*importer.Orchestrator, func(), error) {
	db, err := a.openDB(a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	opts := a.cfg.ImportOptions()
	opts.Workers = workers
	opts.ActorID = "kit-import-cli"
	opts.Observer = importer.NewLogObserver(a.logger)

	orch := importer.NewOrchestrator(
		importer.NewParser(a.cfg.MaxUploadBytes),
		importer.NewValidator(a.cfg.DefaultBrand),
		repository.NewProductsRepository(db),
		repository.NewBrandsRepository(db, nil),
		repository.NewCategoriesRepository(db, nil),
		opts,
	)
	return orch, closeDB, nil
}

func load(ctx context.Context, orch *importer.Orchestrator, path string) ([]models.ValidationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return orch.Load(ctx, f, filepath.Base(path))
}

func printValidations(w io.Writer, validations []models.ValidationResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTATUS\tNAME\tBRAND\tPRICE\tMESSAGES")

	var valid, warning, failed int
	for _, v := range validations {
		switch v.Status {
		case models.RowStatusValid:
			valid++
		case models.RowStatusWarning:
			warning++
		case models.RowStatusError:
			failed++
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
			v.Row, v.Status, v.Data.Name, v.Data.BrandName, v.Data.Price, strings.Join(v.Messages, "; "))
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d rows: %d valid, %d with warnings, %d with errors\n", len(validations), valid, warning, failed)
}

func printReport(w io.Writer, report *models.BulkImportReport) {
	fmt.Fprintf(w, `
=== Import Report ===
Import ID:          %s
Rows:               %d
Created:            %d
Commit failures:    %d
Validation errors:  %d
Not processed:      %d
Brands created:     %d
Categories created: %d
Duration:           %dms
=====================
`, report.ID, report.TotalRows, report.SuccessCount, report.CommitFailureCount,
		report.ErrorCount, report.SkippedCount, report.CreatedBrands, report.CreatedCategories, report.DurationMs)

	for _, o := range report.Outcomes {
		if o.Status == models.OutcomeFailed {
			fmt.Fprintf(w, "  [fail] row %d %s: %s\n", o.Row, o.Code, o.Error)
		}
	}
}
