package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/store/memory"
)

type runOptions struct {
	file      string
	parentSKU string
	dryRun    bool
	asJSON    bool
	quiet     bool
	stocks    []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import a CSV file",
		Long: "Import a product file, or a serial-number file when --parent names a\n" +
			"serial-hosting product. With --dry-run nothing is written: the import runs\n" +
			"against an in-memory copy layered over the database, or against --stock\n" +
			"locations when no database is configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "CSV file to import (required)")
	cmd.Flags().StringVar(&opts.parentSKU, "parent", "", "Parent SKU for serial-number imports")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate and compute without writing")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print progress")
	cmd.Flags().StringSliceVar(&opts.stocks, "stock", nil, "Stock location for offline dry runs (repeatable)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, root *rootOptions, opts runOptions) error {
	ctx := cmd.Context()

	f, err := os.Open(opts.file)
	if err != nil {
		return withCode(exitUsage, err)
	}
	text, err := core.ReadImportFile(f, root.cfg.Import.MaxFileSize)
	f.Close()
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("%s: %w", opts.file, err))
	}

	be, err := root.openBackend(ctx, !opts.dryRun, opts.stocks)
	if err != nil {
		return err
	}
	defer be.close()

	store := be.store
	if opts.dryRun && be.pg != nil {
		store = memory.NewOverlay(be.pg)
	}

	req := core.ImportRequest{
		FileName:  filepath.Base(opts.file),
		Data:      []byte(text),
		ParentSKU: opts.parentSKU,
	}
	if !opts.quiet && !opts.asJSON {
		req.OnProgress = progressPrinter(cmd)
	}

	result, err := root.newService(store).Run(ctx, req)
	if err != nil {
		return withCode(exitUnavailable, err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(cmd, result, opts.dryRun)
	}

	if result.Status != core.StatusSuccess {
		return withCode(exitImportError, fmt.Errorf("import finished with errors"))
	}
	return nil
}

// progressPrinter writes one stderr line per percentage step.
func progressPrinter(cmd *cobra.Command) core.ProgressCallback {
	last := -1
	return func(p core.ImportProgress) {
		if p.Total == 0 {
			return
		}
		if pct := p.Percent(); pct != last || p.Done {
			last = pct
			fmt.Fprintf(cmd.ErrOrStderr(), "\r%3d%% %d/%d", pct, p.Processed, p.Total)
			if p.Done {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		}
	}
}

func printResult(cmd *cobra.Command, r *core.ImportResult, dryRun bool) {
	out := cmd.OutOrStdout()

	prefix := ""
	if dryRun {
		prefix = "[simulation] "
	}

	if r.StructuralError != "" {
		fmt.Fprintf(out, "%sImport refusé : %s\n", prefix, r.StructuralError)
		return
	}

	fmt.Fprintf(out, "%sImport %s (%s) : %d/%d lignes traitées, %d erreur(s) en %s\n",
		prefix, r.FileName, r.Mode, r.Processed, r.Total, len(r.Errors), r.Duration.Round(time.Millisecond))
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  %s\n", e.Message)
	}
}
