package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/core"
)

type templateOptions struct {
	mode   string
	format string
	out    string
	stocks []string
}

func newTemplateCmd(root *rootOptions) *cobra.Command {
	var opts templateOptions

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an import template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTemplate(cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(core.ModeProduct), "Template mode: product or serial")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringSliceVar(&opts.stocks, "stock", nil, "Stock location when no database is configured (repeatable)")

	return cmd
}

func writeTemplate(cmd *cobra.Command, root *rootOptions, opts templateOptions) error {
	ctx := cmd.Context()
	mode := core.ImportMode(strings.ToLower(opts.mode))

	be, err := root.openBackend(ctx, false, opts.stocks)
	if err != nil {
		return err
	}
	defer be.close()
	svc := root.newService(be.store)

	var content []byte
	switch strings.ToLower(opts.format) {
	case "csv":
		text, err := svc.Template(ctx, mode)
		if err != nil {
			return withCode(exitUsage, err)
		}
		content = []byte(text)
	case "xlsx":
		if opts.out == "" {
			return withCode(exitUsage, fmt.Errorf("--out is required for xlsx templates"))
		}
		content, err = svc.TemplateXLSX(ctx, mode)
		if err != nil {
			return withCode(exitUsage, err)
		}
	default:
		return withCode(exitUsage, fmt.Errorf("unsupported --format %q", opts.format))
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
