package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"xepelin-blog-scraper/internal/ioformats"
	"xepelin-blog-scraper/internal/models"
)

var scrapeFlags struct {
	all    bool
	output string
	format string
	store  bool
	target string
}

func init() {
	f := scrapeCmd.Flags()
	f.BoolVar(&scrapeFlags.all, "all", false, "scrape every category")
	f.StringVarP(&scrapeFlags.output, "output", "o", "", "write records to this file (default stdout)")
	f.StringVar(&scrapeFlags.format, "format", "ndjson", "record format: ndjson or csv")
	f.BoolVar(&scrapeFlags.store, "store", false, "also write the result to the configured store")
	f.StringVar(&scrapeFlags.target, "target", "", "store target to overwrite (default store.target)")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [category]",
	Short: "Scrapes one category, or all of them with --all, and prints the posts.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapeFlags.all == (len(args) == 1) {
			return errors.New("give exactly one of a category or --all")
		}
		format, err := ioformats.ParseFormat(scrapeFlags.format)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := build(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		if !scrapeFlags.all {
			if _, err := a.Catalog.Lookup(args[0]); err != nil {
				if name, ok := a.Catalog.Suggest(args[0]); ok {
					return fmt.Errorf("%w, did you mean %q?", err, name)
				}
				return fmt.Errorf("%w (available: %v)", err, a.Catalog.Names())
			}
		}

		b, err := a.Browsers(ctx)
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		defer b.Close()

		var result *models.CategoryResult
		if scrapeFlags.all {
			result, _ = a.Pipeline.ScrapeAll(ctx, b)
		} else {
			records, err := a.Pipeline.ScrapeCategory(ctx, b, args[0])
			if err != nil {
				return err
			}
			result = models.NewCategoryResult()
			result.Set(args[0], records)
		}

		out, closeOut, err := output(scrapeFlags.output)
		if err != nil {
			return err
		}
		if err := ioformats.WriteResult(out, format, result); err != nil {
			closeOut()
			return err
		}
		if err := closeOut(); err != nil {
			return err
		}

		storeID := ""
		if scrapeFlags.store && result.Total() > 0 {
			st, err := a.Store(ctx)
			if err != nil {
				return err
			}
			target := scrapeFlags.target
			if target == "" {
				target = a.Config.Store.Target
			}
			if storeID, err = st.Write(ctx, result, target); err != nil {
				return fmt.Errorf("write store: %w", err)
			}
		}

		summary(result, storeID)
		return nil
	},
}

// summary goes to stderr so stdout stays a clean record stream.
func summary(result *models.CategoryResult, storeID string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stderr)
	t.AppendHeader(table.Row{"Category", "Posts", "Incomplete"})
	for _, c := range result.Categories() {
		posts := result.Posts(c)
		blank := 0
		for _, p := range posts {
			if p.Blank() {
				blank++
			}
		}
		t.AppendRow(table.Row{c, len(posts), blank})
	}
	t.AppendFooter(table.Row{"Total", result.Total(), ""})
	if storeID != "" {
		t.SetCaption("stored at %s", storeID)
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
