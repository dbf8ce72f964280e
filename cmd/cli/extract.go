package main

import (
	"errors"
	"sync"

	"github.com/spf13/cobra"

	"xepelin-blog-scraper/internal/ioformats"
	"xepelin-blog-scraper/internal/models"
)

var extractFlags struct {
	input       string
	output      string
	format      string
	concurrency int
}

func init() {
	f := extractCmd.Flags()
	f.StringVarP(&extractFlags.input, "input", "i", "", "input file (csv with 'url' column or ndjson)")
	f.StringVarP(&extractFlags.output, "output", "o", "", "output file (default stdout)")
	f.StringVar(&extractFlags.format, "format", "ndjson", "record format: ndjson or csv")
	f.IntVar(&extractFlags.concurrency, "concurrency", 4, "posts fetched in parallel")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extracts post fields from a list of post URLs over plain HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if extractFlags.input == "" {
			return errors.New("missing --input")
		}
		format, err := ioformats.ParseFormat(extractFlags.format)
		if err != nil {
			return err
		}
		urls, err := ioformats.ReadURLs(extractFlags.input)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := build(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		records := make([]models.PostRecord, len(urls))
		sem := make(chan struct{}, max(1, extractFlags.concurrency))
		var wg sync.WaitGroup
		for i, u := range urls {
			sem <- struct{}{} // acquire
			wg.Add(1)
			go func() {
				defer func() { <-sem; wg.Done() }()
				rec, err := a.Parser.ExtractFrom(ctx, a.HTTP, u)
				if err != nil {
					a.Log.Warn("extract failed, using url fallback", "url", u, "error", err)
				}
				records[i] = rec
			}()
		}
		wg.Wait()

		out, closeOut, err := output(extractFlags.output)
		if err != nil {
			return err
		}
		if err := ioformats.WriteRecords(out, format, records); err != nil {
			closeOut()
			return err
		}
		return closeOut()
	},
}
