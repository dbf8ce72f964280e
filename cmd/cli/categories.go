package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Prints the blog categories in scrape order.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close(cmd.Context())

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Category", "Slug", "Listing"})
		for _, c := range a.Catalog.Categories() {
			t.AppendRow(table.Row{c.Name, c.Slug, a.Catalog.ListingURL(c)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
