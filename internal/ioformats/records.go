package ioformats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/internal/store"
)

type Format string

const (
	NDJSON Format = "ndjson"
	CSV    Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case NDJSON, CSV:
		return f, nil
	case "jsonl":
		return NDJSON, nil
	}
	return "", fmt.Errorf("unsupported format %q (want ndjson or csv)", s)
}

// WriteRecords writes records in the given format. CSV output uses the same
// columns as the store tabs.
func WriteRecords(w io.Writer, f Format, records []models.PostRecord) error {
	switch f {
	case CSV:
		return writeCSV(w, records)
	case NDJSON, "":
		return writeNDJSON(w, records)
	}
	return fmt.Errorf("unsupported format %q", f)
}

// WriteResult flattens a CategoryResult in category order.
func WriteResult(w io.Writer, f Format, result *models.CategoryResult) error {
	var all []models.PostRecord
	for _, cat := range result.Categories() {
		all = append(all, result.Posts(cat)...)
	}
	return WriteRecords(w, f, all)
}

func writeNDJSON(w io.Writer, records []models.PostRecord) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, records []models.PostRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(store.Headers); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(store.Row(rec)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
