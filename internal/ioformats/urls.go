// Package ioformats reads URL lists and writes scraped records for the CLI.
package ioformats

import (
	"bufio"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

var (
	ErrNoURLs        = errors.New("no urls found")
	ErrMissingURLCol = errors.New("csv must contain a 'url' header column")
)

// ReadURLs loads post URLs from a CSV file with a "url" header or from
// NDJSON. Unknown extensions try CSV first. Duplicates are dropped, first
// occurrence wins.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(f)
	case ".ndjson", ".jsonl":
		return ReadNDJSON(f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if urls, err := ReadCSV(strings.NewReader(string(data))); err == nil {
		return urls, nil
	}
	return ReadNDJSON(strings.NewReader(string(data)))
}

func ReadCSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrNoURLs
	}
	if err != nil {
		return nil, err
	}

	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), "url") {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, ErrMissingURLCol
	}

	var urls uniq
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if col < len(row) {
			urls.add(row[col])
		}
	}
	return urls.result()
}

// ReadNDJSON accepts one URL per line, either bare or as {"url": "..."}.
// Object lines are decoded leniently.
func ReadNDJSON(r io.Reader) ([]string, error) {
	var urls uniq
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var obj struct {
				URL string `json:"url"`
			}
			if err := json5.Unmarshal([]byte(line), &obj); err != nil {
				return nil, err
			}
			urls.add(obj.URL)
			continue
		}
		urls.add(strings.Trim(line, `"`))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return urls.result()
}

type uniq struct {
	seen map[string]struct{}
	list []string
}

func (u *uniq) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if u.seen == nil {
		u.seen = map[string]struct{}{}
	}
	if _, dup := u.seen[s]; dup {
		return
	}
	u.seen[s] = struct{}{}
	u.list = append(u.list, s)
}

func (u *uniq) result() ([]string, error) {
	if len(u.list) == 0 {
		return nil, ErrNoURLs
	}
	return u.list, nil
}
