package store

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"xepelin-blog-scraper/internal/models"
	"xepelin-blog-scraper/pkg/logger"
)

var spreadsheetIDRe = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// Sheets writes each category to a tab of a Google spreadsheet. New
// spreadsheets are shared read-only with anyone holding the link.
type Sheets struct {
	sheets *sheets.Service
	drive  *drive.Service
	log    *logger.Logger
	now    func() time.Time
}

// NewSheets authorizes with service account credentials given either as a
// file path or as inline JSON.
func NewSheets(ctx context.Context, credentials string, log *logger.Logger) (*Sheets, error) {
	if strings.TrimSpace(credentials) == "" {
		return nil, fmt.Errorf("%w: no google credentials provided", ErrInvalidTarget)
	}
	cred := option.WithCredentialsJSON([]byte(credentials))
	if _, err := os.Stat(credentials); err == nil {
		cred = option.WithCredentialsFile(credentials)
	}
	scopes := option.WithScopes(sheets.SpreadsheetsScope, drive.DriveScope)

	ss, err := sheets.NewService(ctx, cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	ds, err := drive.NewService(ctx, cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	return &Sheets{sheets: ss, drive: ds, log: log, now: time.Now}, nil
}

// SpreadsheetID accepts a spreadsheet URL or a bare id.
func SpreadsheetID(target string) (string, error) {
	if m := spreadsheetIDRe.FindStringSubmatch(target); m != nil {
		return m[1], nil
	}
	if target != "" && !strings.ContainsAny(target, "/: ") {
		return target, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
}

// CleanURL drops the /edit suffix Sheets appends to spreadsheet URLs.
func CleanURL(u string) string {
	if i := strings.Index(u, "/edit"); i >= 0 {
		return u[:i]
	}
	return u
}

func (s *Sheets) create(ctx context.Context, result *models.CategoryResult) (string, error) {
	title := "Xepelin Blog - " + s.now().Format("2006-01-02 15:04:05")
	if result.Len() > 1 {
		title = "Xepelin Blog - All Categories - " + s.now().Format("2006-01-02")
	}
	created, err := s.sheets.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create spreadsheet: %w", err)
	}
	if _, err := s.drive.Permissions.Create(created.SpreadsheetId, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("share spreadsheet: %w", err)
	}
	s.log.Info("created spreadsheet", "id", created.SpreadsheetId)
	return created.SpreadsheetId, nil
}

func (s *Sheets) Write(ctx context.Context, result *models.CategoryResult, target string) (string, error) {
	var (
		id  string
		err error
	)
	if target == "" {
		id, err = s.create(ctx, result)
	} else {
		id, err = SpreadsheetID(target)
	}
	if err != nil {
		return "", err
	}

	doc, err := s.sheets.Spreadsheets.Get(id).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("open spreadsheet %s: %w", id, err)
	}
	existing := map[string]int64{}
	for _, sh := range doc.Sheets {
		existing[sh.Properties.Title] = sh.Properties.SheetId
	}

	writes, keep := plan(result)
	for _, t := range writes {
		sheetID, ok := existing[t.name]
		if ok {
			if _, err := s.sheets.Spreadsheets.Values.Clear(id, quoteRange(t.name), &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
				return "", fmt.Errorf("clear %s: %w", t.name, err)
			}
		} else {
			sheetID, err = s.addSheet(ctx, id, t.name, len(t.rows)+10)
			if err != nil {
				return "", err
			}
			existing[t.name] = sheetID
		}
		if err := s.fill(ctx, id, sheetID, t); err != nil {
			return "", err
		}
		s.log.Info("wrote tab", "tab", t.name, "posts", len(t.rows))
	}

	s.prune(ctx, id, existing, keep)
	return CleanURL(doc.SpreadsheetUrl), nil
}

func (s *Sheets) addSheet(ctx context.Context, id, title string, rows int) (int64, error) {
	resp, err := s.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{
				Title:          title,
				GridProperties: &sheets.GridProperties{RowCount: int64(rows), ColumnCount: 10},
			}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add tab %s: %w", title, err)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (s *Sheets) fill(ctx context.Context, id string, sheetID int64, t tab) error {
	values := make([][]interface{}, 0, len(t.rows)+1)
	values = append(values, toInterfaces(Headers))
	for _, r := range t.rows {
		values = append(values, toInterfaces(r))
	}
	if _, err := s.sheets.Spreadsheets.Values.Update(id, quoteRange(t.name)+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write %s: %w", t.name, err)
	}

	cols := int64(len(Headers))
	_, err := s.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1, StartColumnIndex: 0, EndColumnIndex: cols},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					TextFormat:      &sheets.TextFormat{Bold: true},
					BackgroundColor: &sheets.Color{Red: 0.2, Green: 0.6, Blue: 0.86},
				}},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			}},
			{AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", StartIndex: 0, EndIndex: cols},
			}},
		},
	}).Context(ctx).Do()
	if err != nil {
		// cosmetic only
		s.log.Warn("format tab failed", "tab", t.name, "error", err)
	}
	return nil
}

// prune deletes tabs outside keep. A spreadsheet must keep one sheet, so
// the last one is left in place.
func (s *Sheets) prune(ctx context.Context, id string, existing map[string]int64, keep []string) {
	keepSet := map[string]bool{}
	for _, k := range keep {
		keepSet[k] = true
	}
	remaining := len(existing)
	for title, sheetID := range existing {
		if keepSet[title] {
			continue
		}
		if remaining <= 1 {
			break
		}
		_, err := s.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{DeleteSheet: &sheets.DeleteSheetRequest{SheetId: sheetID}}},
		}).Context(ctx).Do()
		if err != nil {
			s.log.Warn("could not delete old tab", "tab", title, "error", err)
			continue
		}
		remaining--
		s.log.Info("deleted old tab", "tab", title)
	}
}

func quoteRange(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func toInterfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

func (s *Sheets) Close() error { return nil }
