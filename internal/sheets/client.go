package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/medhubvn/stocksheet/internal/config"
	"github.com/medhubvn/stocksheet/internal/models"
)

// Client implements Adapter on top of the Google Sheets API. One client
// serves all configured sources; each source maps to one tab of the
// configured spreadsheet.
type Client struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	tabs          map[string]string // source name -> tab title
	timeout       time.Duration
}

// NewClient builds a Sheets API client from service-account credentials.
func NewClient(ctx context.Context, cfg config.SheetsConfig, timeout time.Duration) (*Client, error) {
	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	tabs := make(map[string]string, len(cfg.Sources))
	for _, src := range cfg.Sources {
		tabs[src.Name] = src.SheetName
	}

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		tabs:          tabs,
		timeout:       timeout,
	}, nil
}

func (c *Client) tab(source string) (string, error) {
	title, ok := c.tabs[source]
	if !ok {
		return "", fmt.Errorf("unknown source %q", source)
	}
	return title, nil
}

// ReadRange fetches a rectangular range from a source tab.
func (c *Client) ReadRange(ctx context.Context, source, rng string) ([][]string, error) {
	title, err := c.tab(source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, title+"!"+rng).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s!%s: %v", ErrRemoteUnavailable, title, rng, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprintf("%v", cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRange overwrites a rectangular range on a source tab.
func (c *Client) WriteRange(ctx context.Context, source, rng string, rows [][]string) error {
	title, err := c.tab(source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.svc.Spreadsheets.Values.
		Update(c.spreadsheetID, title+"!"+rng, valueRange(rows)).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: write %s!%s: %v", ErrRemoteUnavailable, title, rng, err)
	}
	return nil
}

// AppendRows appends rows after the last data row and returns the 1-based
// row number of the first appended row, parsed from the updated range.
func (c *Client) AppendRows(ctx context.Context, source string, rows [][]string) (int, error) {
	title, err := c.tab(source)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, title+"!"+DataRange, valueRange(rows)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%w: append to %s: %v", ErrRemoteUnavailable, title, err)
	}

	row, err := firstRowOfRange(resp.Updates.UpdatedRange)
	if err != nil {
		// The write landed but its position is unknown; callers must not
		// fabricate a record id from row 0.
		return 0, fmt.Errorf("append to %s: cannot locate appended row in range %q: %v", title, resp.Updates.UpdatedRange, err)
	}
	return row, nil
}

// DeleteRows removes physical rows [startIndex, endIndex) from a sheet.
func (c *Client) DeleteRows(ctx context.Context, source string, sheetID int64, startIndex, endIndex int64) error {
	title, err := c.tab(source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			DeleteDimension: &sheetsapi.DeleteDimensionRequest{
				Range: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: startIndex,
					EndIndex:   endIndex,
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: delete rows %d-%d on %s: %v", ErrRemoteUnavailable, startIndex, endIndex, title, err)
	}
	return nil
}

// GetMetadata resolves the physical sheet id of a source tab.
func (c *Client) GetMetadata(ctx context.Context, source string) (*Metadata, error) {
	title, err := c.tab(source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: metadata for %s: %v", ErrRemoteUnavailable, title, err)
	}

	for _, sh := range resp.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return &Metadata{SheetID: sh.Properties.SheetId, Title: title}, nil
		}
	}
	return nil, fmt.Errorf("sheet tab %q not found in spreadsheet", title)
}

func valueRange(rows [][]string) *sheetsapi.ValueRange {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}
	return &sheetsapi.ValueRange{Values: values}
}

// firstRowOfRange extracts the starting row number from an A1 range like
// "Kho1!A12:N12".
func firstRowOfRange(rng string) (int, error) {
	if idx := strings.Index(rng, "!"); idx >= 0 {
		rng = rng[idx+1:]
	}
	if idx := strings.Index(rng, ":"); idx >= 0 {
		rng = rng[:idx]
	}
	digits := strings.TrimLeftFunc(rng, func(r rune) bool {
		return r < '0' || r > '9'
	})
	if digits == "" {
		return 0, fmt.Errorf("no row number in range %q", rng)
	}
	return strconv.Atoi(digits)
}

// Column layout constants shared by the mapper and the sync core.
// Business fields occupy A..K; bookkeeping (updated at, updated by, version)
// trails in L..N.
var (
	lastBusinessCol    = columnLetter(len(models.FieldOrder))     // "K"
	lastBookkeepingCol = columnLetter(len(models.FieldOrder) + 3) // "N"

	// DataRange covers business columns of all data rows.
	DataRange = "A1:" + lastBusinessCol

	// FullRange covers business plus bookkeeping columns.
	FullRange = "A1:" + lastBookkeepingCol
)

// RowRange returns the A1 range of one full row including bookkeeping.
func RowRange(row int) string {
	return fmt.Sprintf("A%d:%s%d", row, lastBookkeepingCol, row)
}

// columnLetter converts a 1-based column number to its A1 letter.
func columnLetter(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+n%26)) + s
		n /= 26
	}
	return s
}
