// Package sheets pulls match rows and seeds from a Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/pable/versus-overlay/internal/model"
)

// ErrNoRows is returned when the configured range holds no data.
var ErrNoRows = errors.New("no data found")

// Fetcher is the source of raw match rows and seeds.
type Fetcher interface {
	FetchRows(ctx context.Context) ([]model.Row, error)
	FetchSeeds(ctx context.Context) (model.Seeds, error)
}

// Client reads ranges from one spreadsheet.
type Client struct {
	service       *sheets.Service
	spreadsheetID string
	matchRange    string
	seedsRange    string
}

// NewClient creates a Client over an authorized HTTP client.
func NewClient(ctx context.Context, httpClient *http.Client, spreadsheet, matchRange, seedsRange string) (*Client, error) {
	return NewClientWithOptions(ctx, spreadsheet, matchRange, seedsRange, option.WithHTTPClient(httpClient))
}

// NewClientWithOptions creates a Client with explicit API options.
func NewClientWithOptions(ctx context.Context, spreadsheet, matchRange, seedsRange string, opts ...option.ClientOption) (*Client, error) {
	id, err := ExtractSpreadsheetID(spreadsheet)
	if err != nil {
		return nil, err
	}
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{
		service:       srv,
		spreadsheetID: id,
		matchRange:    matchRange,
		seedsRange:    seedsRange,
	}, nil
}

// SpreadsheetID returns the resolved spreadsheet id.
func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

var sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
var sheetIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)

// ExtractSpreadsheetID accepts either a bare spreadsheet id or a Google
// Sheets URL and returns the id.
func ExtractSpreadsheetID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := sheetURLPattern.FindStringSubmatch(s); len(m) == 2 {
		return m[1], nil
	}
	if s != "" && sheetIDPattern.MatchString(s) {
		return s, nil
	}
	return "", fmt.Errorf("could not extract spreadsheet ID from %q", s)
}

// FetchRows reads the match range and converts every sheet row to a model.Row.
func (c *Client) FetchRows(ctx context.Context) ([]model.Row, error) {
	values, err := c.get(ctx, c.matchRange)
	if err != nil {
		return nil, err
	}
	return RowsFromValues(values), nil
}

// FetchSeeds reads the seeds range as (player, seed) pairs. It returns an
// empty map when no seeds range is configured.
func (c *Client) FetchSeeds(ctx context.Context) (model.Seeds, error) {
	seeds := make(model.Seeds)
	if c.seedsRange == "" {
		return seeds, nil
	}
	values, err := c.get(ctx, c.seedsRange)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if len(v) < 2 {
			continue
		}
		player, seed := cellString(v[0]), cellString(v[1])
		if player == "" || seed == "" {
			continue
		}
		seeds[player] = seed
	}
	return seeds, nil
}

func (c *Client) get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rng, err)
	}
	if len(resp.Values) == 0 {
		return nil, fmt.Errorf("%s: %w", rng, ErrNoRows)
	}
	return resp.Values, nil
}

// RowsFromValues converts API cell values to rows. Short rows are padded.
func RowsFromValues(values [][]interface{}) []model.Row {
	rows := make([]model.Row, 0, len(values))
	for _, v := range values {
		cells := make([]string, len(v))
		for i, cell := range v {
			cells[i] = cellString(cell)
		}
		rows = append(rows, model.NewRow(cells...))
	}
	return rows
}

func cellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
