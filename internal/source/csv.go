package source

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kwhalen/projectmap/internal/record"
)

// CSV fetches a shared CSV export in a single unauthenticated request. The
// export format carries no change watermark, so this source always performs
// a full reload.
type CSV struct {
	url    string
	client *http.Client
}

// NewCSV creates a CSV source for the given export URL.
func NewCSV(exportURL string, client *http.Client) *CSV {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CSV{url: exportURL, client: client}
}

func (c *CSV) Incremental() bool { return false }
func (c *CSV) Mode() string      { return ModeCSV }

// Fetch downloads and parses the export. The since watermark is ignored.
func (c *CSV) Fetch(ctx context.Context, _ *time.Time) ([]record.Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []record.Project
	for _, raw := range ParseCSV(string(text)) {
		out = append(out, record.Normalize(raw))
	}
	return out, nil
}

// ParseCSV parses delimited text into raw records keyed by the header row.
//
// The parser tolerates what real shared exports contain: quoted fields with
// embedded commas, doubled-quote escaping, CRLF and LF line endings, and a
// final field running to end of input. Rows with no non-blank cell are
// skipped. A row with more cells than the header is truncated; a row with
// fewer yields empty strings for the missing trailing columns.
func ParseCSV(text string) []record.Raw {
	rows := splitRows(text)
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []record.Raw
	for _, row := range rows[1:] {
		if !hasContent(row) {
			continue
		}
		fields := record.NewFields()
		for i, key := range header {
			val := ""
			if i < len(row) {
				val = strings.TrimSpace(row[i])
			}
			fields.Set(key, val)
		}
		out = append(out, record.Raw{Fields: fields})
	}
	return out
}

// splitRows scans text into rows of cells.
func splitRows(text string) [][]string {
	var (
		rows [][]string
		row  []string
		cell strings.Builder
		inQ  bool
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inQ {
			if ch == '"' {
				if i+1 < len(text) && text[i+1] == '"' {
					cell.WriteByte('"')
					i++
				} else {
					inQ = false
				}
			} else {
				cell.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case '"':
			inQ = true
		case ',':
			row = append(row, cell.String())
			cell.Reset()
		case '\n':
			row = append(row, cell.String())
			cell.Reset()
			rows = append(rows, row)
			row = nil
		case '\r':
			// CRLF: the \n ends the row
		default:
			cell.WriteByte(ch)
		}
	}
	row = append(row, cell.String())
	rows = append(rows, row)
	return rows
}

func hasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}
