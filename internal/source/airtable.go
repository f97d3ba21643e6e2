package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/kwhalen/projectmap/internal/record"
)

const defaultAirtableBaseURL = "https://api.airtable.com/v0"

// airtablePageSize is the fixed page bound for list requests.
const airtablePageSize = 100

// AirtableConfig configures an Airtable personal-access-token source.
type AirtableConfig struct {
	BaseURL string // defaults to the public Airtable API
	BaseID  string
	Table   string
	Token   string
	View    string   // optional saved view
	Fields  []string // optional field projection

	HTTPClient *http.Client
	// PageRate bounds page requests per second; zero means 5/s.
	PageRate rate.Limit
}

// Airtable fetches records page by page, following the opaque continuation
// token each page returns until none is present.
type Airtable struct {
	cfg     AirtableConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewAirtable creates an Airtable source.
func NewAirtable(cfg AirtableConfig) *Airtable {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAirtableBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r := cfg.PageRate
	if r == 0 {
		r = 5
	}
	return &Airtable{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(r, 1),
	}
}

func (a *Airtable) Incremental() bool { return true }
func (a *Airtable) Mode() string      { return ModeAirtable }

type airtableRecord struct {
	ID     string         `json:"id"`
	Fields *record.Fields `json:"fields"`
}

type airtablePage struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

// Fetch pulls every page of the configured table/view. With a since
// watermark it asks the server to filter to records whose last-modified
// time is after the watermark.
func (a *Airtable) Fetch(ctx context.Context, since *time.Time) ([]record.Project, error) {
	var out []record.Project
	offset := ""
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := a.fetchPage(ctx, since, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Records {
			out = append(out, record.Normalize(record.Raw{ID: r.ID, Fields: r.Fields}))
		}
		if page.Offset == "" {
			return out, nil
		}
		offset = page.Offset
	}
}

func (a *Airtable) fetchPage(ctx context.Context, since *time.Time, offset string) (*airtablePage, error) {
	params := url.Values{}
	params.Set("pageSize", fmt.Sprintf("%d", airtablePageSize))
	if a.cfg.View != "" {
		params.Set("view", a.cfg.View)
	}
	for _, f := range a.cfg.Fields {
		params.Add("fields[]", f)
	}
	if offset != "" {
		params.Set("offset", offset)
	}
	if since != nil {
		params.Set("filterByFormula", sinceFormula(*since))
	}

	u := fmt.Sprintf("%s/%s/%s?%s", a.cfg.BaseURL, a.cfg.BaseID, url.PathEscape(a.cfg.Table), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building page request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.Token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var page airtablePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding page: %w", err)
	}
	return &page, nil
}

// sinceFormula builds the server-side "modified after T" filter expression.
func sinceFormula(since time.Time) string {
	iso := since.UTC().Format("2006-01-02T15:04:05.000Z")
	return fmt.Sprintf("IS_AFTER(LAST_MODIFIED_TIME(), DATETIME_PARSE('%s', 'YYYY-MM-DDTHH:mm:ss.SSS[Z]'))", iso)
}
