package finmind

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

const defaultBaseURL = "https://api.finmindtrade.com/api/v4/data"

// Dataset names on the FinMind v4 API.
const (
	datasetMonthRevenue = "TaiwanStockMonthRevenue"
	datasetStatements   = "TaiwanStockFinancialStatements"
)

// Client calls the FinMind open data API. All requests flow through one
// rate limiter; the free tier rejects bursts well below its hourly quota.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	token      string
	baseURL    string
	maxRetries int
	log        zerolog.Logger
}

// NewClient creates a FinMind client. An empty token uses the anonymous
// quota.
func NewClient(token string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(150*time.Millisecond), 3),
		token:      token,
		baseURL:    defaultBaseURL,
		maxRetries: 3,
		log:        log.With().Str("component", "finmind.client").Logger(),
	}
}

// WithBaseURL points the client at a different endpoint, used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

type apiResponse struct {
	Msg    string          `json:"msg"`
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, dataset, stockID, startDate string, out interface{}) error {
	params := url.Values{}
	params.Set("dataset", dataset)
	params.Set("data_id", stockID)
	params.Set("start_date", startDate)
	if c.token != "" {
		params.Set("token", c.token)
	}
	endpoint := c.baseURL + "?" + params.Encode()

	var lastErr error
	delay := time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().
				Str("dataset", dataset).
				Int("attempt", attempt).
				Msg("retrying finmind request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = c.fetch(ctx, endpoint, out)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("finmind %s for %s: %w", dataset, stockID, lastErr)
}

func (c *Client) fetch(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if body.Status != 200 {
		return fmt.Errorf("api status %d: %s", body.Status, body.Msg)
	}
	return json.Unmarshal(body.Data, out)
}

type monthRevenueRow struct {
	Date         string  `json:"date"`
	StockID      string  `json:"stock_id"`
	Revenue      float64 `json:"revenue"`
	RevenueYear  int     `json:"revenue_year"`
	RevenueMonth int     `json:"revenue_month"`
}

// RevenueFiling is one monthly revenue filing.
type RevenueFiling struct {
	Period  contracts.Period
	Revenue float64
}

// MonthlyRevenue fetches revenue filings since the given month.
func (c *Client) MonthlyRevenue(ctx context.Context, stockID string, since contracts.Period) ([]RevenueFiling, error) {
	var rows []monthRevenueRow
	if err := c.get(ctx, datasetMonthRevenue, stockID, startDate(since), &rows); err != nil {
		return nil, err
	}
	out := make([]RevenueFiling, 0, len(rows))
	for _, row := range rows {
		if row.RevenueYear == 0 || row.RevenueMonth < 1 || row.RevenueMonth > 12 {
			continue
		}
		out = append(out, RevenueFiling{
			Period:  contracts.NewMonth(row.RevenueYear, row.RevenueMonth),
			Revenue: row.Revenue,
		})
	}
	return out, nil
}

type statementRow struct {
	Date    string  `json:"date"`
	StockID string  `json:"stock_id"`
	Type    string  `json:"type"`
	Value   float64 `json:"value"`
}

// StatementFiling is one quarterly statement reduced to the fields the
// forecaster consumes. Margins are percentages of revenue; nil when the
// underlying line items were missing.
type StatementFiling struct {
	Period          contracts.Period
	EPS             *float64
	GrossMargin     *float64
	OperatingMargin *float64
	NetMargin       *float64
}

// QuarterlyStatements fetches statements since the given quarter and reduces
// the line items into per-quarter filings, oldest first.
func (c *Client) QuarterlyStatements(ctx context.Context, stockID string, since contracts.Period) ([]StatementFiling, error) {
	var rows []statementRow
	if err := c.get(ctx, datasetStatements, stockID, startDate(since), &rows); err != nil {
		return nil, err
	}

	type lineItems struct {
		eps, revenue, gross, operating, net *float64
	}
	byQuarter := map[contracts.Period]*lineItems{}
	var order []contracts.Period
	for _, row := range rows {
		period, ok := quarterOfDate(row.Date)
		if !ok {
			continue
		}
		items, seen := byQuarter[period]
		if !seen {
			items = &lineItems{}
			byQuarter[period] = items
			order = append(order, period)
		}
		v := row.Value
		switch row.Type {
		case "EPS":
			items.eps = &v
		case "Revenue":
			items.revenue = &v
		case "GrossProfit":
			items.gross = &v
		case "OperatingIncome":
			items.operating = &v
		case "IncomeAfterTaxes":
			items.net = &v
		}
	}

	out := make([]StatementFiling, 0, len(order))
	for _, period := range order {
		items := byQuarter[period]
		filing := StatementFiling{Period: period, EPS: items.eps}
		if items.revenue != nil && *items.revenue != 0 {
			filing.GrossMargin = marginOf(items.gross, *items.revenue)
			filing.OperatingMargin = marginOf(items.operating, *items.revenue)
			filing.NetMargin = marginOf(items.net, *items.revenue)
		}
		out = append(out, filing)
	}
	return out, nil
}

func marginOf(amount *float64, revenue float64) *float64 {
	if amount == nil {
		return nil
	}
	m := *amount / revenue * 100
	return &m
}

// startDate is the first calendar day covered by a period.
func startDate(p contracts.Period) string {
	month := p.Num
	if p.Granularity == contracts.Quarterly {
		month = (p.Num-1)*3 + 1
	}
	return time.Date(p.Year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// quarterOfDate maps a statement date like 2024-03-31 onto its quarter.
func quarterOfDate(date string) (contracts.Period, bool) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return contracts.Period{}, false
	}
	return contracts.NewQuarter(t.Year(), (int(t.Month())-1)/3+1), true
}
