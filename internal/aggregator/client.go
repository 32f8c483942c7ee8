package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avolkov/finsync/internal/syncer"
	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "2006-01-02"
	defaultTimeout = 60 * time.Second
)

// Client fetches raw bank transactions from the external banking-data
// aggregator over HTTP. It implements syncer.Fetcher.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates an aggregator client for the given API base URL and
// bearer token. A trailing slash on the base URL is tolerated.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// transactionPayload mirrors the aggregator's JSON response entry.
type transactionPayload struct {
	TranDate     string `json:"tran_date"`     // YYYY-MM-DD
	TranTime     string `json:"tran_time"`     // HH:MM:SS
	Withdrawal   string `json:"wdraw_amt"`     // debit amount
	Deposit      string `json:"deposit_amt"`   // credit amount
	AfterBalance string `json:"after_bal_amt"` // post-transaction balance
	Description  string `json:"print_content"` // counterparty free text
}

type fetchResponse struct {
	Transactions []transactionPayload `json:"res_list"`
}

// Fetch implements syncer.Fetcher. It calls the aggregator's transaction
// list endpoint for one account and date window. Any transport or
// non-2xx failure is returned as an error so the pipeline aborts rather
// than persisting a silently empty result.
func (c *Client) Fetch(ctx context.Context, memberID string, req syncer.FetchRequest) ([]syncer.RawTransaction, error) {
	endpoint, err := url.Parse(c.baseURL + "/v2.0/banks/transactions")
	if err != nil {
		return nil, fmt.Errorf("Fetch: parsing endpoint: %w", err)
	}

	q := endpoint.Query()
	q.Set("member_id", memberID)
	q.Set("account_num", req.AccountNumber)
	q.Set("from_date", req.StartDate.Format(dateLayout))
	q.Set("to_date", req.EndDate.Format(dateLayout))
	q.Set("order_by", req.OrderBy)
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("Fetch: building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Fetch: calling aggregator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Fetch: aggregator returned %d: %s", resp.StatusCode, string(body))
	}

	var payload fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("Fetch: decoding response: %w", err)
	}

	raws := make([]syncer.RawTransaction, 0, len(payload.Transactions))
	for _, tx := range payload.Transactions {
		raw, err := toRawTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("Fetch: malformed transaction: %w", err)
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func toRawTransaction(tx transactionPayload) (syncer.RawTransaction, error) {
	date, err := time.Parse(dateLayout, tx.TranDate)
	if err != nil {
		return syncer.RawTransaction{}, fmt.Errorf("parsing date %q: %w", tx.TranDate, err)
	}

	debit, err := parseAmount(tx.Withdrawal)
	if err != nil {
		return syncer.RawTransaction{}, fmt.Errorf("parsing debit %q: %w", tx.Withdrawal, err)
	}
	credit, err := parseAmount(tx.Deposit)
	if err != nil {
		return syncer.RawTransaction{}, fmt.Errorf("parsing credit %q: %w", tx.Deposit, err)
	}
	balance, err := parseAmount(tx.AfterBalance)
	if err != nil {
		return syncer.RawTransaction{}, fmt.Errorf("parsing balance %q: %w", tx.AfterBalance, err)
	}

	return syncer.RawTransaction{
		Date:         date,
		Time:         tx.TranTime,
		Debit:        debit,
		Credit:       credit,
		BalanceAfter: balance,
		Description:  tx.Description,
	}, nil
}

// parseAmount treats an empty amount field as zero; the aggregator omits
// the unused side of a debit/credit pair.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// Ensure Client implements the syncer.Fetcher interface.
var _ syncer.Fetcher = (*Client)(nil)
