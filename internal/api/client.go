// Package api is the single client for the upstream ledger backend.
//
// It consolidates what used to be several diverging fetch wrappers into one
// versioned surface and owns all transport normalization: transaction type
// casing, amount coercion (number vs decimal string), and date parsing all
// happen here, so the aggregators only ever see canonical domain values.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kakeibo/internal/core"
)

// APIError reports a non-2xx backend response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ErrEmptyResult marks a successful response carrying no usable data,
// e.g. a receipt analysis that extracted zero items.
var ErrEmptyResult = errors.New("backend returned no usable data")

type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a backend client. baseURL includes the /api/v1 prefix.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// Categories fetches the two-level category taxonomy for a user.
func (c *Client) Categories(ctx context.Context, userID string) (core.Taxonomy, error) {
	var dtos []majorCategoryDTO
	path := fmt.Sprintf("/categories/user/%s/all", url.PathEscape(userID))
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	tax := make(core.Taxonomy, 0, len(dtos))
	for _, d := range dtos {
		m, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", d.ID, err)
		}
		tax = append(tax, m)
	}
	return tax, nil
}

// Transactions fetches all transactions of one calendar month.
func (c *Client) Transactions(ctx context.Context, userID string, year, month int) ([]core.Transaction, error) {
	var dtos []transactionDTO
	path := fmt.Sprintf("/transactions/user/%s/%04d%02d", url.PathEscape(userID), year, month)
	if err := c.getJSON(ctx, path, &dtos); err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	txs := make([]core.Transaction, 0, len(dtos))
	for _, d := range dtos {
		t, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", d.ID, err)
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// YearlySummary fetches the backend-precomputed aggregate for one year.
func (c *Client) YearlySummary(ctx context.Context, userID string, year int) (core.YearlySummary, error) {
	var summary core.YearlySummary
	path := fmt.Sprintf("/transactions/summary/%s/%d", url.PathEscape(userID), year)
	if err := c.getJSON(ctx, path, &summary); err != nil {
		return core.YearlySummary{}, fmt.Errorf("fetch yearly summary: %w", err)
	}
	if summary.Year == 0 {
		summary.Year = year
	}
	return summary, nil
}

// TransactionInput is the mutation body shared by create and update.
type TransactionInput struct {
	Type            core.TransactionType `json:"type"`
	MajorCategoryID string               `json:"major_category_id"`
	MinorCategoryID string               `json:"minor_category_id,omitempty"`
	Amount          core.FlexAmount      `json:"amount"`
	Description     string               `json:"description,omitempty"`
	TransactionDate string               `json:"transaction_date"`
}

// CreateTransaction persists a new transaction. Errors always propagate:
// a silent failure here would misrepresent state.
func (c *Client) CreateTransaction(ctx context.Context, input TransactionInput) (core.Transaction, error) {
	var dto transactionDTO
	if err := c.sendJSON(ctx, http.MethodPost, "/transactions/", input, &dto); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	t, err := dto.toDomain()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: decode response: %w", err)
	}
	return t, nil
}

// UpdateTransaction replaces an existing transaction.
func (c *Client) UpdateTransaction(ctx context.Context, id string, input TransactionInput) (core.Transaction, error) {
	var dto transactionDTO
	path := "/transactions/" + url.PathEscape(id)
	if err := c.sendJSON(ctx, http.MethodPut, path, input, &dto); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	t, err := dto.toDomain()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: decode response: %w", id, err)
	}
	return t, nil
}

// DeleteTransaction removes a transaction.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	path := "/transactions/" + url.PathEscape(id)
	if err := c.sendJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// AnalyzeReceipt uploads a receipt image and returns the extracted
// transaction candidates. A successful response with zero items is
// reported as ErrEmptyResult so callers never mistake it for a usable
// extraction.
func (c *Client) AnalyzeReceipt(ctx context.Context, userID, filename string, image io.Reader) ([]core.ReceiptItem, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("analyze receipt: build form: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("analyze receipt: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("analyze receipt: close form: %w", err)
	}

	path := "/image-processing/extract-transaction?user_id=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("analyze receipt: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var dtos []receiptItemDTO
	if err := c.do(req, &dtos); err != nil {
		return nil, fmt.Errorf("analyze receipt: %w", err)
	}
	if len(dtos) == 0 {
		return nil, ErrEmptyResult
	}

	items := make([]core.ReceiptItem, 0, len(dtos))
	for i, d := range dtos {
		item, err := d.toDomain()
		if err != nil {
			return nil, fmt.Errorf("analyze receipt: item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Path:       req.URL.Path,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
