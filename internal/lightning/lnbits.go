package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// LNbitsClient talks to an LNbits instance over its REST API using an
// invoice/read key. LNbits reports invoice amounts in millisats.
type LNbitsClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewLNbitsClient builds a client for the given endpoint and API key.
func NewLNbitsClient(baseURL, apiKey string, timeout time.Duration) (*LNbitsClient, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("lnbits: endpoint and api key required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LNbitsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type lnbitsCreateRequest struct {
	Out    bool   `json:"out"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

type lnbitsCreateResponse struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
	// Newer LNbits versions use bolt11 instead of payment_request.
	Bolt11 string `json:"bolt11"`
}

type lnbitsStatusResponse struct {
	Paid    bool `json:"paid"`
	Details struct {
		Amount int64 `json:"amount"` // msat
	} `json:"details"`
}

// CreateInvoice mints an invoice for amountSats.
func (c *LNbitsClient) CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error) {
	body, err := json.Marshal(lnbitsCreateRequest{Out: false, Amount: amountSats, Memo: memo})
	if err != nil {
		return Invoice{}, fmt.Errorf("lnbits: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return Invoice{}, fmt.Errorf("lnbits: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	var resp lnbitsCreateResponse
	err = c.do(req, &resp)
	if err != nil {
		return Invoice{}, err
	}

	pr := resp.PaymentRequest
	if pr == "" {
		pr = resp.Bolt11
	}
	if pr == "" || resp.PaymentHash == "" {
		return Invoice{}, fmt.Errorf("%w: lnbits returned empty invoice fields", ErrProvider)
	}

	return Invoice{PaymentRequest: pr, PaymentHash: resp.PaymentHash}, nil
}

// InvoiceStatus checks whether the invoice is paid. The reported
// amount is in msat, as delivered by LNbits.
func (c *LNbitsClient) InvoiceStatus(ctx context.Context, paymentHash string) (InvoiceStatus, error) {
	if paymentHash == "" {
		return InvoiceStatus{}, fmt.Errorf("%w: empty payment hash", ErrProvider)
	}

	u := c.baseURL + "/api/v1/payments/" + url.PathEscape(paymentHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return InvoiceStatus{}, fmt.Errorf("lnbits: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	var resp lnbitsStatusResponse
	err = c.do(req, &resp)
	if err != nil {
		return InvoiceStatus{}, err
	}

	amount := resp.Details.Amount
	if amount < 0 {
		amount = -amount // outgoing payments carry a negative sign
	}

	return InvoiceStatus{Paid: resp.Paid, PaidAmount: amount}, nil
}

func (c *LNbitsClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: lnbits status %d", ErrProvider, resp.StatusCode)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}

	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
