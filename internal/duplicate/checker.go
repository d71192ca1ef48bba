package duplicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// CheckRequest summarizes every surviving batch of a file for the external
// duplicate service.
type CheckRequest struct {
	UserID          int64              `json:"user_id"`
	ResourceIDs     []string           `json:"resource_ids"`
	FeatureIDs      []string           `json:"feature_ids"`
	FileReferenceID string             `json:"file_reference_id"`
	Instructions    []CheckInstruction `json:"instructions"`
}

type CheckInstruction struct {
	BankReferenceID string             `json:"bank_reference_id"`
	DebtorAccount   string             `json:"debtor_account"`
	Transactions    []CheckTransaction `json:"transactions"`
}

type CheckTransaction struct {
	ChildBankReferenceID string          `json:"child_bank_reference_id"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	ValueDate            time.Time       `json:"value_date"`
	CustomerReference    string          `json:"customer_reference,omitempty"`
}

type CheckResponse struct {
	IsFileReject bool                `json:"is_file_reject"`
	Instructions []InstructionResult `json:"instructions"`
}

type InstructionResult struct {
	BankReferenceID string              `json:"bank_reference_id"`
	Transactions    []TransactionResult `json:"transactions"`
}

type TransactionResult struct {
	ChildBankReferenceID string `json:"child_bank_reference_id"`
	IsDuplicate          bool   `json:"is_duplicate"`
}

// Checker asks a prior-transaction store whether instructions were already
// submitted.
type Checker interface {
	Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error)
}

// HTTPChecker calls the duplicate service over HTTP. The client timeout is
// the only deadline on the call; callers treat any error as "no duplicates
// found".
type HTTPChecker struct {
	baseURL string
	client  *http.Client
}

func NewHTTPChecker(baseURL string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPChecker) Check(ctx context.Context, req *CheckRequest) (*CheckResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create check request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call duplicate service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("duplicate service returned %d: %s", resp.StatusCode, b)
	}

	var out CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode check response: %w", err)
	}
	return &out, nil
}
