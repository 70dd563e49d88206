// Package chainindex is the REST client for the chain-index service backing
// the ledger query surface: UTXO resolution by reference, address, and unit,
// plus transaction submission.
package chainindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// Client talks to a chain-index HTTP API.
type Client struct {
	baseURL    string
	projectKey string
	httpClient *http.Client
}

// New creates a chain-index client. projectKey, when non-empty, is sent as
// the api key header on every request.
func New(baseURL, projectKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		projectKey: projectKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// UtxoByReference resolves a single position by its out ref.
func (c *Client) UtxoByReference(ctx context.Context, ref domain.OutRef) (*domain.UTXO, error) {
	path := fmt.Sprintf("/txs/%s/utxos/%d", url.PathEscape(ref.TxHash), ref.Index)

	var u apiUtxo
	if err := c.getJSON(ctx, path, &u); err != nil {
		return nil, fmt.Errorf("chainindex: utxo %s: %w", ref, err)
	}
	out, err := u.toDomain()
	if err != nil {
		return nil, fmt.Errorf("chainindex: utxo %s: %w", ref, err)
	}
	return &out, nil
}

// UtxosAtAddressWithUnit returns the unspent positions at address that hold
// unit. Address matching is by payment credential.
func (c *Client) UtxosAtAddressWithUnit(ctx context.Context, address, unit string) ([]domain.UTXO, error) {
	path := fmt.Sprintf("/addresses/%s/utxos/%s", url.PathEscape(address), url.PathEscape(unit))
	return c.listUtxos(ctx, path)
}

// UtxosAtAddress returns every unspent position at address.
func (c *Client) UtxosAtAddress(ctx context.Context, address string) ([]domain.UTXO, error) {
	path := fmt.Sprintf("/addresses/%s/utxos", url.PathEscape(address))
	return c.listUtxos(ctx, path)
}

// UtxoByUnit resolves the unique position currently holding unit. The chain
// index answers 404 when the unit has no holder, which surfaces as
// domain.ErrNoMatchingUtxo.
func (c *Client) UtxoByUnit(ctx context.Context, unit string) (*domain.UTXO, error) {
	path := fmt.Sprintf("/assets/%s/utxo", url.PathEscape(unit))

	var u apiUtxo
	if err := c.getJSON(ctx, path, &u); err != nil {
		return nil, fmt.Errorf("chainindex: utxo by unit %s: %w", unit, err)
	}
	out, err := u.toDomain()
	if err != nil {
		return nil, fmt.Errorf("chainindex: utxo by unit %s: %w", unit, err)
	}
	return &out, nil
}

// Submit hands a transaction plan to the builder service, which balances,
// signs with the operator wallet, and submits it. Rejections surface as
// domain.ErrSubmission and are terminal; the caller refreshes UTXO state and
// decides whether to rebuild.
func (c *Client) Submit(ctx context.Context, plan *domain.TxPlan) (string, error) {
	body, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("chainindex: marshal plan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx/build-submit", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("chainindex: submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chainindex: submit: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("chainindex: read submit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return "", fmt.Errorf("chainindex: submit rejected: %s: %w", apiErr.Message, domain.ErrSubmission)
		}
		return "", fmt.Errorf("chainindex: submit rejected with status %d: %w", resp.StatusCode, domain.ErrSubmission)
	}

	var out apiSubmitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("chainindex: decode submit response: %w", err)
	}
	return out.TxID, nil
}

func (c *Client) listUtxos(ctx context.Context, path string) ([]domain.UTXO, error) {
	var raw []apiUtxo
	if err := c.getJSON(ctx, path, &raw); err != nil {
		// An empty result set, not a failure.
		if err == errNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("chainindex: list utxos: %w", err)
	}
	out := make([]domain.UTXO, 0, len(raw))
	for _, u := range raw {
		d, err := u.toDomain()
		if err != nil {
			return nil, fmt.Errorf("chainindex: list utxos: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// errNotFound distinguishes 404 inside getJSON; public methods translate it.
var errNotFound = fmt.Errorf("chainindex 404: %w", domain.ErrNoMatchingUtxo)

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (c *Client) auth(req *http.Request) {
	if c.projectKey != "" {
		req.Header.Set("project_id", c.projectKey)
	}
}

var (
	_ domain.LedgerQuery = (*Client)(nil)
	_ domain.TxBuilder   = (*Client)(nil)
)
