package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// HTTPAccountClient fetches authoritative position snapshots from the
// exchange's request/response API.
type HTTPAccountClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAccountClient builds a client for the given base URL.
func NewHTTPAccountClient(baseURL string) (*HTTPAccountClient, error) {
	if baseURL == "" {
		return nil, exception.ErrInvalidArgument
	}
	return &HTTPAccountClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type positionPayload struct {
	Symbol     string          `json:"symbol"`
	Qty        decimal.Decimal `json:"qty"`
	EntryPrice decimal.Decimal `json:"entryPrice"`
}

// Positions queries the current open positions.
func (c *HTTPAccountClient) Positions(ctx context.Context) ([]Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/positions", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch positions")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch positions: status %d", resp.StatusCode)
	}

	var payload []positionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode positions")
	}

	positions := make([]Position, 0, len(payload))
	for _, p := range payload {
		positions = append(positions, Position{
			Symbol:     p.Symbol,
			Qty:        p.Qty,
			EntryPrice: p.EntryPrice,
		})
	}
	return positions, nil
}
