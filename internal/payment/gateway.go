package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// GatewayOrder is the gateway's order object created ahead of a charge. Only
// the fields the checkout flow needs are mapped.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// GatewayClient creates orders against the payment gateway's REST API.
type GatewayClient struct {
	http *resty.Client
}

// NewGatewayClient builds a client for the gateway at baseURL, authenticating
// with the key pair via basic auth.
func NewGatewayClient(baseURL, keyID, keySecret string) *GatewayClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(keyID, keySecret).
		SetHeader("Content-Type", "application/json")
	return &GatewayClient{http: client}
}

// CreateOrder registers an order of the given amount with the gateway and
// returns its order object. The amount is converted to minor units (paise).
func (c *GatewayClient) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*GatewayOrder, error) {
	body := map[string]any{
		"amount":   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"currency": currency,
		"receipt":  receipt,
	}

	var out GatewayOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return nil, errors.Wrap(err, "create gateway order")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("gateway order request failed with status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ID == "" {
		return nil, errors.New("gateway order response missing id")
	}
	return &out, nil
}
