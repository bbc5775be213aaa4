// Package horizon implements the order-book source against a Horizon-style
// HTTP API. Order books are addressed by (selling asset, buying asset, depth
// limit); prices and amounts arrive as decimal strings.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

// Client is the REST client for the Horizon order-book API.
type Client struct {
	baseURL    string
	depthLimit int
	httpClient *http.Client
}

// NewClient creates a new Horizon REST client.
//
// baseURL is the API root, e.g. "https://horizon.stellar.org". depthLimit is
// the number of levels requested per book side. timeout bounds each request
// in addition to any context deadline the caller supplies.
func NewClient(baseURL string, depthLimit int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		depthLimit: depthLimit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetOrderBook fetches the current order book for the given trading pair.
// The pair's base asset is the selling side and the counter asset the buying
// side. The returned snapshot carries the derived mid-price and liquidity
// metrics.
func (c *Client) GetOrderBook(ctx context.Context, pair domain.TradingPair) (domain.OrderBookSnapshot, error) {
	params := url.Values{}
	addAssetParams(params, "selling", pair.Base)
	addAssetParams(params, "buying", pair.Counter)
	params.Set("limit", strconv.Itoa(c.depthLimit))

	reqURL := c.baseURL + "/order_book?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: build request %s: %w", pair.Key(), err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: get order book %s: %w", pair.Key(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: read order book %s: %w", pair.Key(), err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Title != "" {
			return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: order book %s: %s (status %d)", pair.Key(), apiErr.Title, resp.StatusCode)
		}
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: order book %s: unexpected status %d", pair.Key(), resp.StatusCode)
	}

	var book orderBookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: decode order book %s: %w", pair.Key(), err)
	}

	bids, err := parseLevels(book.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: parse bids %s: %w", pair.Key(), err)
	}
	asks, err := parseLevels(book.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("horizon: parse asks %s: %w", pair.Key(), err)
	}

	return domain.NewOrderBookSnapshot(pair, bids, asks, time.Now().UTC()), nil
}

// addAssetParams encodes one side of the pair using the Horizon asset-type
// convention: "native" for the native asset, otherwise credit_alphanum4 or
// credit_alphanum12 depending on code length.
func addAssetParams(params url.Values, side string, asset domain.Asset) {
	if asset.IsNative() {
		params.Set(side+"_asset_type", "native")
		return
	}
	assetType := "credit_alphanum4"
	if len(asset.Code) > 4 {
		assetType = "credit_alphanum12"
	}
	params.Set(side+"_asset_type", assetType)
	params.Set(side+"_asset_code", asset.Code)
	params.Set(side+"_asset_issuer", asset.Issuer)
}

// parseLevels converts wire levels with string-encoded decimals into domain
// price levels, preserving order.
func parseLevels(levels []priceLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		price, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lvl.Price, err)
		}
		amount, err := strconv.ParseFloat(lvl.Amount, 64)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", lvl.Amount, err)
		}
		out = append(out, domain.PriceLevel{Price: price, Amount: amount})
	}
	return out, nil
}
