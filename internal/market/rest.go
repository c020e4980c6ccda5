package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quantdesk/internal/pkg/text"
)

// RESTProvider fetches candles from an HTTP endpoint that answers
// GET {base}/candles?asset=&timeframe=&limit= with either a bare array or
// {"candles": [...]}.
type RESTProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewRESTProvider(baseURL string, timeout time.Duration) *RESTProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTProvider{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (p *RESTProvider) Name() string { return "rest" }

func (p *RESTProvider) FetchCandles(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error) {
	candles, err := p.fetch(ctx, asset, timeframe, limit)
	if err != nil {
		return nil, NewFetchError(p.Name(), asset, timeframe, err)
	}
	return candles, nil
}

func (p *RESTProvider) fetch(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error) {
	if p.BaseURL == "" {
		return nil, fmt.Errorf("rest provider base url is empty")
	}
	q := url.Values{}
	q.Set("asset", asset)
	q.Set("timeframe", timeframe)
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, text.Truncate(strings.TrimSpace(string(snippet)), 512))
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	candles, err := DecodeCandles(raw)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}
