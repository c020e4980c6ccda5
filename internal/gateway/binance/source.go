package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quantdesk/internal/logger"
	"quantdesk/internal/market"
	"quantdesk/internal/pkg/convert"
	symbolpkg "quantdesk/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

const maxHistoryLimit = 1500

// Source serves futures klines through market.Provider.
type Source struct {
	cfg    Config
	client *futures.Client
	now    func() time.Time
	log    *logger.Entry
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{
		cfg:    final,
		client: client,
		now:    time.Now,
		log:    logger.With("binance"),
	}, nil
}

func (s *Source) Name() string { return "binance" }

// ExchangeSymbol maps an asset to the futures symbol ("btc" -> "BTCUSDT").
func (s *Source) ExchangeSymbol(asset string) string {
	parsed := symbolpkg.Parse(asset)
	if parsed.Base != "" && parsed.Quote == "" {
		parsed.Quote = s.cfg.DefaultQuote
	}
	if out := parsed.Binance(); out != "" {
		return out
	}
	return symbolpkg.Binance.ToExchange(asset)
}

// FetchCandles pages backwards from now in chunks of maxHistoryLimit until
// limit closed bars are collected or the exchange runs out of history.
func (s *Source) FetchCandles(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error) {
	out, err := s.fetch(ctx, asset, timeframe, limit)
	if err != nil {
		return nil, market.NewFetchError(s.Name(), asset, timeframe, err)
	}
	return out, nil
}

func (s *Source) fetch(ctx context.Context, asset, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	sym := s.ExchangeSymbol(asset)
	if sym == "" {
		return nil, fmt.Errorf("asset is required")
	}
	tf, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	// one spare bar covers the in-progress candle dropped below
	want := limit + 1
	var (
		pages   [][]market.Candle
		total   int
		endTime int64
	)
	for total < want {
		batch := want - total
		if batch > maxHistoryLimit {
			batch = maxHistoryLimit
		}
		svc := s.client.NewKlinesService().Symbol(sym).Interval(tf.Key).Limit(batch)
		if endTime > 0 {
			svc = svc.EndTime(endTime)
		}
		kls, err := svc.Do(ctx)
		if err != nil {
			return nil, err
		}
		page := convertKlines(kls)
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
		total += len(page)
		endTime = page[0].Time*1000 - 1
		if len(page) < batch {
			break
		}
	}
	out := make([]market.Candle, 0, total)
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	out = market.SortCandles(out)
	out = market.DropUnclosed(out, tf.Duration, s.now())
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	s.log.Debugf("[binance] %s %s bars=%d pages=%d", sym, tf.Key, len(out), len(pages))
	return out, nil
}

func convertKlines(kls []*futures.Kline) []market.Candle {
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil || kl.OpenTime <= 0 {
			continue
		}
		out = append(out, market.Candle{
			Time:   kl.OpenTime / 1000,
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	return out
}

func parseFloat(v string) float64 {
	f, _ := convert.ParseNumber(strings.TrimSpace(v))
	return f
}
