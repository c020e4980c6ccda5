package market

import (
	"context"
	"errors"
	"fmt"
)

// Provider fetches the most recent limit candles for an asset/timeframe pair,
// oldest first.
type Provider interface {
	FetchCandles(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error)
	Name() string
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error)

func (f ProviderFunc) FetchCandles(ctx context.Context, asset, timeframe string, limit int) ([]Candle, error) {
	return f(ctx, asset, timeframe, limit)
}

func (f ProviderFunc) Name() string { return "func" }

var ErrCircuitOpen = errors.New("market data provider circuit open")

// FetchError is a market-data network or parse failure.
type FetchError struct {
	Provider  string
	Asset     string
	Timeframe string
	Err       error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("fetch %s %s from %s: %v", e.Asset, e.Timeframe, e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err unless it already is a FetchError.
func NewFetchError(provider, asset, timeframe string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Provider: provider, Asset: asset, Timeframe: timeframe, Err: err}
}
