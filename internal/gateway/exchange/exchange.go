// Package exchange defines a common abstraction for trading exchanges.
// This allows the engine to work with different exchange backends without
// changing the decision or execution logic.
package exchange

import (
	"context"

	"kestrel/internal/market"
)

// PositionRisk mirrors the signed margin-position report of futures
// exchanges: positive amount is long, negative is short, zero or a missing
// entry means no position.
type PositionRisk struct {
	Symbol      string  `json:"symbol"`
	PositionAmt float64 `json:"positionAmt"`
	EntryPrice  float64 `json:"entryPrice"`
	MarkPrice   float64 `json:"markPrice"`
	Leverage    float64 `json:"leverage"`
}

// OrderRequest describes a market open/close instruction.
type OrderRequest struct {
	Symbol    string
	Direction string // "long" or "short"
	Quantity  float64
	Price     float64 // reference price, informational for market orders
	Metadata  map[string]any
}

// OrderResult is what an exchange reports back for a filled order.
type OrderResult struct {
	OrderID   string  `json:"order_id"`
	FillPrice float64 `json:"fill_price"`
}

// AccountReader is an optional capability: connectors that can report the
// account margin balance implement it, and the automation loop asserts it
// at runtime.
type AccountReader interface {
	AccountEquity(ctx context.Context) (float64, error)
}

// Connector is the capability set the engine consumes, resolved per asset.
type Connector interface {
	Name() string

	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)

	FetchDailyCloses(ctx context.Context, symbol string, days int) ([]market.DailyClose, error)

	// GetMarginPositionRisk returns position reports; an empty symbol
	// queries every symbol the account holds.
	GetMarginPositionRisk(ctx context.Context, symbol string) ([]PositionRisk, error)

	OpenPosition(ctx context.Context, req OrderRequest) (*OrderResult, error)

	ClosePosition(ctx context.Context, req OrderRequest) (*OrderResult, error)
}
