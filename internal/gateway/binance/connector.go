package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kestrel/internal/gateway/exchange"
	"kestrel/internal/market"
	symbolpkg "kestrel/internal/pkg/symbol"
	"kestrel/internal/pkg/trading"

	"github.com/adshao/go-binance/v2/futures"
)

const maxKlineLimit = 1500

// Connector 基于 go-binance SDK 实现 exchange.Connector。
type Connector struct {
	cfg    Config
	client *futures.Client
	nowFn  func() time.Time
}

var _ exchange.Connector = (*Connector)(nil)

func New(cfg Config) (*Connector, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
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
	return &Connector{cfg: final, client: client, nowFn: time.Now}, nil
}

func (c *Connector) Name() string { return "binance" }

func (c *Connector) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	// Binance 要求无斜杠格式（ETH/USDT -> ETHUSDT）。
	clean := symbolpkg.ToBinance(symbol)
	kls, err := c.client.NewKlinesService().Symbol(clean).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return dropUnclosed(out, c.nowFn().UnixMilli()), nil
}

func (c *Connector) FetchDailyCloses(ctx context.Context, symbol string, days int) ([]market.DailyClose, error) {
	if days <= 0 {
		days = 30
	}
	// 多取一根，未收盘的当日 K 线会被剔除。
	candles, err := c.FetchCandles(ctx, symbol, "1d", days+1)
	if err != nil {
		return nil, err
	}
	out := make([]market.DailyClose, 0, len(candles))
	for _, cd := range candles {
		out = append(out, market.DailyClose{
			Timestamp: time.UnixMilli(cd.CloseTime).UTC(),
			Close:     cd.Close,
		})
	}
	if len(out) > days {
		out = out[len(out)-days:]
	}
	return out, nil
}

// AccountEquity 返回账户的总保证金余额（USDT 计）。
func (c *Connector) AccountEquity(ctx context.Context) (float64, error) {
	acct, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, fmt.Errorf("binance: empty account response")
	}
	return parseFloat(acct.TotalMarginBalance), nil
}

var _ exchange.AccountReader = (*Connector)(nil)

func (c *Connector) GetMarginPositionRisk(ctx context.Context, symbol string) ([]exchange.PositionRisk, error) {
	svc := c.client.NewGetPositionRiskService()
	if s := strings.TrimSpace(symbol); s != "" {
		svc = svc.Symbol(symbolpkg.ToBinance(s))
	}
	risks, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.PositionRisk, 0, len(risks))
	for _, r := range risks {
		if r == nil {
			continue
		}
		out = append(out, exchange.PositionRisk{
			Symbol:      r.Symbol,
			PositionAmt: parseFloat(r.PositionAmt),
			EntryPrice:  parseFloat(r.EntryPrice),
			MarkPrice:   parseFloat(r.MarkPrice),
			Leverage:    parseFloat(r.Leverage),
		})
	}
	return out, nil
}

func (c *Connector) OpenPosition(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	side := futures.SideTypeBuy
	if req.Direction == "short" {
		side = futures.SideTypeSell
	}
	return c.placeMarketOrder(ctx, req, side, false)
}

func (c *Connector) ClosePosition(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	// 平多卖出、平空买入，reduce-only 防止反向开仓。
	side := futures.SideTypeSell
	if req.Direction == "short" {
		side = futures.SideTypeBuy
	}
	return c.placeMarketOrder(ctx, req, side, true)
}

func (c *Connector) placeMarketOrder(ctx context.Context, req exchange.OrderRequest, side futures.SideType, reduceOnly bool) (*exchange.OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("binance: order quantity must be positive, got %v", req.Quantity)
	}
	clean := symbolpkg.ToBinance(req.Symbol)
	qty := trading.FormatQuantity(req.Quantity)
	resp, err := c.client.NewCreateOrderService().
		Symbol(clean).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		ReduceOnly(reduceOnly).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	fill := parseFloat(resp.AvgPrice)
	if fill == 0 {
		fill = req.Price
	}
	return &exchange.OrderResult{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		FillPrice: fill,
	}, nil
}

func dropUnclosed(candles []market.Candle, nowMillis int64) []market.Candle {
	for len(candles) > 0 && candles[len(candles)-1].CloseTime > nowMillis {
		candles = candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
