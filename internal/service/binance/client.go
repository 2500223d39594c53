package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"CandleGrid/internal/domain/models"
	domrepo "CandleGrid/internal/domain/repository"
	nethttp "CandleGrid/pkg/http"
	applogger "CandleGrid/pkg/logger"
)

const (
	klinesPath = "/api/v3/klines"
	pageLimit  = 1000
)

// Client fetches historical klines from the Binance REST API. It is the
// fallback DataSource when stored base-timeframe history is insufficient.
type Client struct {
	baseURL string
	http    *nethttp.Client
	log     *applogger.Logger
}

// New creates a Binance kline source.
func New(baseURL string, timeout time.Duration, log *applogger.Logger) domrepo.DataSource {
	return &Client{
		baseURL: baseURL,
		http:    nethttp.NewClient(nethttp.WithTimeout(timeout)),
		log:     log,
	}
}

// FetchCandles pages through the klines endpoint until [start, end) is
// covered. Binance caps each page at 1000 bars.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: timeframe %q", models.ErrInvalidInput, tf)
	}
	var out []models.Candle
	cursor := start.UTC()
	for cursor.Before(end) {
		page, err := c.fetchPage(ctx, symbol, tf, cursor, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		next := page[len(page)-1].Ts.Add(tf.Step())
		if !next.After(cursor) {
			break
		}
		cursor = next
		if len(page) < pageLimit {
			break
		}
	}
	if c.log != nil {
		c.log.Debug("binance fetch",
			applogger.String("symbol", symbol),
			applogger.String("timeframe", string(tf)),
			applogger.Int("candles", len(out)),
		)
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	var rows []json.RawMessage
	err := c.http.SendAndParse(ctx, &nethttp.RequestOptions{
		Method: nethttp.MethodGet,
		URL:    c.baseURL + klinesPath,
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"interval":  {string(tf)},
			"startTime": {strconv.FormatInt(start.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(end.UnixMilli()-1, 10)},
			"limit":     {strconv.Itoa(pageLimit)},
		},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("%w: binance klines %s %s: %v", models.ErrStorageIO, symbol, tf, err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, raw := range rows {
		candle, err := parseKline(raw)
		if err != nil {
			return nil, fmt.Errorf("binance kline %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline decodes one kline row. Binance returns a mixed array:
// [openTimeMs, "open", "high", "low", "close", "volume", ...].
func parseKline(raw json.RawMessage) (models.Candle, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Candle{}, err
	}
	if len(fields) < 6 {
		return models.Candle{}, fmt.Errorf("kline has %d fields", len(fields))
	}
	var openMs int64
	if err := json.Unmarshal(fields[0], &openMs); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}
	prices := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(fields[i], &s); err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i, err)
		}
		prices[i-1] = v
	}
	return models.Candle{
		Ts:     time.UnixMilli(openMs).UTC(),
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: prices[4],
	}, nil
}
