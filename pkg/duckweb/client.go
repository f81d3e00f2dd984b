// Package duckweb is the Go SDK for duckweb-server. Backtests run over gRPC;
// series discovery uses the HTTP API.
package duckweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"duckweb/internal/api"
	"duckweb/internal/httpapi"
)

type (
	// Params selects the series, range, indicator and risk-reward sweep of a
	// backtest.
	Params = httpapi.BacktestParams
	// Result is the summary table and trade history of a backtest.
	Result = httpapi.BacktestJSON
	// Series describes one stored series.
	Series = httpapi.SeriesJSON
	// Dates holds the first and last bar times of a series.
	Dates = httpapi.DatesJSON
)

// Client provides a Go SDK for interacting with the duckweb-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	conn       *grpc.ClientConn
}

// NewClient creates a client for the HTTP API at baseURL and the gRPC
// service at grpcAddr. Either may be empty when unused.
func NewClient(baseURL, grpcAddr string) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if grpcAddr != "" {
		conn, err := grpc.NewClient(grpcAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", grpcAddr, err)
		}
		c.conn = conn
	}
	return c, nil
}

// NewClientConn creates a client that runs backtests over an existing gRPC
// connection.
func NewClientConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Backtest runs a risk-reward sweep on the server.
func (c *Client) Backtest(ctx context.Context, p Params) (Result, error) {
	if c.conn == nil {
		return Result{}, fmt.Errorf("backtest: no gRPC address configured")
	}
	req, err := api.ToStruct(p)
	if err != nil {
		return Result{}, fmt.Errorf("encoding params: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.RunSweepMethod, req, resp); err != nil {
		return Result{}, err
	}
	var out Result
	if err := api.FromStruct(resp, &out); err != nil {
		return Result{}, fmt.Errorf("decoding result: %w", err)
	}
	return out, nil
}

// ListSeries retrieves the stored series.
func (c *Client) ListSeries(ctx context.Context) ([]Series, error) {
	var out []Series
	err := c.get(ctx, "/api/series", nil, &out)
	return out, err
}

// DateBounds retrieves the first and last bar time of a series.
func (c *Client) DateBounds(ctx context.Context, index, timeframe string) (Dates, error) {
	var out Dates
	err := c.get(ctx, "/api/series/"+url.PathEscape(index)+"/"+url.PathEscape(timeframe)+"/dates", nil, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	if c.baseURL == "" {
		return fmt.Errorf("GET %s: no HTTP base URL configured", path)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
