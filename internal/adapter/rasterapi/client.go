// Package rasterapi reads raster collections from a remote HTTP raster service.
package rasterapi

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/couchcryptid/climate-series-service/internal/domain"
)

// Client implements pipeline.RasterProvider over the raster service API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a raster service client.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Ping checks the service health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.baseURL+"/healthz")
	return err
}

// QueryCollection pages through the items of a collection. The next page is
// only requested once the caller has consumed the current one.
func (c *Client) QueryCollection(ctx context.Context, q domain.CollectionQuery) iter.Seq2[domain.ObservationRef, error] {
	return func(yield func(domain.ObservationRef, error) bool) {
		params := url.Values{
			"start": {q.Range.Start.UTC().Format(time.RFC3339)},
			"end":   {q.Range.End.UTC().Format(time.RFC3339)},
		}
		if q.Bounds != nil {
			params.Set("bbox", fmt.Sprintf("%g,%g,%g,%g", q.Bounds.Min.X, q.Bounds.Min.Y, q.Bounds.Max.X, q.Bounds.Max.Y))
		}
		base := fmt.Sprintf("%s/v1/collections/%s/items", c.baseURL, url.PathEscape(string(q.Variable)))

		pages := 0
		for {
			body, err := c.get(ctx, base+"?"+params.Encode())
			if err != nil {
				yield(domain.ObservationRef{}, fmt.Errorf("list %s: %w", q.Variable, err))
				return
			}
			var page itemsResponse
			if err := sonic.Unmarshal(body, &page); err != nil {
				yield(domain.ObservationRef{}, fmt.Errorf("decode %s items: %w", q.Variable, err))
				return
			}
			pages++

			for _, it := range page.Items {
				ref := domain.ObservationRef{
					Variable:   q.Variable,
					ID:         it.ID,
					Timestamp:  it.Timestamp.UTC(),
					Properties: it.Properties,
				}
				if !yield(ref, nil) {
					return
				}
			}
			if page.NextPageToken == "" {
				c.logger.Debug("collection listed", "variable", q.Variable, "pages", pages)
				return
			}
			params.Set("page_token", page.NextPageToken)
		}
	}
}

// ReadBand downloads one band of one item.
func (c *Client) ReadBand(ctx context.Context, ref domain.ObservationRef, band domain.Band) (domain.Grid, error) {
	u := fmt.Sprintf("%s/v1/collections/%s/items/%s/bands/%s",
		c.baseURL,
		url.PathEscape(string(ref.Variable)),
		url.PathEscape(ref.ID),
		url.PathEscape(string(band)),
	)
	body, err := c.get(ctx, u)
	if err != nil {
		return domain.Grid{}, err
	}

	var resp bandResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return domain.Grid{}, fmt.Errorf("decode band %s: %w", band, err)
	}
	values := make([]float64, len(resp.Values))
	for i, v := range resp.Values {
		switch {
		case v == nil:
			values[i] = math.NaN()
		case resp.NoData != nil && *v == *resp.NoData:
			values[i] = math.NaN()
		default:
			values[i] = *v
		}
	}
	return domain.NewGrid(resp.Grid, values)
}

func (c *Client) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("raster request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

// statusError marks client errors other than timeouts and throttling as
// rejected so they are not retried.
func statusError(code int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests {
		return fmt.Errorf("%w: raster API status %d: %s", domain.ErrRejected, code, msg)
	}
	return fmt.Errorf("raster API status %d: %s", code, msg)
}

// Raster API response types.

type itemsResponse struct {
	Items         []item `json:"items"`
	NextPageToken string `json:"next_page_token"`
}

type item struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Properties map[string]float64 `json:"properties"`
}

type bandResponse struct {
	Grid   domain.GridSpec `json:"grid"`
	Values []*float64      `json:"values"` // row-major, null when masked
	NoData *float64        `json:"nodata"`
}
