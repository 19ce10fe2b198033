package consumer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const (
	DefaultAPIKeyHeader = "api_key"
	UserAgent           = "traintracker-data/1.0"

	maxFeedBytes = 32 << 20
)

// Fetcher retrieves one decoded GTFS-realtime message.
type Fetcher interface {
	Fetch(ctx context.Context) (*gtfs.FeedMessage, error)
}

type HTTPFetcher struct {
	url          string
	apiKeyHeader string
	apiKey       string
	client       *http.Client
}

type FetcherConfig struct {
	URL          string
	APIKeyHeader string
	APIKey       string
	Timeout      time.Duration
}

func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	header := cfg.APIKeyHeader
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPFetcher{
		url:          cfg.URL,
		apiKeyHeader: header,
		apiKey:       cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(f.apiKeyHeader, f.apiKey)
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/x-protobuf")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return feed, nil
}
