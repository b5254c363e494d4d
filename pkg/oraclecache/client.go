package oraclecache

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 10 * time.Second

// Config configures an Oracle.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Oracle queries a k-anonymity breach-count endpoint, caching every answer
// in a local Cache so a root already looked up in a prior batch never costs
// a second network round trip.
type Oracle struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	logger     zerolog.Logger
}

// New builds an Oracle backed by cache. cfg.BaseURL is required.
func New(cfg Config, cache *Cache) (*Oracle, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("oracle client: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Oracle{baseURL: strings.TrimRight(cfg.BaseURL, "/"), httpClient: httpClient, cache: cache, logger: cfg.Logger}, nil
}

// Count returns plaintext's breach count, consulting the cache first and
// falling back to the oracle's k-anonymity range endpoint. A network
// failure is non-fatal here: the caller gets a count of 0 and the miss is
// logged, so a single oracle outage never blocks a batch's feedback pass.
func (o *Oracle) Count(ctx context.Context, plaintext string) int64 {
	sum := sha1.Sum([]byte(plaintext))
	hexSum := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := hexSum[:5], hexSum[5:]

	if count, found, err := o.cache.Get(plaintext); err == nil && found {
		return count
	}

	count, err := o.queryRange(ctx, prefix, suffix)
	if err != nil {
		o.logger.Warn().Err(err).Str("prefix", prefix).Msg("oracle query failed, treating as uncounted")
		return 0
	}

	if err := o.cache.Put(plaintext, count); err != nil {
		o.logger.Warn().Err(err).Str("plaintext_root", plaintext).Msg("failed to cache oracle result")
	}
	return count
}

// queryRange performs the GET /range/<prefix> call and scans the response
// body for a line matching suffix, per the oracle's k-anonymity protocol.
func (o *Oracle) queryRange(ctx context.Context, prefix, suffix string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/range/"+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET /range/%s: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("GET /range/%s: status %d", prefix, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		remaining, countStr, ok := strings.Cut(line, ":")
		if !ok || remaining != suffix {
			continue
		}
		count, err := strconv.ParseInt(countStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed count in line %q: %w", line, err)
		}
		return count, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read range response: %w", err)
	}
	return 0, nil
}
