package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"vscmirror/internal/extensions"
	"vscmirror/internal/metrics"
	"vscmirror/internal/models"
	"vscmirror/internal/utils"
)

var (
	// ErrUpstreamUnavailable means the upstream service could not be reached
	// or kept failing after every retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrHashMismatch means a download did not match its expected sha256
	// and was deleted.
	ErrHashMismatch = errors.New("download hash mismatch")
)

const (
	galleryAttempts   = 10
	galleryPageSize   = 500
	targetVSCode      = "Microsoft.VisualStudio.Code"
	defaultRetries    = 5
	defaultTimeout    = 12 * time.Second
	defaultBackoff    = time.Second
	maxBackoff        = 30 * time.Second
	defaultVSCVersion = "1.95.0"
)

// Options configures a Client.
type Options struct {
	Endpoints     Endpoints
	Insider       bool
	Prerelease    bool
	VSCodeVersion string
	Retries       int
	Timeout       time.Duration
	// Backoff is the first retry delay; it doubles on every attempt.
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    metrics.SyncMetrics
}

// Client talks to the upstream gallery, update API and feeds.
type Client struct {
	http      *http.Client
	endpoints Endpoints
	opts      Options
	logger    *slog.Logger
	metrics   metrics.SyncMetrics
}

func New(opts Options) *Client {
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.VSCodeVersion == "" {
		opts.VSCodeVersion = defaultVSCVersion
	}
	client := opts.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = opts.Timeout
		client = &http.Client{Transport: transport}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	return &Client{http: client, endpoints: opts.Endpoints, opts: opts, logger: logger, metrics: m}
}

func (c *Client) userAgent() string {
	ua := "VSCode " + c.opts.VSCodeVersion
	if c.opts.Insider {
		ua += "-insider"
	}
	return ua
}

func (c *Client) galleryHeaders(h http.Header) {
	h.Set(utils.ContentTypeHeader, utils.JSONContentType)
	h.Set("Accept", utils.HTTPAPIVersion)
	h.Set("User-Agent", c.userAgent())
	h.Set("X-Market-Client-Id", c.userAgent())
	h.Set("X-Market-User-Id", uuid.New().String())
}

// do sends the request built by newReq until it gets a response that is
// neither a transport error, a 429 nor a 5xx, or attempts run out.
func (c *Client) do(ctx context.Context, attempts int, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	backoff := c.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%s %s: status %d", req.Method, req.URL, resp.StatusCode)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		default:
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == attempts {
			break
		}
		c.logger.Info("retrying upstream request", "attempt", attempt+1, "of", attempts, "wait", backoff.String(), "error", lastErr)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, fmt.Errorf("%w: %d attempts: %w", ErrUpstreamUnavailable, attempts, lastErr)
}

type queryOptions struct {
	limit     int
	sortBy    models.SortBy
	sortOrder models.SortOrder
	flags     models.QueryFlags
}

func (c *Client) buildQuery(ft models.FilterType, value string, page, pageSize int, o queryOptions) models.QueryRequest {
	criteria := []models.Criterion{
		models.NewCriterion(models.FilterTarget, targetVSCode),
		models.NewCriterion(models.FilterExcludeWithFlags, fmt.Sprint(models.FlagUnpublished.Int())),
	}
	if value != "" {
		criteria = append(criteria, models.NewCriterion(ft, value))
	}
	flags := o.flags
	if flags == models.FlagNoneDefined {
		flags = models.DefaultQueryFlags
	}
	f := flags.Int()
	return models.QueryRequest{
		AssetTypes: []string{},
		Filters: []models.QueryFilter{{
			Criteria:   criteria,
			PageNumber: page,
			PageSize:   pageSize,
			SortBy:     o.sortBy.Int(),
			SortOrder:  o.sortOrder.Int(),
		}},
		Flags: &f,
	}
}

type galleryResponse struct {
	Results []struct {
		Extensions     []json.RawMessage       `json:"extensions"`
		ResultMetadata []models.ResultMetadata `json:"resultMetadata"`
	} `json:"results"`
}

// queryGallery pages through the upstream gallery and returns the distinct
// extensions in the order they were first seen.
func (c *Client) queryGallery(ctx context.Context, ft models.FilterType, value string, o queryOptions) ([]*models.ExtensionRecord, error) {
	pageSize := galleryPageSize
	if o.limit > 0 && o.limit < pageSize {
		pageSize = o.limit
	}

	var out []*models.ExtensionRecord
	seen := make(map[string]bool)
	count, total := 0, 0
	for page := 1; count == 0 || count < total; page++ {
		body, err := json.Marshal(c.buildQuery(ft, value, page, pageSize, o))
		if err != nil {
			return nil, fmt.Errorf("encode gallery query: %w", err)
		}
		resp, err := c.do(ctx, galleryAttempts, func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Gallery, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			c.galleryHeaders(req.Header)
			return req, nil
		})
		if err != nil {
			return out, err
		}

		var parsed galleryResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return out, fmt.Errorf("%w: gallery status %d", ErrUpstreamUnavailable, resp.StatusCode)
		}
		if err != nil {
			return out, fmt.Errorf("decode gallery response: %w", err)
		}

		count += pageSize
		received := 0
		for _, res := range parsed.Results {
			for _, raw := range res.Extensions {
				received++
				rec, err := extensions.DecodeManifest(raw)
				if err != nil {
					c.logger.Debug("skipping upstream extension", "error", err)
					continue
				}
				if !seen[rec.Identity] {
					seen[rec.Identity] = true
					out = append(out, rec)
				}
			}
			for _, md := range res.ResultMetadata {
				if md.MetadataType == "ResultCount" && len(md.MetadataItems) > 0 {
					total = md.MetadataItems[0].Count
				}
			}
		}
		if received == 0 {
			break
		}
		if o.limit > 0 && count >= o.limit {
			break
		}
	}
	return out, nil
}

// SearchByText returns every extension matching text. "*" and "" match all.
func (c *Client) SearchByText(ctx context.Context, text string) ([]*models.ExtensionRecord, error) {
	if text == "*" {
		text = ""
	}
	return c.queryGallery(ctx, models.FilterSearchText, text, queryOptions{})
}

// SearchTopN returns the n most installed extensions.
func (c *Client) SearchTopN(ctx context.Context, n int) ([]*models.ExtensionRecord, error) {
	c.logger.Info("searching for top recommended extensions", "count", n)
	return c.queryGallery(ctx, models.FilterSearchText, "", queryOptions{
		limit:     n,
		sortBy:    models.SortInstallCount,
		sortOrder: models.SortOrderDescending,
	})
}

func single(recs []*models.ExtensionRecord, err error, what string) (*models.ExtensionRecord, error) {
	if err != nil {
		return nil, err
	}
	if len(recs) != 1 {
		return nil, fmt.Errorf("%s: expected one extension, got %d", what, len(recs))
	}
	return recs[0], nil
}

// SearchByExtensionName looks up publisher.name. Without prerelease the
// result is narrowed to its newest release versions.
func (c *Client) SearchByExtensionName(ctx context.Context, name string) (*models.ExtensionRecord, error) {
	if c.opts.Prerelease {
		recs, err := c.queryGallery(ctx, models.FilterExtensionName, name, queryOptions{})
		return single(recs, err, name)
	}
	recs, err := c.queryGallery(ctx, models.FilterExtensionName, name, queryOptions{flags: models.ReleaseQueryFlags})
	rec, err := single(recs, err, name)
	if err != nil {
		return nil, err
	}
	rec.Versions = extensions.LatestReleaseVersions(rec)
	return rec, nil
}

func (c *Client) SearchByExtensionID(ctx context.Context, id string) (*models.ExtensionRecord, error) {
	recs, err := c.queryGallery(ctx, models.FilterExtensionID, id, queryOptions{})
	return single(recs, err, id)
}

// SearchReleaseByExtensionID returns the extension with every version so a
// release can be chosen among them.
func (c *Client) SearchReleaseByExtensionID(ctx context.Context, id string) (*models.ExtensionRecord, error) {
	c.logger.Debug("searching for release candidate", "extensionId", id)
	recs, err := c.queryGallery(ctx, models.FilterExtensionID, id, queryOptions{flags: models.ReleaseQueryFlags})
	return single(recs, err, id)
}
