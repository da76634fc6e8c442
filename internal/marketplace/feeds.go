package marketplace

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"vscmirror/internal/models"
)

// Placeholder commit used when asking for the latest build from scratch.
const unknownCommit = "7c4205b5c6e52a53b81c69d2b2dc8a627abaa0ba"

// Recommendations is the workspace recommendation feed.
type Recommendations struct {
	// Raw is the decompressed feed as served upstream.
	Raw   json.RawMessage
	Names []string
}

// MaliciousList is the marketplace's list of blocked extensions.
type MaliciousList struct {
	Raw        json.RawMessage
	Identities []string
}

// Contains reports whether identity is on the list.
func (m *MaliciousList) Contains(identity string) bool {
	if m == nil {
		return false
	}
	for _, id := range m.Identities {
		if strings.EqualFold(id, identity) {
			return true
		}
	}
	return false
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.do(ctx, c.opts.Retries, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstreamUnavailable, url, resp.StatusCode)
	}
	return readMaybeGzip(resp.Body)
}

// readMaybeGzip returns the body, inflating it when it is a gzip stream
// that the transport did not already decode.
func readMaybeGzip(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return io.ReadAll(br)
}

// Recommendations downloads the workspace recommendation feed and returns
// the distinct extension names it mentions.
func (c *Client) Recommendations(ctx context.Context) (*Recommendations, error) {
	data, err := c.fetch(ctx, c.endpoints.Recommendations)
	if err != nil {
		return nil, err
	}
	var feed struct {
		WorkspaceRecommendations []struct {
			Recommendations []string `json:"recommendations"`
		} `json:"workspaceRecommendations"`
	}
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}

	seen := make(map[string]bool)
	recs := &Recommendations{Raw: data}
	for _, ws := range feed.WorkspaceRecommendations {
		for _, name := range ws.Recommendations {
			if !seen[name] {
				seen[name] = true
				recs.Names = append(recs.Names, name)
			}
		}
	}
	return recs, nil
}

// Malicious downloads the blocked extension list. The upstream document
// carries stray non-breaking spaces which are removed before decoding.
func (c *Client) Malicious(ctx context.Context) (*MaliciousList, error) {
	data, err := c.fetch(ctx, c.endpoints.Malicious)
	if err != nil {
		return nil, err
	}
	data = bytes.ReplaceAll(data, []byte("\u00a0"), nil)
	data = bytes.ToValidUTF8(data, nil)

	var doc struct {
		Malicious []string `json:"malicious"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode malicious list: %w", err)
	}
	return &MaliciousList{Raw: data, Identities: doc.Malicious}, nil
}

// CheckForUpdate asks the update API for the newest build of def and fills
// in the fetched fields. It reports false when no build is available.
func (c *Client) CheckForUpdate(ctx context.Context, def *models.UpdateDefinition, commitID string) (bool, error) {
	if commitID == "" {
		commitID = unknownCommit
	}
	url := c.endpoints.Updates + def.Identity + "/" + def.Quality + "/" + commitID
	c.logger.Debug("checking for update", "url", url)

	resp, err := c.do(ctx, c.opts.Retries, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return false, nil
	default:
		c.logger.Warn("update check failed", "url", url, "status", resp.StatusCode)
		return false, nil
	}

	var fetched models.UpdateDefinition
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		return false, fmt.Errorf("decode update for %s: %w", def.Identity, err)
	}
	def.URL = fetched.URL
	def.Name = fetched.Name
	def.Version = fetched.Version
	def.ProductVersion = fetched.ProductVersion
	def.Hash = fetched.Hash
	def.Timestamp = fetched.Timestamp
	def.SHA256Hash = fetched.SHA256Hash
	if fetched.SupportsFastUpdate != nil {
		def.SupportsFastUpdate = fetched.SupportsFastUpdate
	}
	return def.URL != "", nil
}
