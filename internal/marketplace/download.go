package marketplace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vscmirror/internal/utils"
)

// DownloadRequest describes one file to mirror.
type DownloadRequest struct {
	// Kind labels metrics, e.g. "installer" or "asset".
	Kind string
	URL  string
	Dest string
	// SHA256 is verified when set. A mismatching file is deleted.
	SHA256 string
}

type DownloadResult struct {
	FilePath      string
	Size          int64
	SHA256        string
	WasDownloaded bool
}

// Download fetches req.URL into req.Dest unless a valid copy is already
// there. The body is written to a temporary file and renamed into place.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("download %s: empty url", req.Dest)
	}
	if res, ok := c.existing(req); ok {
		c.metrics.IncDownload(req.Kind, "cached")
		return res, nil
	}
	if err := utils.EnsureDirectory(filepath.Dir(req.Dest)); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, c.opts.Retries, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	})
	if err != nil {
		c.metrics.IncDownload(req.Kind, "error")
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.metrics.IncDownload(req.Kind, "error")
		return nil, fmt.Errorf("%w: %s: status %d", ErrUpstreamUnavailable, req.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(req.Dest), ".download-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		c.metrics.IncDownload(req.Kind, "error")
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), req.Dest); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to move download into place: %w", err)
	}

	sum, _, err := utils.HashFileSHA256(req.Dest)
	if err != nil {
		return nil, err
	}
	if req.SHA256 != "" && !strings.EqualFold(sum, req.SHA256) {
		os.Remove(req.Dest)
		c.metrics.IncDownload(req.Kind, "hash_mismatch")
		c.logger.Warn("hash mismatch, removing local file", "file", req.Dest, "expected", req.SHA256, "got", sum)
		return nil, fmt.Errorf("%w: %s", ErrHashMismatch, req.Dest)
	}

	c.metrics.IncDownload(req.Kind, "ok")
	c.metrics.AddBytes(req.Kind, written)
	c.logger.Debug("downloaded", "file", req.Dest, "bytes", written)
	return &DownloadResult{FilePath: req.Dest, Size: written, SHA256: sum, WasDownloaded: true}, nil
}

func (c *Client) existing(req DownloadRequest) (*DownloadResult, bool) {
	sum, size, err := utils.HashFileSHA256(req.Dest)
	if err != nil {
		return nil, false
	}
	if req.SHA256 != "" && !strings.EqualFold(sum, req.SHA256) {
		return nil, false
	}
	c.logger.Debug("previously downloaded", "file", req.Dest)
	return &DownloadResult{FilePath: req.Dest, Size: size, SHA256: sum}, true
}
