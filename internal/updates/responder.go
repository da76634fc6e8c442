package updates

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vscmirror/internal/models"
	"vscmirror/internal/utils"
)

var (
	// ErrUnavailable means the platform/quality was never mirrored or its
	// descriptor cannot be read.
	ErrUnavailable = errors.New("update unavailable")
	// ErrNoUpdate means the client already runs the mirrored version.
	ErrNoUpdate = errors.New("no update available")
	// ErrNotFound means the descriptor exists but its installer does not.
	ErrNotFound = errors.New("update payload not found")
	// ErrHashMismatch means the installer failed verification and was removed.
	ErrHashMismatch = errors.New("update payload hash mismatch")
)

// Responder answers update checks from the mirrored installers tree.
type Responder struct {
	installersDir string
	urlRoot       string
	logger        *slog.Logger
}

func NewResponder(installersDir, urlRoot string, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{installersDir: installersDir, urlRoot: strings.TrimRight(urlRoot, "/"), logger: logger}
}

// ResolveUpdate returns the descriptor a client on commitID should update
// to, with its url pointing at the mirror.
func (r *Responder) ResolveUpdate(platform, quality, commitID string) (*models.UpdateDefinition, error) {
	dir, err := r.updateDir(platform, quality)
	if err != nil {
		return nil, err
	}
	latest, err := LoadState(r.installersDir, platform, quality, "")
	if err != nil {
		r.logger.Warn("unable to load latest update descriptor", "platform", platform, "quality", quality, "error", err)
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrUnavailable, platform, quality, err)
	}
	if latest.Version == commitID {
		r.logger.Debug("client up to date", "platform", platform, "quality", quality)
		return nil, ErrNoUpdate
	}
	return r.payload(dir, platform, quality, latest)
}

// ResolveCommit returns the descriptor stored for a specific commit.
func (r *Responder) ResolveCommit(commitID, platform, quality string) (*models.UpdateDefinition, error) {
	dir, err := r.updateDir(platform, quality)
	if err != nil {
		return nil, err
	}
	if !validSegment(commitID) {
		return nil, fmt.Errorf("%w: commit %q", ErrUnavailable, commitID)
	}
	def, err := LoadState(r.installersDir, platform, quality, commitID)
	if err != nil {
		r.logger.Warn("unable to load commit descriptor", "commit", commitID, "platform", platform, "quality", quality, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, commitID, err)
	}
	return r.payload(dir, platform, quality, def)
}

func (r *Responder) updateDir(platform, quality string) (string, error) {
	if !validSegment(platform) || !validSegment(quality) {
		return "", fmt.Errorf("%w: %s/%s", ErrUnavailable, platform, quality)
	}
	dir := filepath.Join(r.installersDir, platform, quality)
	if !utils.DirExists(dir) {
		r.logger.Warn("update build directory does not exist, check sync configuration", "dir", dir)
		return "", fmt.Errorf("%w: %s/%s", ErrUnavailable, platform, quality)
	}
	return dir, nil
}

func (r *Responder) payload(dir, platform, quality string, def *models.UpdateDefinition) (*models.UpdateDefinition, error) {
	pattern := filepath.Join(dir, utils.InstallerFilePrefix+def.Name+".*")
	file, err := utils.FirstFile(pattern)
	if err != nil || file == "" {
		r.logger.Warn("unable to find update payload", "pattern", pattern)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, pattern)
	}

	ok, err := utils.CheckFileSHA256(file, def.SHA256Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, file, err)
	}
	if !ok {
		r.logger.Warn("update payload hash mismatch, removing", "file", file, "expected", def.SHA256Hash)
		if err := os.Remove(file); err != nil {
			r.logger.Error("remove mismatched payload", "file", file, "error", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrHashMismatch, file)
	}

	out := *def
	out.URL = r.urlRoot + utils.ArtifactsURLPrefix + "/" + utils.InstallersDir + "/" +
		platform + "/" + quality + "/" + filepath.Base(file)
	r.logger.Debug("providing update", "platform", platform, "quality", quality, "file", file)
	return &out, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
