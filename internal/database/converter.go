package database

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"vscmirror/internal/marketplace"
)

// FromDownload maps a finished download to its ledger row. The stored path
// is relative to root so the ledger survives moving the artifacts tree.
func FromDownload(root, kind, identity, version string, res *marketplace.DownloadResult) (*ArtifactDB, error) {
	if res == nil {
		return nil, fmt.Errorf("no download result for %s", identity)
	}
	rel, err := filepath.Rel(root, res.FilePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("artifact %s is outside %s", res.FilePath, root)
	}
	return &ArtifactDB{
		Path:         filepath.ToSlash(rel),
		Kind:         kind,
		Identity:     identity,
		Version:      version,
		SHA256:       res.SHA256,
		Size:         res.Size,
		DownloadedAt: time.Now().UTC(),
	}, nil
}
