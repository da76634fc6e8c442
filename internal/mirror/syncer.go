package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"vscmirror/internal/config"
	"vscmirror/internal/database"
	"vscmirror/internal/extensions"
	"vscmirror/internal/marketplace"
	"vscmirror/internal/models"
	"vscmirror/internal/updates"
	"vscmirror/internal/utils"
)

// Ledger records every file the syncer mirrors.
type Ledger interface {
	Record(a *database.ArtifactDB) error
}

type Options struct {
	Sync         config.SyncConfig
	ArtifactsDir string
	Upstream     marketplace.Upstream
	// Ledger may be nil.
	Ledger Ledger
	Logger *slog.Logger
}

// Report summarises one sync cycle.
type Report struct {
	Installers int
	Extensions int
	Blocked    int
	Downloaded int64
	Bytes      int64
	Failures   int64
	Duration   time.Duration
}

// Syncer pulls installers and extensions from upstream into the artifacts
// tree and signals the gateway once a cycle completes.
type Syncer struct {
	cfg      config.SyncConfig
	root     string
	upstream marketplace.Upstream
	ledger   Ledger
	logger   *slog.Logger
}

func New(opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Sync
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Syncer{
		cfg:      cfg,
		root:     opts.ArtifactsDir,
		upstream: opts.Upstream,
		ledger:   opts.Ledger,
		logger:   logger,
	}
}

func (s *Syncer) installersDir() string { return filepath.Join(s.root, utils.InstallersDir) }
func (s *Syncer) extensionsDir() string { return filepath.Join(s.root, utils.ExtensionsDir) }

// Enabled reports whether the configuration asks for any work at all.
func (s *Syncer) Enabled() bool {
	c := s.cfg
	return c.Binaries || c.Extensions || c.Specified || c.Malicious || c.Existing || c.Search != "" || c.Name != ""
}

// Run repeats RunOnce every Sync.Frequency until ctx is done. A zero
// frequency runs a single cycle.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		report, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		s.logReport(report)

		if s.cfg.Frequency <= 0 {
			return nil
		}
		s.logger.Info("going to sleep", "for", s.cfg.Frequency.String(), "next", humanize.Time(time.Now().Add(s.cfg.Frequency)))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Frequency):
		}
	}
}

func (s *Syncer) logReport(r *Report) {
	s.logger.Info("sync complete",
		"installers", r.Installers,
		"extensions", humanize.Comma(int64(r.Extensions)),
		"blocked", r.Blocked,
		"downloaded", humanize.Comma(r.Downloaded),
		"size", humanize.Bytes(uint64(r.Bytes)),
		"failures", r.Failures,
		"took", r.Duration.Round(time.Millisecond).String(),
	)
}

// RunOnce performs one cycle. Failures of single items are logged and
// counted; only a cancelled context or an unusable artifacts tree abort it.
func (s *Syncer) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	if !s.Enabled() {
		s.logger.Info("nothing to do")
		return report, nil
	}
	if err := utils.EnsureDirectory(s.installersDir()); err != nil {
		return nil, err
	}
	if err := utils.EnsureDirectory(s.extensionsDir()); err != nil {
		return nil, err
	}

	if s.cfg.Binaries {
		s.logger.Info("syncing installers")
		n, err := s.syncInstallers(ctx, report)
		if err != nil {
			return nil, err
		}
		report.Installers = n
	}

	set := newExtensionSet()
	if s.cfg.Existing {
		s.logger.Info("refreshing existing extensions")
		s.collectExisting(ctx, set)
	}
	if s.cfg.Specified {
		s.logger.Info("syncing specified extensions")
		if err := s.collectSpecified(ctx, set); err != nil {
			s.logger.Warn("specified extensions skipped", "error", err)
		}
	}
	if s.cfg.Search != "" {
		s.logger.Info("searching extensions", "search", s.cfg.Search)
		recs, err := s.upstream.SearchByText(ctx, s.cfg.Search)
		if err != nil {
			s.logger.Warn("extension search failed", "search", s.cfg.Search, "error", err)
		}
		s.logger.Info("found extensions", "count", len(recs))
		set.add(recs...)
	}
	if s.cfg.Name != "" {
		s.logger.Info("checking extension", "name", s.cfg.Name)
		if rec, err := s.upstream.SearchByExtensionName(ctx, s.cfg.Name); err != nil {
			s.logger.Warn("extension lookup failed", "name", s.cfg.Name, "error", err)
		} else {
			set.add(rec)
		}
	}
	if s.cfg.Extensions {
		s.logger.Info("syncing recommended extensions")
		set.add(s.recommendations(ctx)...)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var blocked *marketplace.MaliciousList
	if s.cfg.Malicious {
		s.logger.Info("syncing malicious extension list")
		blocked = s.malicious(ctx)
		report.Blocked = set.removeBlocked(blocked, s.logger)
	}

	if set.len() > 0 {
		if err := s.syncExtensions(ctx, set, blocked, report); err != nil {
			return nil, err
		}
	}
	report.Extensions = set.len()

	if err := SignalUpdated(s.root); err != nil {
		return nil, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// SignalUpdated writes updated.json, which the gateway watches.
func SignalUpdated(root string) error {
	return utils.WriteJSON(filepath.Join(root, utils.UpdatedSignalFile), map[string]time.Time{
		"updated": time.Now().UTC(),
	})
}

func (s *Syncer) syncInstallers(ctx context.Context, report *Report) (int, error) {
	var saved atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, def := range updates.Candidates(s.cfg.Insider) {
		def := def
		g.Go(func() error {
			ok, err := s.upstream.CheckForUpdate(gctx, def, "")
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("update check failed", "identity", def.Identity, "quality", def.Quality, "error", err)
				atomic.AddInt64(&report.Failures, 1)
				return nil
			}
			if !ok {
				s.logger.Debug("no build published", "identity", def.Identity, "quality", def.Quality)
				return nil
			}
			s.logger.Info("installer", "identity", def.Identity, "quality", def.Quality, "version", def.ProductVersion)

			res, err := s.upstream.Download(gctx, marketplace.DownloadRequest{
				Kind:   database.KindInstaller,
				URL:    def.URL,
				Dest:   filepath.Join(updates.Dir(s.installersDir(), def), updates.PayloadName(def)),
				SHA256: def.SHA256Hash,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("installer download failed", "identity", def.Identity, "quality", def.Quality, "error", err)
				atomic.AddInt64(&report.Failures, 1)
				return nil
			}
			s.account(report, database.KindInstaller, def.Identity, def.Version, res)

			if err := updates.SaveState(s.installersDir(), def); err != nil {
				s.logger.Error("failed to save installer state", "identity", def.Identity, "error", err)
				atomic.AddInt64(&report.Failures, 1)
				return nil
			}
			saved.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(saved.Load()), nil
}

func (s *Syncer) account(report *Report, kind, identity, version string, res *marketplace.DownloadResult) {
	if !res.WasDownloaded {
		return
	}
	atomic.AddInt64(&report.Downloaded, 1)
	atomic.AddInt64(&report.Bytes, res.Size)
	if s.ledger == nil {
		return
	}
	row, err := database.FromDownload(s.root, kind, identity, version, res)
	if err == nil {
		err = s.ledger.Record(row)
	}
	if err != nil {
		s.logger.Warn("failed to record artifact", "file", res.FilePath, "error", err)
	}
}

// collectExisting re-resolves every mirrored extension by its upstream id.
func (s *Syncer) collectExisting(ctx context.Context, set *extensionSet) {
	paths, _ := filepath.Glob(filepath.Join(s.extensionsDir(), "*", utils.LatestManifestFile))
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		var stored struct {
			ExtensionID string `json:"extensionId"`
		}
		if err := utils.ReadJSON(path, &stored); err != nil || stored.ExtensionID == "" {
			s.logger.Debug("skipping unreadable manifest", "path", path, "error", err)
			continue
		}
		rec, err := s.upstream.SearchByExtensionID(ctx, stored.ExtensionID)
		if err != nil {
			s.logger.Warn("existing extension lookup failed", "extensionId", stored.ExtensionID, "error", err)
			continue
		}
		set.add(rec)
	}
}

// collectSpecified resolves the names in specified.json, creating an empty
// list when the file does not exist yet.
func (s *Syncer) collectSpecified(ctx context.Context, set *extensionSet) error {
	path := filepath.Join(s.root, utils.SpecifiedFile)
	var doc struct {
		Extensions []string `json:"extensions"`
	}
	err := utils.ReadJSON(path, &doc)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc.Extensions = []string{}
		if err := utils.WriteJSON(path, doc); err != nil {
			return err
		}
		s.logger.Info("created empty list of extensions to mirror", "path", path)
		return nil
	case errors.Is(err, utils.ErrEmptyJSON):
		return nil
	case err != nil:
		return err
	}

	for _, name := range doc.Extensions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rec, err := s.upstream.SearchByExtensionName(ctx, name)
		if err != nil {
			s.logger.Debug("specified extension not found", "name", name, "error", err)
			continue
		}
		s.logger.Info("adding extension to mirror", "name", name)
		set.add(rec)
	}
	return nil
}

// recommendations returns the top installed extensions plus everything the
// workspace recommendation feed names, all flagged as recommended.
func (s *Syncer) recommendations(ctx context.Context) []*models.ExtensionRecord {
	top, err := s.upstream.SearchTopN(ctx, s.cfg.TotalRecommended)
	if err != nil {
		s.logger.Warn("top extensions search failed", "error", err)
	}

	found := make(map[string]bool, len(top))
	for _, rec := range top {
		found[strings.ToLower(rec.Identity)] = true
	}

	feed, err := s.upstream.Recommendations(ctx)
	if err != nil {
		s.logger.Warn("recommendation feed unavailable", "error", err)
	} else {
		if err := writeRaw(filepath.Join(s.root, utils.RecommendationsFile), feed.Raw); err != nil {
			s.logger.Warn("failed to save recommendations", "error", err)
		}
		for _, name := range feed.Names {
			if found[strings.ToLower(name)] || ctx.Err() != nil {
				continue
			}
			rec, err := s.upstream.SearchByExtensionName(ctx, name)
			if err != nil {
				s.logger.Debug("recommended extension not found, likely removed", "name", name, "error", err)
				continue
			}
			found[strings.ToLower(rec.Identity)] = true
			top = append(top, rec)
		}
	}

	for _, rec := range top {
		rec.Recommended = true
		if s.cfg.Prerelease || !extensions.IsRecordPrerelease(rec) {
			continue
		}
		release, err := s.upstream.SearchReleaseByExtensionID(ctx, rec.ExtensionID)
		if err != nil {
			s.logger.Warn("release lookup failed", "identity", rec.Identity, "error", err)
			continue
		}
		rec.Versions = extensions.LatestReleaseVersions(release)
	}
	return top
}

func (s *Syncer) malicious(ctx context.Context) *marketplace.MaliciousList {
	list, err := s.upstream.Malicious(ctx)
	if err != nil {
		s.logger.Warn("malicious list unavailable", "error", err)
		return nil
	}
	if err := writeRaw(filepath.Join(s.root, utils.MaliciousFile), list.Raw); err != nil {
		s.logger.Warn("failed to save malicious list", "error", err)
	}
	return list
}

func writeRaw(path string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// syncExtensions downloads every asset of every collected extension, then
// the members of any extension packs found in their manifests.
func (s *Syncer) syncExtensions(ctx context.Context, set *extensionSet, blocked *marketplace.MaliciousList, report *Report) error {
	recs := set.records()
	total := len(recs)
	s.logger.Info("checking and downloading extensions", "count", total)

	var (
		done  atomic.Int64
		mu    sync.Mutex
		packs []string
	)
	process := func(gctx context.Context, rec *models.ExtensionRecord) {
		names := s.syncExtension(gctx, rec, report)
		mu.Lock()
		packs = append(packs, names...)
		mu.Unlock()
		if n := done.Add(1); n%100 == 0 {
			s.logger.Info("progress", "done", n, "of", total, "percent", fmt.Sprintf("%.1f", float64(n)/float64(total)*100))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			process(gctx, rec)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Strings(packs)
	for _, name := range packs {
		if set.has(name) || ctx.Err() != nil {
			continue
		}
		if blocked.Contains(name) {
			s.logger.Warn("preventing malicious extension from being downloaded", "identity", name)
			report.Blocked++
			continue
		}
		rec, err := s.upstream.SearchByExtensionName(ctx, name)
		if err != nil {
			s.logger.Debug("extension pack member not found", "name", name, "error", err)
			continue
		}
		s.logger.Debug("processing embedded extension", "identity", rec.Identity)
		set.add(rec)
		s.syncExtension(ctx, rec, report)
	}
	return ctx.Err()
}

// syncExtension mirrors the assets of rec and saves its manifests. It
// returns the extension pack members named by its package manifests.
func (s *Syncer) syncExtension(ctx context.Context, rec *models.ExtensionRecord, report *Report) []string {
	if !safeSegment(rec.Identity) {
		s.logger.Warn("refusing extension with unsafe identity", "identity", rec.Identity)
		atomic.AddInt64(&report.Failures, 1)
		return nil
	}
	var packs []string
	for _, v := range rec.Versions {
		if !safeSegment(v.Version) || (v.TargetPlatform != "" && !safeSegment(v.TargetPlatform)) {
			s.logger.Warn("refusing version with unsafe path", "identity", rec.Identity, "version", v.Version)
			continue
		}
		dir := filepath.Join(s.extensionsDir(), rec.Identity, v.Version, v.TargetPlatform)
		for _, f := range v.Files {
			if f.Source == "" || !safeSegment(f.AssetType) {
				s.logger.Warn("asset url is missing", "identity", rec.Identity, "version", v.Version, "asset", f.AssetType)
				continue
			}
			res, err := s.upstream.Download(ctx, marketplace.DownloadRequest{
				Kind: database.KindAsset,
				URL:  f.Source,
				Dest: filepath.Join(dir, f.AssetType),
			})
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("asset download failed", "identity", rec.Identity, "version", v.Version, "asset", f.AssetType, "error", err)
					atomic.AddInt64(&report.Failures, 1)
				}
				continue
			}
			s.account(report, database.KindAsset, rec.Identity, v.Version, res)
		}
		packs = append(packs, extensionPack(filepath.Join(dir, utils.ManifestAssetType))...)
	}

	if err := extensions.SaveManifest(s.extensionsDir(), rec); err != nil {
		s.logger.Error("failed to save extension manifest", "identity", rec.Identity, "error", err)
		atomic.AddInt64(&report.Failures, 1)
	}
	return packs
}

// extensionPack reads the extensionPack list of a package manifest.
func extensionPack(path string) []string {
	var manifest struct {
		ExtensionPack []string `json:"extensionPack"`
	}
	if err := utils.ReadJSON(path, &manifest); err != nil {
		return nil
	}
	return manifest.ExtensionPack
}

// safeSegment reports whether s can be used as a single path element.
func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// extensionSet collects extensions by identity, later additions replacing
// earlier ones, while remembering first insertion order.
type extensionSet struct {
	byIdentity map[string]*models.ExtensionRecord
	order      []string
}

func newExtensionSet() *extensionSet {
	return &extensionSet{byIdentity: make(map[string]*models.ExtensionRecord)}
}

func (s *extensionSet) add(recs ...*models.ExtensionRecord) {
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		key := strings.ToLower(rec.Identity)
		if _, ok := s.byIdentity[key]; !ok {
			s.order = append(s.order, key)
		}
		s.byIdentity[key] = rec
	}
}

func (s *extensionSet) has(identity string) bool {
	_, ok := s.byIdentity[strings.ToLower(identity)]
	return ok
}

func (s *extensionSet) len() int { return len(s.byIdentity) }

func (s *extensionSet) records() []*models.ExtensionRecord {
	out := make([]*models.ExtensionRecord, 0, len(s.order))
	for _, key := range s.order {
		if rec, ok := s.byIdentity[key]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *extensionSet) removeBlocked(list *marketplace.MaliciousList, logger *slog.Logger) int {
	if list == nil {
		return 0
	}
	removed := 0
	for key, rec := range s.byIdentity {
		if list.Contains(rec.Identity) {
			logger.Warn("preventing malicious extension from being downloaded", "identity", rec.Identity)
			delete(s.byIdentity, key)
			removed++
		}
	}
	return removed
}
