package extensions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"vscmirror/internal/metrics"
	"vscmirror/internal/models"
)

// ErrBadQuery marks a gallery request that could not be understood.
var ErrBadQuery = errors.New("bad gallery query")

const (
	defaultMaxPageSize = 1000
	fallbackCriteria   = 2
)

// Criterion is a validated query criterion.
type Criterion struct {
	Type  models.FilterType
	Value string
}

// Query is a validated gallery request. Only the first filter of a request
// is honoured.
type Query struct {
	Criteria []Criterion
	// RawCriteria counts every criterion sent, including incomplete ones.
	RawCriteria int
	SortBy      models.SortBy
	SortOrder   models.SortOrder
	PageNumber  int
	PageSize    int
	Flags       models.QueryFlags
}

func badQuery(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadQuery, fmt.Sprintf(format, args...))
}

// DecodeQuery reads and validates a request body.
func DecodeQuery(r io.Reader, logger *slog.Logger) (*Query, error) {
	var req models.QueryRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, badQuery("decode body: %v", err)
	}
	return ParseQuery(&req, logger)
}

// ParseQuery validates req. Criteria missing a type or value are dropped.
func ParseQuery(req *models.QueryRequest, logger *slog.Logger) (*Query, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(req.Filters) == 0 {
		return nil, badQuery("no filters")
	}
	if req.Flags == nil {
		return nil, badQuery("flags missing")
	}
	filter := req.Filters[0]
	if filter.Criteria == nil {
		return nil, badQuery("criteria missing")
	}

	q := &Query{
		RawCriteria: len(filter.Criteria),
		PageNumber:  filter.PageNumber,
		PageSize:    filter.PageSize,
	}

	var err error
	if q.SortBy, err = models.ParseSortBy(filter.SortBy); err != nil {
		return nil, badQuery("%v", err)
	}
	if q.SortOrder, err = models.ParseSortOrder(filter.SortOrder); err != nil {
		return nil, badQuery("%v", err)
	}
	if q.Flags, err = models.ParseQueryFlags(*req.Flags); err != nil {
		// Flags do not shape the response, so newer clients sending bits we
		// do not know about are still served.
		logger.Debug("ignoring unknown query flags", "flags", *req.Flags, "error", err)
		q.Flags = models.QueryFlags(*req.Flags)
	}

	for _, c := range filter.Criteria {
		if c.FilterType == nil || c.Value == nil {
			logger.Debug("skipping incomplete criterion")
			continue
		}
		ft, err := models.ParseFilterType(*c.FilterType)
		if err != nil {
			return nil, badQuery("%v", err)
		}
		q.Criteria = append(q.Criteria, Criterion{Type: ft, Value: *c.Value})
	}
	return q, nil
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	MaxPageSize int
	Logger      *slog.Logger
	Metrics     metrics.GatewayMetrics
}

// Engine answers gallery queries against index snapshots. It never touches
// the network or the disk.
type Engine struct {
	maxPageSize int
	logger      *slog.Logger
	metrics     metrics.GatewayMetrics
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = defaultMaxPageSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	return &Engine{maxPageSize: opts.MaxPageSize, logger: opts.Logger, metrics: opts.Metrics}
}

// Result is the outcome of a query before it is wrapped in the wire
// envelope.
type Result struct {
	Extensions []*models.ExtensionRecord
	Total      int
	Fallback   bool
}

// Response wraps the result in the gallery envelope.
func (r *Result) Response() *models.QueryResponse {
	exts := r.Extensions
	if exts == nil {
		exts = []*models.ExtensionRecord{}
	}
	return &models.QueryResponse{
		Results: []models.QueryResult{{
			Extensions: exts,
			ResultMetadata: []models.ResultMetadata{{
				MetadataType:  "ResultCount",
				MetadataItems: []models.MetadataItem{{Name: "TotalCount", Count: r.Total}},
			}},
		}},
	}
}

// Query validates req and runs it against snap.
func (e *Engine) Query(snap *Snapshot, req *models.QueryRequest) (*models.QueryResponse, error) {
	q, err := ParseQuery(req, e.logger)
	if err != nil {
		return nil, err
	}
	return e.Search(snap, q).Response(), nil
}

// Search filters, sorts and pages snap according to q.
func (e *Engine) Search(snap *Snapshot, q *Query) *Result {
	matches := e.match(snap, q.Criteria)

	fallback := false
	if len(matches) == 0 && q.RawCriteria <= fallbackCriteria {
		matches = snap.Recommended()
		fallback = true
	}

	sortBy, sortOrder := q.SortBy, q.SortOrder
	if sortBy == models.SortNoneOrRelevance {
		sortBy, sortOrder = models.SortInstallCount, models.SortOrderDescending
	}
	sorted := append([]*models.ExtensionRecord(nil), matches...)
	SortRecords(sorted, sortBy, sortOrder)

	e.metrics.IncQuery(q.SortBy.String(), fallback)
	return &Result{
		Extensions: e.page(sorted, q.PageNumber, q.PageSize),
		Total:      len(sorted),
		Fallback:   fallback,
	}
}

// match returns the union of the records matched by each filtering
// criterion, each record once. With no filtering criteria nothing matches.
func (e *Engine) match(snap *Snapshot, criteria []Criterion) []*models.ExtensionRecord {
	byType := make(map[models.FilterType][]string)
	var order []models.FilterType
	for _, c := range criteria {
		switch c.Type {
		case models.FilterExtensionID, models.FilterExtensionName, models.FilterSearchText:
			if _, ok := byType[c.Type]; !ok {
				order = append(order, c.Type)
			}
			byType[c.Type] = append(byType[c.Type], c.Value)
		case models.FilterTarget, models.FilterExcludeWithFlags:
		default:
			e.logger.Info("unsupported filter type", "filterType", c.Type.String(), "value", c.Value)
		}
	}
	if len(order) == 0 {
		return nil
	}

	var out []*models.ExtensionRecord
	for _, rec := range snap.Records() {
		for _, ft := range order {
			if matchesAny(rec, ft, byType[ft]) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func matchesAny(rec *models.ExtensionRecord, ft models.FilterType, values []string) bool {
	for _, v := range values {
		if matchCriterion(rec, ft, v) {
			return true
		}
	}
	return false
}

func matchCriterion(rec *models.ExtensionRecord, ft models.FilterType, value string) bool {
	switch ft {
	case models.FilterExtensionID:
		return rec.ExtensionID == value
	case models.FilterExtensionName:
		return strings.EqualFold(rec.Identity, value)
	case models.FilterSearchText:
		needle := strings.ToLower(value)
		return strings.Contains(strings.ToLower(rec.Identity), needle) ||
			strings.Contains(strings.ToLower(rec.DisplayName), needle) ||
			strings.Contains(strings.ToLower(rec.ShortDescription), needle)
	}
	return false
}

func (e *Engine) page(recs []*models.ExtensionRecord, number, size int) []*models.ExtensionRecord {
	if size <= 0 || size > e.maxPageSize {
		size = e.maxPageSize
	}
	if number < 1 {
		number = 1
	}
	start := (number - 1) * size
	if start >= len(recs) {
		return []*models.ExtensionRecord{}
	}
	end := start + size
	if end > len(recs) {
		end = len(recs)
	}
	return recs[start:end]
}

// SortRecords orders recs in place. Numeric and date keys run descending
// unless Ascending is asked for. Name keys run the other way round: an
// Ascending request yields reverse alphabetical order.
func SortRecords(recs []*models.ExtensionRecord, by models.SortBy, order models.SortOrder) {
	desc := order != models.SortOrderAscending

	var less func(a, b *models.ExtensionRecord) bool
	switch by {
	case models.SortPublisherName:
		desc = !desc
		less = func(a, b *models.ExtensionRecord) bool {
			return a.Publisher.PublisherName < b.Publisher.PublisherName
		}
	case models.SortInstallCount:
		less = statLess(models.StatInstall)
	case models.SortAverageRating:
		less = statLess(models.StatAverageRating)
	case models.SortWeightedRating:
		less = statLess(models.StatWeightedRating)
	case models.SortLastUpdatedDate:
		less = func(a, b *models.ExtensionRecord) bool { return a.LastUpdated.Before(b.LastUpdated) }
	case models.SortPublishedDate:
		less = func(a, b *models.ExtensionRecord) bool { return a.PublishedDate.Before(b.PublishedDate) }
	default:
		desc = !desc
		less = func(a, b *models.ExtensionRecord) bool { return a.DisplayName < b.DisplayName }
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if desc {
			return less(recs[j], recs[i])
		}
		return less(recs[i], recs[j])
	})
}

func statLess(name string) func(a, b *models.ExtensionRecord) bool {
	return func(a, b *models.ExtensionRecord) bool { return a.Stat(name) < b.Stat(name) }
}
