package extensions

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"vscmirror/internal/models"
)

func querySnapshot() *Snapshot {
	acme := testRecord("acme.tool", "Acme Tool", 10, true)
	beta := testRecord("beta.lint", "Beta Linter", 500, false)
	gamma := testRecord("gamma.fmt", "Formatter", 50, true)
	gamma.ShortDescription = "Formats code like a linter would"
	delta := testRecord("delta.theme", "Zed Theme", 50, false)
	delta.LastUpdated = testTime.Add(time.Hour)
	return NewSnapshot(acme, beta, gamma, delta)
}

func intPtr(v int) *int { return &v }

func request(sortBy, sortOrder int, criteria ...models.Criterion) *models.QueryRequest {
	return &models.QueryRequest{
		Filters: []models.QueryFilter{{
			Criteria:   criteria,
			PageNumber: 1,
			PageSize:   50,
			SortBy:     sortBy,
			SortOrder:  sortOrder,
		}},
		Flags: intPtr(950),
	}
}

func crit(ft models.FilterType, v string) models.Criterion { return models.NewCriterion(ft, v) }

func runQuery(t *testing.T, req *models.QueryRequest) *Result {
	t.Helper()
	q, err := ParseQuery(req, quietLogger())
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	return NewEngine(EngineOptions{Logger: quietLogger()}).Search(querySnapshot(), q)
}

func TestParseQueryRejects(t *testing.T) {
	cases := map[string]*models.QueryRequest{
		"noFilters":     {Flags: intPtr(0)},
		"noFlags":       {Filters: []models.QueryFilter{{Criteria: []models.Criterion{}}}},
		"noCriteria":    {Filters: []models.QueryFilter{{}}, Flags: intPtr(0)},
		"badFilterType": request(0, 0, models.Criterion{FilterType: intPtr(99), Value: new(string)}),
		"badSortBy":     request(7, 0),
		"badSortOrder":  request(0, 3),
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseQuery(req, quietLogger()); !errors.Is(err, ErrBadQuery) {
				t.Fatalf("expected ErrBadQuery, got %v", err)
			}
		})
	}
}

func TestDecodeQuery(t *testing.T) {
	if _, err := DecodeQuery(strings.NewReader(`{"filters": [`), quietLogger()); !errors.Is(err, ErrBadQuery) {
		t.Fatalf("expected ErrBadQuery for malformed body, got %v", err)
	}

	body := `{"filters":[{"criteria":[{"filterType":8,"value":"Microsoft.VisualStudio.Code"},{"filterType":7},{"filterType":7,"value":"acme.tool"}],"pageNumber":1,"pageSize":10,"sortBy":0,"sortOrder":0}],"assetTypes":[],"flags":33554432}`
	q, err := DecodeQuery(strings.NewReader(body), quietLogger())
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if len(q.Criteria) != 2 || q.RawCriteria != 3 {
		t.Fatalf("expected 2 usable of 3 criteria, got %d of %d", len(q.Criteria), q.RawCriteria)
	}
}

func TestQueryExtensionName(t *testing.T) {
	res := runQuery(t, request(0, 0,
		crit(models.FilterTarget, "Microsoft.VisualStudio.Code"),
		crit(models.FilterExtensionName, "ACME.Tool"),
	))
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"acme.tool"}) {
		t.Fatalf("unexpected result %v", got)
	}
	if res.Fallback {
		t.Fatal("did not expect fallback")
	}
}

func TestQueryExtensionIDCaseSensitive(t *testing.T) {
	res := runQuery(t, request(0, 0, crit(models.FilterExtensionID, "id-beta.lint")))
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"beta.lint"}) {
		t.Fatalf("unexpected result %v", got)
	}

	res = runQuery(t, request(0, 0,
		crit(models.FilterExtensionID, "ID-BETA.LINT"),
		crit(models.FilterTarget, "a"),
		crit(models.FilterTarget, "b"),
	))
	if len(res.Extensions) != 0 {
		t.Fatalf("expected case-sensitive miss, got %v", identities(res.Extensions))
	}
}

func TestQuerySearchTextCountsOnce(t *testing.T) {
	res := runQuery(t, request(0, 0, crit(models.FilterSearchText, "LINT")))
	got := identities(res.Extensions)
	if !reflect.DeepEqual(got, []string{"beta.lint", "gamma.fmt"}) {
		t.Fatalf("unexpected result %v", got)
	}
	if res.Total != 2 {
		t.Fatalf("expected total 2, got %d", res.Total)
	}
}

func TestQuerySameTypeCriteriaAreOred(t *testing.T) {
	res := runQuery(t, request(0, 0,
		crit(models.FilterExtensionName, "acme.tool"),
		crit(models.FilterExtensionName, "delta.theme"),
		crit(models.FilterExtensionName, "missing.ext"),
	))
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"delta.theme", "acme.tool"}) {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestQueryMixedIDAndNameLookup(t *testing.T) {
	res := runQuery(t, request(0, 0,
		crit(models.FilterTarget, "Microsoft.VisualStudio.Code"),
		crit(models.FilterExtensionID, "id-beta.lint"),
		crit(models.FilterExtensionName, "delta.theme"),
	))
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"beta.lint", "delta.theme"}) {
		t.Fatalf("unexpected result %v", got)
	}
	if res.Total != 2 || res.Fallback {
		t.Fatalf("total = %d, fallback = %v", res.Total, res.Fallback)
	}

	res = runQuery(t, request(0, 0,
		crit(models.FilterExtensionID, "id-beta.lint"),
		crit(models.FilterExtensionName, "delta.theme"),
	))
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"beta.lint", "delta.theme"}) || res.Fallback {
		t.Fatalf("unexpected result %v (fallback %v)", got, res.Fallback)
	}
}

func TestQueryDistinctTypesAreUnioned(t *testing.T) {
	res := runQuery(t, request(0, 0,
		crit(models.FilterExtensionName, "acme.tool"),
		crit(models.FilterSearchText, "linter"),
		crit(models.FilterExtensionID, "id-beta.lint"),
	))
	got := identities(res.Extensions)
	if !reflect.DeepEqual(got, []string{"beta.lint", "gamma.fmt", "acme.tool"}) {
		t.Fatalf("unexpected result %v", got)
	}
	if res.Total != 3 {
		t.Fatalf("expected each record once, total %d", res.Total)
	}
}

func TestQueryFallsBackToRecommended(t *testing.T) {
	res := runQuery(t, request(0, 0,
		crit(models.FilterTarget, "Microsoft.VisualStudio.Code"),
		crit(models.FilterExcludeWithFlags, "4096"),
	))
	if !res.Fallback {
		t.Fatal("expected fallback")
	}
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"gamma.fmt", "acme.tool"}) {
		t.Fatalf("unexpected recommended %v", got)
	}
}

func TestQuerySort(t *testing.T) {
	cases := []struct {
		name  string
		by    models.SortBy
		order models.SortOrder
		want  []string
	}{
		{"installsDefault", models.SortInstallCount, models.SortOrderDefault,
			[]string{"beta.lint", "delta.theme", "gamma.fmt", "acme.tool"}},
		{"installsAscending", models.SortInstallCount, models.SortOrderAscending,
			[]string{"acme.tool", "delta.theme", "gamma.fmt", "beta.lint"}},
		{"titleAscendingIsReversed", models.SortTitle, models.SortOrderAscending,
			[]string{"delta.theme", "gamma.fmt", "beta.lint", "acme.tool"}},
		{"titleDefault", models.SortTitle, models.SortOrderDefault,
			[]string{"acme.tool", "beta.lint", "gamma.fmt", "delta.theme"}},
		{"publisherDefault", models.SortPublisherName, models.SortOrderDefault,
			[]string{"acme.tool", "beta.lint", "delta.theme", "gamma.fmt"}},
		{"publisherAscendingIsReversed", models.SortPublisherName, models.SortOrderAscending,
			[]string{"gamma.fmt", "delta.theme", "beta.lint", "acme.tool"}},
		{"lastUpdated", models.SortLastUpdatedDate, models.SortOrderDefault,
			[]string{"delta.theme", "acme.tool", "beta.lint", "gamma.fmt"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recs := append([]*models.ExtensionRecord(nil), querySnapshot().Records()...)
			SortRecords(recs, tc.by, tc.order)
			if got := identities(recs); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSortInstallCountDescending(t *testing.T) {
	recs := []*models.ExtensionRecord{
		testRecord("pub.a", "A", 10, false),
		testRecord("pub.b", "B", 50, false),
		testRecord("pub.c", "C", 5, false),
	}
	SortRecords(recs, models.SortInstallCount, models.SortOrderDescending)
	if got := identities(recs); !reflect.DeepEqual(got, []string{"pub.b", "pub.a", "pub.c"}) {
		t.Fatalf("got %v", got)
	}
}

func TestQueryRelevanceMeansInstallsDescending(t *testing.T) {
	res := runQuery(t, request(int(models.SortNoneOrRelevance), int(models.SortOrderAscending),
		crit(models.FilterSearchText, "")))
	if got := identities(res.Extensions); got[0] != "beta.lint" {
		t.Fatalf("expected most installed first, got %v", got)
	}
}

func TestQueryPaginationKeepsTotal(t *testing.T) {
	req := request(int(models.SortInstallCount), 0, crit(models.FilterSearchText, ""))
	req.Filters[0].PageSize = 3
	req.Filters[0].PageNumber = 2

	res := runQuery(t, req)
	if res.Total != 4 {
		t.Fatalf("expected total 4, got %d", res.Total)
	}
	if got := identities(res.Extensions); !reflect.DeepEqual(got, []string{"acme.tool"}) {
		t.Fatalf("unexpected page %v", got)
	}

	req.Filters[0].PageNumber = 5
	if res := runQuery(t, req); len(res.Extensions) != 0 || res.Total != 4 {
		t.Fatalf("expected empty page with total 4, got %d/%d", len(res.Extensions), res.Total)
	}
}

func TestQueryEnvelope(t *testing.T) {
	engine := NewEngine(EngineOptions{Logger: quietLogger()})
	resp, err := engine.Query(querySnapshot(), request(0, 0, crit(models.FilterExtensionName, "nope.none"),
		crit(models.FilterTarget, "a"), crit(models.FilterTarget, "b")))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"results":[{"extensions":[],"pagingToken":null,"resultMetadata":[{"metadataType":"ResultCount","metadataItems":[{"name":"TotalCount","count":0}]}]}]}`
	if string(data) != want {
		t.Fatalf("unexpected envelope\n got %s\nwant %s", data, want)
	}
}
