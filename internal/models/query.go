package models

// QueryRequest is the body of POST /_apis/public/gallery/extensionquery.
type QueryRequest struct {
	Filters    []QueryFilter `json:"filters"`
	AssetTypes []string      `json:"assetTypes"`
	Flags      *int          `json:"flags"`
}

type QueryFilter struct {
	Criteria   []Criterion `json:"criteria"`
	PageNumber int         `json:"pageNumber"`
	PageSize   int         `json:"pageSize"`
	SortBy     int         `json:"sortBy"`
	SortOrder  int         `json:"sortOrder"`
}

// Criterion is the raw wire form. Either field may be missing in traffic
// seen from real clients.
type Criterion struct {
	FilterType *int    `json:"filterType"`
	Value      *string `json:"value"`
}

// NewCriterion builds a wire criterion, mostly for outgoing upstream queries.
func NewCriterion(ft FilterType, value string) Criterion {
	t := ft.Int()
	return Criterion{FilterType: &t, Value: &value}
}

type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

type QueryResult struct {
	Extensions     []*ExtensionRecord `json:"extensions"`
	PagingToken    *string            `json:"pagingToken"`
	ResultMetadata []ResultMetadata   `json:"resultMetadata"`
}

type ResultMetadata struct {
	MetadataType  string         `json:"metadataType"`
	MetadataItems []MetadataItem `json:"metadataItems"`
}

type MetadataItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TotalCount returns the ResultCount/TotalCount metadata of the first result.
func (r *QueryResponse) TotalCount() int {
	if len(r.Results) == 0 {
		return 0
	}
	for _, md := range r.Results[0].ResultMetadata {
		if md.MetadataType != "ResultCount" {
			continue
		}
		for _, item := range md.MetadataItems {
			if item.Name == "TotalCount" {
				return item.Count
			}
		}
	}
	return 0
}
