package models

import (
	"fmt"
	"strings"
)

// FilterType is a gallery query criterion kind.
type FilterType int

const (
	FilterTag              FilterType = 1
	FilterExtensionID      FilterType = 4
	FilterCategory         FilterType = 5
	FilterExtensionName    FilterType = 7
	FilterTarget           FilterType = 8
	FilterFeatured         FilterType = 9
	FilterSearchText       FilterType = 10
	FilterExcludeWithFlags FilterType = 12
	FilterUndefinedType    FilterType = 14
)

var filterTypeNames = map[FilterType]string{
	FilterTag:              "Tag",
	FilterExtensionID:      "ExtensionId",
	FilterCategory:         "Category",
	FilterExtensionName:    "ExtensionName",
	FilterTarget:           "Target",
	FilterFeatured:         "Featured",
	FilterSearchText:       "SearchText",
	FilterExcludeWithFlags: "ExcludeWithFlags",
	FilterUndefinedType:    "UndefinedType",
}

// ParseFilterType decodes a wire filterType.
func ParseFilterType(v int) (FilterType, error) {
	ft := FilterType(v)
	if _, ok := filterTypeNames[ft]; !ok {
		return 0, fmt.Errorf("unknown filter type %d", v)
	}
	return ft, nil
}

func (f FilterType) Int() int { return int(f) }

func (f FilterType) String() string {
	if name, ok := filterTypeNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FilterType(%d)", int(f))
}

// SortBy is the key a query result is ordered by.
type SortBy int

const (
	SortNoneOrRelevance SortBy = 0
	SortLastUpdatedDate SortBy = 1
	SortTitle           SortBy = 2
	SortPublisherName   SortBy = 3
	SortInstallCount    SortBy = 4
	SortPublishedDate   SortBy = 5
	SortAverageRating   SortBy = 6
	SortWeightedRating  SortBy = 12
)

var sortByNames = map[SortBy]string{
	SortNoneOrRelevance: "NoneOrRelevance",
	SortLastUpdatedDate: "LastUpdatedDate",
	SortTitle:           "Title",
	SortPublisherName:   "PublisherName",
	SortInstallCount:    "InstallCount",
	SortPublishedDate:   "PublishedDate",
	SortAverageRating:   "AverageRating",
	SortWeightedRating:  "WeightedRating",
}

func ParseSortBy(v int) (SortBy, error) {
	s := SortBy(v)
	if _, ok := sortByNames[s]; !ok {
		return 0, fmt.Errorf("unknown sort by %d", v)
	}
	return s, nil
}

func (s SortBy) Int() int { return int(s) }

func (s SortBy) String() string {
	if name, ok := sortByNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SortBy(%d)", int(s))
}

// SortOrder is the requested direction for SortBy.
type SortOrder int

const (
	SortOrderDefault    SortOrder = 0
	SortOrderAscending  SortOrder = 1
	SortOrderDescending SortOrder = 2
)

func ParseSortOrder(v int) (SortOrder, error) {
	switch SortOrder(v) {
	case SortOrderDefault, SortOrderAscending, SortOrderDescending:
		return SortOrder(v), nil
	}
	return 0, fmt.Errorf("unknown sort order %d", v)
}

func (s SortOrder) Int() int { return int(s) }

func (s SortOrder) String() string {
	switch s {
	case SortOrderDefault:
		return "Default"
	case SortOrderAscending:
		return "Ascending"
	case SortOrderDescending:
		return "Descending"
	}
	return fmt.Sprintf("SortOrder(%d)", int(s))
}

// QueryFlags selects which parts of an extension the gallery returns.
type QueryFlags int

const (
	FlagNoneDefined                QueryFlags = 0x0
	FlagIncludeVersions            QueryFlags = 0x1
	FlagIncludeFiles               QueryFlags = 0x2
	FlagIncludeCategoryAndTags     QueryFlags = 0x4
	FlagIncludeSharedAccounts      QueryFlags = 0x8
	FlagIncludeVersionProperties   QueryFlags = 0x10
	FlagExcludeNonValidated        QueryFlags = 0x20
	FlagIncludeInstallationTargets QueryFlags = 0x40
	FlagIncludeAssetURI            QueryFlags = 0x80
	FlagIncludeStatistics          QueryFlags = 0x100
	FlagIncludeLatestVersionOnly   QueryFlags = 0x200
	FlagUnpublished                QueryFlags = 0x1000
)

var queryFlagNames = []struct {
	flag QueryFlags
	name string
}{
	{FlagIncludeVersions, "IncludeVersions"},
	{FlagIncludeFiles, "IncludeFiles"},
	{FlagIncludeCategoryAndTags, "IncludeCategoryAndTags"},
	{FlagIncludeSharedAccounts, "IncludeSharedAccounts"},
	{FlagIncludeVersionProperties, "IncludeVersionProperties"},
	{FlagExcludeNonValidated, "ExcludeNonValidated"},
	{FlagIncludeInstallationTargets, "IncludeInstallationTargets"},
	{FlagIncludeAssetURI, "IncludeAssetUri"},
	{FlagIncludeStatistics, "IncludeStatistics"},
	{FlagIncludeLatestVersionOnly, "IncludeLatestVersionOnly"},
	{FlagUnpublished, "Unpublished"},
}

const knownQueryFlags = FlagIncludeVersions | FlagIncludeFiles | FlagIncludeCategoryAndTags |
	FlagIncludeSharedAccounts | FlagIncludeVersionProperties | FlagExcludeNonValidated |
	FlagIncludeInstallationTargets | FlagIncludeAssetURI | FlagIncludeStatistics |
	FlagIncludeLatestVersionOnly | FlagUnpublished

// ParseQueryFlags accepts any combination of known bits.
func ParseQueryFlags(v int) (QueryFlags, error) {
	f := QueryFlags(v)
	if v < 0 || f&^knownQueryFlags != 0 {
		return 0, fmt.Errorf("unknown query flags 0x%x", v&^int(knownQueryFlags))
	}
	return f, nil
}

func (f QueryFlags) Has(flag QueryFlags) bool { return f&flag == flag }

func (f QueryFlags) Int() int { return int(f) }

func (f QueryFlags) String() string {
	if f == FlagNoneDefined {
		return "NoneDefined"
	}
	var parts []string
	for _, n := range queryFlagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// DefaultQueryFlags is what the mirror asks upstream for when no flags are given.
const DefaultQueryFlags = FlagIncludeFiles | FlagIncludeVersionProperties | FlagIncludeAssetURI |
	FlagIncludeStatistics | FlagIncludeLatestVersionOnly

// ReleaseQueryFlags returns every version so a release can be picked among them.
const ReleaseQueryFlags = FlagIncludeFiles | FlagIncludeVersionProperties | FlagIncludeAssetURI |
	FlagIncludeStatistics | FlagIncludeVersions
