package marketplace

import (
	"context"

	"vscmirror/internal/models"
)

// Upstream is everything the mirror needs from the remote services.
type Upstream interface {
	SearchByText(ctx context.Context, text string) ([]*models.ExtensionRecord, error)
	SearchTopN(ctx context.Context, n int) ([]*models.ExtensionRecord, error)
	SearchByExtensionName(ctx context.Context, name string) (*models.ExtensionRecord, error)
	SearchByExtensionID(ctx context.Context, id string) (*models.ExtensionRecord, error)
	SearchReleaseByExtensionID(ctx context.Context, id string) (*models.ExtensionRecord, error)

	Recommendations(ctx context.Context) (*Recommendations, error)
	Malicious(ctx context.Context) (*MaliciousList, error)
	CheckForUpdate(ctx context.Context, def *models.UpdateDefinition, commitID string) (bool, error)
	Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error)
}

// MarketplaceType selects which gallery the mirror pulls extensions from.
type MarketplaceType string

const (
	MarketplaceTypeMicrosoft MarketplaceType = "microsoft"
	MarketplaceTypeOpenVSX   MarketplaceType = "open-vsx"
)
