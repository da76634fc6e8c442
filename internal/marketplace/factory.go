package marketplace

import (
	"fmt"
)

const (
	microsoftGalleryURL = "https://marketplace.visualstudio.com/_apis/public/gallery/extensionquery"
	openVSXGalleryURL   = "https://open-vsx.org/vscode/gallery/extensionquery"
	updateAPIURL        = "https://update.code.visualstudio.com/api/update/"
	recommendationsURL  = "https://az764295.vo.msecnd.net/extensions/workspaceRecommendations.json.gz"
	maliciousURL        = "https://az764295.vo.msecnd.net/extensions/marketplace.json"
)

// Endpoints are the upstream URLs a Client talks to. Installers, the
// recommendation feed and the malicious list always come from Microsoft;
// only the gallery differs between marketplaces.
type Endpoints struct {
	Gallery         string
	Updates         string
	Recommendations string
	Malicious       string
}

// EndpointsFor returns the endpoints for a marketplace type. An empty type
// means the Microsoft marketplace.
func EndpointsFor(marketplaceType MarketplaceType) (Endpoints, error) {
	e := Endpoints{
		Updates:         updateAPIURL,
		Recommendations: recommendationsURL,
		Malicious:       maliciousURL,
	}
	switch marketplaceType {
	case MarketplaceTypeMicrosoft, "":
		e.Gallery = microsoftGalleryURL
	case MarketplaceTypeOpenVSX:
		e.Gallery = openVSXGalleryURL
	default:
		return Endpoints{}, fmt.Errorf("unknown marketplace type: %s", marketplaceType)
	}
	return e, nil
}
