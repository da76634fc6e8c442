package utils

const (
	ContentTypeHeader  = "Content-Type"
	CacheControlHeader = "Cache-Control"
	LocationHeader     = "Location"
)

const (
	JSONContentType        = "application/json"
	OctetStreamContentType = "application/octet-stream"
)

// Artifact tree layout, relative to the mirror root.
const (
	InstallersDir        = "installers"
	ExtensionsDir        = "extensions"
	LatestManifestFile   = "latest.json"
	VersionManifestFile  = "extension.json"
	RecommendationsFile  = "recommendations.json"
	MaliciousFile        = "malicious.json"
	UpdatedSignalFile    = "updated.json"
	SpecifiedFile        = "specified.json"
	ArtifactsURLPrefix   = "/artifacts"
	InstallerFilePrefix  = "vscode-"
	ManifestAssetType    = "Microsoft.VisualStudio.Code.Manifest"
	VSIXPackageAssetType = "Microsoft.VisualStudio.Services.VSIXPackage"
)

const (
	CORSAllowOrigin      = "*"
	CORSAllowMethods     = "OPTIONS,GET,POST,PATCH,PUT,DELETE"
	CORSAllowHeaders     = "Content-Type,Authorization,Accept,X-Requested-With,X-Market-Client-Id,X-Market-User-Id,X-Client-Commit,X-Client-Name,X-Client-Version,X-Machine-Id,VSCode-SessionId,accept"
	CORSAllowCredentials = "true"
	CORSMaxAge           = "86400"
)

const (
	HTTPAPIVersion         = "application/json;api-version=3.0-preview.1"
	HTTPCacheControl       = "no-cache, no-store, max-age=0, must-revalidate"
	HTTPPragma             = "no-cache"
	HTTPExpires            = "0"
	HTTPContentTypeOptions = "nosniff"
	HTTPXSSProtection      = "0"
	HTTPFrameOptions       = "DENY"
	HTTPHSTS               = "max-age=31536000 ; includeSubDomains"
)
