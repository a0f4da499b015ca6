package models

// SiteCode identifies a protected scope of the portfolio site.
type SiteCode string

const (
	// SiteAdminPanel is the administrator content-management panel.
	SiteAdminPanel SiteCode = "admin-panel"
	// SiteClientApp is the companion mobile client channel (always administrator-scoped).
	SiteClientApp SiteCode = "client-app"
	// SiteGallery and SiteFileDrop are shareable, password-protected pages.
	SiteGallery  SiteCode = "gallery"
	SiteFileDrop SiteCode = "file-drop"
)

// siteCodes is the closed set of scopes the service accepts.
var siteCodes = map[SiteCode]bool{
	SiteAdminPanel: true,
	SiteClientApp:  true,
	SiteGallery:    true,
	SiteFileDrop:   true,
}

// ValidSiteCode reports whether code names a known protected scope.
func ValidSiteCode(code SiteCode) bool {
	return siteCodes[code]
}

// IsAdministrator reports whether the scope carries administrator privileges.
func (c SiteCode) IsAdministrator() bool {
	return c == SiteAdminPanel || c == SiteClientApp
}

// ShareableSiteCode reports whether the scope is unlocked via an ephemeral
// shareable password rather than the admin password.
func ShareableSiteCode(code SiteCode) bool {
	return siteCodes[code] && !code.IsAdministrator()
}

// SecretClass selects which signing secret a token is bound to.
type SecretClass int

const (
	SecretAdmin SecretClass = iota
	SecretSite
	SecretClientApp
)

func (c SecretClass) String() string {
	switch c {
	case SecretAdmin:
		return "admin"
	case SecretSite:
		return "site"
	case SecretClientApp:
		return "client-app"
	default:
		return "unknown"
	}
}

// verifyCandidates maps a scope to the ordered list of secrets tried during
// verification. The admin panel accepts site-signed tokens second so a scoped
// session upgraded to admin during rotation still verifies.
var verifyCandidates = map[SiteCode][]SecretClass{
	SiteAdminPanel: {SecretAdmin, SecretSite},
	SiteClientApp:  {SecretClientApp},
}

// VerifyCandidates returns the ordered secret classes to try for a scope.
func VerifyCandidates(code SiteCode) []SecretClass {
	if classes, ok := verifyCandidates[code]; ok {
		return classes
	}
	return []SecretClass{SecretSite}
}

// SigningClass returns the secret class used to mint tokens for a scope.
func SigningClass(code SiteCode) SecretClass {
	switch code {
	case SiteAdminPanel:
		return SecretAdmin
	case SiteClientApp:
		return SecretClientApp
	default:
		return SecretSite
	}
}
