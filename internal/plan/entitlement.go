package plan

// Allotment is the credit-metering mode of a plan tier. A metered tier
// enforces balance checks on every charge; an unmetered tier bypasses them.
// Both carry the monthly refill applied by the reset job (0 means none).
// This replaces the -1 "unlimited" sentinel of earlier plan tables so the
// bypass can never be reached through arithmetic comparison.
type Allotment struct {
	unmetered bool
	monthly   int64
}

// Metered builds an allotment whose balance is enforced on charges.
func Metered(monthly int64) Allotment {
	return Allotment{monthly: monthly}
}

// Unmetered builds an allotment that bypasses balance checks entirely.
func Unmetered(monthly int64) Allotment {
	return Allotment{unmetered: true, monthly: monthly}
}

// IsUnmetered reports whether charges skip balance enforcement.
func (a Allotment) IsUnmetered() bool { return a.unmetered }

// MonthlyCredits returns the refill applied on a monthly reset.
func (a Allotment) MonthlyCredits() int64 { return a.monthly }

// ExportFormat is a deliverable file format gated by plan tier.
type ExportFormat string

const (
	ExportPDF  ExportFormat = "pdf"
	ExportPPTX ExportFormat = "pptx"
	ExportPNG  ExportFormat = "png"
)

// Feature flags, mirrored from the product plan matrix.
const (
	FeatureBasicGeneration     = "basic_generation"
	FeatureLimitedTemplates    = "limited_templates"
	FeatureBasicThemes         = "basic_themes"
	FeatureWebSharing          = "web_sharing"
	FeatureUnlimitedGeneration = "unlimited_generation"
	FeatureAllTemplates        = "all_templates"
	FeatureAllThemes           = "all_themes"
	FeatureCustomBranding      = "custom_branding"
	FeatureAnalytics           = "analytics"
	FeatureAdvancedAnalytics   = "advanced_analytics"
	FeatureTeamCollaboration   = "team_collaboration"
	FeaturePrioritySupport     = "priority_support"
	FeatureAPIAccess           = "api_access"
	FeatureWhiteLabel          = "white_label"
)

// Entitlement is the static configuration of one plan tier.
type Entitlement struct {
	Tier                  Tier
	Name                  string
	PriceUSD              int64
	Allotment             Allotment
	SignupGrantCredits    int64
	MaxCardsPerGeneration int
	ExportFormats         []ExportFormat
	Features              []string
}

var allExports = []ExportFormat{ExportPDF, ExportPPTX, ExportPNG}

var plusFeatures = []string{
	FeatureUnlimitedGeneration,
	FeatureAllTemplates,
	FeatureAllThemes,
	FeatureCustomBranding,
	FeatureAnalytics,
	FeatureTeamCollaboration,
	FeaturePrioritySupport,
}

var proFeatures = []string{
	FeatureUnlimitedGeneration,
	FeatureAllTemplates,
	FeatureAllThemes,
	FeatureCustomBranding,
	FeatureAdvancedAnalytics,
	FeatureTeamCollaboration,
	FeaturePrioritySupport,
	FeatureAPIAccess,
	FeatureWhiteLabel,
}

// entitlements is total over the tier enumeration; the resolver tests
// guard that property.
var entitlements = map[Tier]Entitlement{
	TierFree: {
		Tier:                  TierFree,
		Name:                  "Free",
		PriceUSD:              0,
		Allotment:             Metered(0),
		SignupGrantCredits:    400,
		MaxCardsPerGeneration: 10,
		ExportFormats:         nil,
		Features: []string{
			FeatureBasicGeneration,
			FeatureLimitedTemplates,
			FeatureBasicThemes,
			FeatureWebSharing,
		},
	},
	TierPlus: {
		Tier:                  TierPlus,
		Name:                  "Plus",
		PriceUSD:              8,
		Allotment:             Unmetered(1000),
		MaxCardsPerGeneration: 30,
		ExportFormats:         []ExportFormat{ExportPDF, ExportPPTX},
		Features:              plusFeatures,
	},
	TierPro: {
		Tier:                  TierPro,
		Name:                  "Pro",
		PriceUSD:              18,
		Allotment:             Unmetered(4000),
		MaxCardsPerGeneration: 60,
		ExportFormats:         allExports,
		Features:              proFeatures,
	},
	TierUltra: {
		Tier:                  TierUltra,
		Name:                  "Ultra",
		PriceUSD:              100,
		Allotment:             Unmetered(20000),
		MaxCardsPerGeneration: 75,
		ExportFormats:         allExports,
		Features:              proFeatures,
	},
	TierTeam: {
		Tier:                  TierTeam,
		Name:                  "Team",
		PriceUSD:              20,
		Allotment:             Unmetered(2000),
		MaxCardsPerGeneration: 50,
		ExportFormats:         allExports,
		Features:              proFeatures,
	},
	TierBusiness: {
		Tier:                  TierBusiness,
		Name:                  "Business",
		PriceUSD:              40,
		Allotment:             Unmetered(5000),
		MaxCardsPerGeneration: 75,
		ExportFormats:         allExports,
		Features:              proFeatures,
	},
}
