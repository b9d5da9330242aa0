package card

import "strings"

// Filter reason codes. Stable strings: they are counted and reported, never
// silently dropped.
const (
	ReasonMissingTitle  = "missing_title"
	ReasonMissingPrice  = "missing_price"
	ReasonInvalidURL    = "invalid_url"
	ReasonRefurbished   = "refurbished_not_allowed"
	ReasonBundle        = "bundle_not_allowed"
	ReasonCarrierLocked = "carrier_locked_not_allowed"
	ReasonAccessoryOnly = "accessory_only"
)

// minTitleLength is the minimum usable title length in runes.
const minTitleLength = 3

// Keyword sets are Spanish-market specific, matched case-insensitively
// against the title.
var (
	refurbishedKeywords = []string{"reacondicionado", "reacondicionada"}

	// "regalo" alone is deliberately excluded: too broad, matches gift-wrap
	// mentions. Only "de regalo" (bundled as a gift) triggers the rule.
	bundleKeywords = []string{
		"de regalo", "+ airpods", "incluye airpods", "incluye airepods", "incluye regalo",
	}

	lockedKeywords = []string{
		"at&t", "telcel", "solo at&t", "solo telcel", "bloqueado", "locked",
	}

	accessoryKeywords = []string{
		"funda", "case", "mica", "protector", "cargador", "cable",
		"auricular", "audifonos", "headset", "speaker", "bocina",
		"adaptador", "hub", "dock", "stylus", "lapiz", "pencil",
		"strap", "correa", "brazo", "mount", "soporte", "holder",
		"skin", "cover", "wraps", "film", "tempered glass",
	}
)

// Toggles controls which otherwise-filtered categories are allowed through.
type Toggles struct {
	AllowRefurbished bool `yaml:"allow_refurbished" env:"ALLOW_REFURBISHED"`
	AllowBundles     bool `yaml:"allow_bundles" env:"ALLOW_BUNDLES"`
	AllowLocked      bool `yaml:"allow_locked" env:"ALLOW_LOCKED"`
}

// Classify applies the eligibility business rules to a listing. Checks run
// in order and the first match wins. This layer never consults identity or
// enrichment state: a card missing its item ID is not filtered on that basis.
func Classify(title string, priceMXN float64, permalink string, toggles Toggles) (bool, []string) {
	if len(strings.TrimSpace(title)) < minTitleLength {
		return true, []string{ReasonMissingTitle}
	}

	if priceMXN <= 0 {
		return true, []string{ReasonMissingPrice}
	}

	if permalink == "" || !strings.Contains(strings.ToLower(permalink), "mercadolibre") {
		return true, []string{ReasonInvalidURL}
	}

	titleLower := strings.ToLower(title)

	if !toggles.AllowRefurbished && containsAny(titleLower, refurbishedKeywords) {
		return true, []string{ReasonRefurbished}
	}

	if !toggles.AllowBundles && containsAny(titleLower, bundleKeywords) {
		return true, []string{ReasonBundle}
	}

	if !toggles.AllowLocked && containsAny(titleLower, lockedKeywords) {
		return true, []string{ReasonCarrierLocked}
	}

	if containsAny(titleLower, accessoryKeywords) {
		return true, []string{ReasonAccessoryOnly}
	}

	return false, nil
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
