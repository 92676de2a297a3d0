package services

import "strings"

// displayNames maps logical service codes to the labels shown in guide
// group-titles and the filter UI.
var displayNames = map[string]string{
	"sportscenter":   "ESPN",
	"espn_plus":      "ESPN+",
	"espn_web":       "ESPN (Web)",
	"espn_linear":    "ESPN Linear",
	"peacock":        "Peacock",
	"peacock_web":    "Peacock",
	"pplus":          "Paramount+",
	"pplus_web":      "Paramount+ (Web)",
	"cbstve":         "CBS",
	"cbs_sports_web": "CBS Sports",
	"cbssportsapp":   "CBS Sports",
	"fsapp":          "FOX Sports",
	"foxone":         "FOX One",
	"fox_sports_web": "FOX Sports (Web)",
	"max":            "Max",
	"dazn_web":       "DAZN",
	"open.dazn.com":  "DAZN",
	"kayo":           "Kayo",
	"bein":           "beIN Sports",
	"fanatiz":        "Fanatiz",
	"victory":        "Victory+",
	"gotham":         "Gotham Sports",
	"gametime":       "Gametime",
	"f1tv":           "F1 TV",
	"apple_tv":       "Apple TV",
	"apple_mls":      "Apple TV (MLS)",
	"apple_mlb":      "Apple TV (MLB)",
	"apple_nba":      "Apple TV (NBA)",
	"apple_nhl":      "Apple TV (NHL)",
	"apple_other":    "Apple TV (Other)",
	"aiv":            "Prime Video",
	"aiv_prime":      "Prime Video",
	"aiv_peacock":    "Peacock (via Prime)",
	"aiv_max":        "Max (via Prime)",
	"aiv_dazn":       "DAZN (via Prime)",
	"aiv_fanduel":    "FanDuel (via Prime)",
	"vixapp":         "ViX",
	"vix_web":        "ViX (Web)",
	"nbcsportstve":   "NBC Sports",
	"nbc_sports_web": "NBC Sports (Web)",
	"nflctv":         "NFL+",
	"nfl_web":        "NFL (Web)",
	"watchtnt":       "TNT",
	"tnt_web":        "TNT (Web)",
	"watchtru":       "truTV",
	"trutv_web":      "truTV (Web)",
	"https":          "Web — Other",
}

// DisplayName returns the human label for a logical service code. Unknown
// codes are title-cased from the code itself so new services degrade visibly
// instead of invisibly.
func DisplayName(code string) string {
	if name, ok := displayNames[code]; ok {
		return name
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "Unknown"
	}
	parts := strings.FieldsFunc(code, func(r rune) bool { return r == '_' || r == '.' })
	for i, p := range parts {
		if len(p) > 0 {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

// defaultPriorities scores logical services for deeplink selection when the
// user has not overridden. Higher is better; unlisted codes get 0.
var defaultPriorities = map[string]int{
	"sportscenter":   90,
	"espn_plus":      88,
	"espn_linear":    86,
	"espn_web":       60,
	"peacock":        80,
	"peacock_web":    78,
	"pplus":          76,
	"pplus_web":      60,
	"fsapp":          75,
	"foxone":         74,
	"cbstve":         73,
	"cbssportsapp":   72,
	"max":            70,
	"apple_mls":      68,
	"apple_mlb":      68,
	"apple_nba":      68,
	"apple_nhl":      68,
	"apple_tv":       66,
	"apple_other":    64,
	"dazn_web":       62,
	"kayo":           58,
	"bein":           56,
	"fanatiz":        54,
	"victory":        52,
	"gotham":         50,
	"gametime":       48,
	"f1tv":           65,
	"vixapp":         44,
	"nbcsportstve":   63,
	"nflctv":         61,
	"watchtnt":       59,
	"watchtru":       57,
	"aiv":            40,
	"aiv_prime":      42,
	"aiv_peacock":    46,
	"aiv_max":        46,
	"aiv_dazn":       46,
	"aiv_fanduel":    41,
	"https":          10,
}

// DefaultPriority returns the built-in selection score for a code.
func DefaultPriority(code string) int {
	return defaultPriorities[code]
}

// adbProviders aggregates logical services into one provider code for
// per-provider lane scheduling. The aggregation is symmetric: the same table
// drives both the admin display and the scheduler.
var adbProviders = map[string][]string{
	"sportscenter": {"sportscenter", "espn_plus", "espn_linear", "espn_web"},
	"peacock":      {"peacock", "peacock_web"},
	"pplus":        {"pplus", "pplus_web", "cbstve", "cbssportsapp", "cbs_sports_web"},
	"fox":          {"fsapp", "foxone", "fox_sports_web"},
	"max":          {"max", "watchtnt", "watchtru", "tnt_web", "trutv_web"},
	"apple":        {"apple_tv", "apple_mls", "apple_mlb", "apple_nba", "apple_nhl", "apple_other"},
	"aiv":          {"aiv", "aiv_prime", "aiv_peacock", "aiv_max", "aiv_dazn", "aiv_fanduel"},
	"dazn":         {"dazn_web"},
	"kayo":         {"kayo"},
	"bein":         {"bein"},
	"fanatiz":      {"fanatiz"},
	"victory":      {"victory"},
	"gotham":       {"gotham"},
	"nbc":          {"nbcsportstve", "nbc_sports_web"},
	"nfl":          {"nflctv", "nfl_web"},
	"vix":          {"vixapp", "vix_web"},
	"f1tv":         {"f1tv"},
}

// ADBServices returns the logical services aggregated under a provider code,
// or nil for unknown codes.
func ADBServices(providerCode string) []string {
	svcs := adbProviders[providerCode]
	if svcs == nil {
		return nil
	}
	out := make([]string, len(svcs))
	copy(out, svcs)
	return out
}

// ADBProviderFor returns the provider code a logical service schedules under.
// Services outside every aggregation schedule under their own code.
func ADBProviderFor(logical string) string {
	for code, svcs := range adbProviders {
		for _, s := range svcs {
			if s == logical {
				return code
			}
		}
	}
	return logical
}

// ADBProviderCodes lists the known provider codes, for the admin lane config.
func ADBProviderCodes() []string {
	out := make([]string, 0, len(adbProviders))
	for code := range adbProviders {
		out = append(out, code)
	}
	return out
}
