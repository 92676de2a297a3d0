package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sports is the closed set every upstream sport/category/genre string is
// consolidated into. Keeping the set small stops the filter UI from exploding
// with one pseudo-sport per upstream spelling.
var Sports = []string{
	"Soccer", "Tennis", "Basketball", "Hockey", "Rugby", "Handball",
	"Motorsports", "Combat Sports", "Equestrian", "Cricket", "Golf",
	"Volleyball", "Athletics", "Baseball", "American Football",
	"Table Tennis", "Darts", "Lacrosse", "Netball", "Gridiron",
	"Water Sports", "Winter Sports", "Cycling", "Olympic Sports", "Other",
}

// sportAliases maps lowercase substrings to the canonical sport. Ordered:
// earlier rows win, so the specific ("table tennis") precedes the general
// ("tennis").
var sportAliases = []struct{ substr, sport string }{
	{"table tennis", "Table Tennis"},
	{"ping pong", "Table Tennis"},
	{"beach volleyball", "Volleyball"},
	{"soccer", "Soccer"},
	{"football (soccer)", "Soccer"},
	{"futbol", "Soccer"},
	{"fútbol", "Soccer"},
	{"premier league", "Soccer"},
	{"la liga", "Soccer"},
	{"serie a", "Soccer"},
	{"bundesliga", "Soccer"},
	{"mls", "Soccer"},
	{"uefa", "Soccer"},
	{"concacaf", "Soccer"},
	{"tennis", "Tennis"},
	{"atp", "Tennis"},
	{"wta", "Tennis"},
	{"basketball", "Basketball"},
	{"nba", "Basketball"},
	{"wnba", "Basketball"},
	{"hoops", "Basketball"},
	{"ice hockey", "Hockey"},
	{"hockey", "Hockey"},
	{"nhl", "Hockey"},
	{"rugby", "Rugby"},
	{"handball", "Handball"},
	{"motorsport", "Motorsports"},
	{"formula 1", "Motorsports"},
	{"formula one", "Motorsports"},
	{"f1", "Motorsports"},
	{"nascar", "Motorsports"},
	{"indycar", "Motorsports"},
	{"motogp", "Motorsports"},
	{"racing", "Motorsports"},
	{"boxing", "Combat Sports"},
	{"mma", "Combat Sports"},
	{"ufc", "Combat Sports"},
	{"wrestling", "Combat Sports"},
	{"martial arts", "Combat Sports"},
	{"kickboxing", "Combat Sports"},
	{"equestrian", "Equestrian"},
	{"horse racing", "Equestrian"},
	{"cricket", "Cricket"},
	{"golf", "Golf"},
	{"pga", "Golf"},
	{"volleyball", "Volleyball"},
	{"athletics", "Athletics"},
	{"track and field", "Athletics"},
	{"marathon", "Athletics"},
	{"baseball", "Baseball"},
	{"mlb", "Baseball"},
	{"softball", "Baseball"},
	{"american football", "American Football"},
	{"nfl", "American Football"},
	{"college football", "American Football"},
	{"ncaa football", "American Football"},
	{"darts", "Darts"},
	{"lacrosse", "Lacrosse"},
	{"netball", "Netball"},
	{"gridiron", "Gridiron"},
	{"aussie rules", "Gridiron"},
	{"afl", "Gridiron"},
	{"swimming", "Water Sports"},
	{"surfing", "Water Sports"},
	{"diving", "Water Sports"},
	{"sailing", "Water Sports"},
	{"rowing", "Water Sports"},
	{"skiing", "Winter Sports"},
	{"snowboard", "Winter Sports"},
	{"biathlon", "Winter Sports"},
	{"skating", "Winter Sports"},
	{"curling", "Winter Sports"},
	{"cycling", "Cycling"},
	{"tour de france", "Cycling"},
	{"olympic", "Olympic Sports"},
	{"olympics", "Olympic Sports"},
}

// NormalizeSport maps an upstream sport/category/genre string into the closed
// set. Returns "" when the string doesn't look like a sport at all.
func NormalizeSport(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	for _, a := range sportAliases {
		if strings.Contains(s, a.substr) {
			return a.sport
		}
	}
	// Bare "football" is ambiguous upstream: US sources mean gridiron football,
	// everyone else means soccer. ESPN/FOX/CBS rows that reach here have
	// already matched nfl/college aliases, so default to Soccer.
	if strings.Contains(s, "football") {
		return "Soccer"
	}
	if strings.Contains(s, "sport") {
		return "Other"
	}
	return ""
}

// NormalizeSports consolidates a list of upstream strings into unique
// canonical sports, preserving first-hit order.
func NormalizeSports(raw []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range raw {
		sp := NormalizeSport(r)
		if sp == "" || seen[sp] {
			continue
		}
		seen[sp] = true
		out = append(out, sp)
	}
	return out
}

var yearToken = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var nonEventMarkers = []string{
	"replay", "re-air", "reair", "encore", "classic", "rewind", "archive",
	"highlights", "best of", "magazine", "countdown", "preview show",
	"press conference", "documentary", "film room",
}

// DropReason explains why an ingest row was discarded; "" means keep.
// Replays, archival footage, magazine/highlight shows and rows with no sport
// classification never enter the catalog.
func DropReason(title, category string, sports []string, now time.Time) string {
	if len(sports) == 0 {
		return "no sport classification"
	}
	lt := strings.ToLower(title + " " + category)
	for _, m := range nonEventMarkers {
		if strings.Contains(lt, m) {
			return "non-event content: " + m
		}
	}
	// A prior-year token in the title is archival footage ("2019 World Series").
	for _, y := range yearToken.FindAllString(title, -1) {
		n, err := strconv.Atoi(y)
		if err == nil && n < now.Year() {
			return fmt.Sprintf("archival year token %d", n)
		}
	}
	return ""
}

// openMojiBySport maps canonical sports to an OpenMoji PNG used as the hero
// image of last resort, so every emitted channel has artwork.
var openMojiBySport = map[string]string{
	"Soccer":            "26BD",
	"Tennis":            "1F3BE",
	"Basketball":        "1F3C0",
	"Hockey":            "1F3D2",
	"Rugby":             "1F3C9",
	"Handball":          "1F93E",
	"Motorsports":       "1F3CE",
	"Combat Sports":     "1F94A",
	"Equestrian":        "1F3C7",
	"Cricket":           "1F3CF",
	"Golf":              "26F3",
	"Volleyball":        "1F3D0",
	"Athletics":         "1F3C3",
	"Baseball":          "26BE",
	"American Football": "1F3C8",
	"Table Tennis":      "1F3D3",
	"Darts":             "1F3AF",
	"Lacrosse":          "1F94D",
	"Netball":           "1F3D0",
	"Gridiron":          "1F3C8",
	"Water Sports":      "1F3CA",
	"Winter Sports":     "26F7",
	"Cycling":           "1F6B4",
	"Olympic Sports":    "1F3C5",
	"Other":             "1F3DF",
}

// HeroImage picks a guaranteed hero URL: the first non-empty candidate in the
// caller's best-source order, else the sport's OpenMoji PNG. Candidates are
// provider-specific (versus-style tile > live tile > logo); callers pass them
// already ordered.
func HeroImage(sport string, candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	code, ok := openMojiBySport[sport]
	if !ok {
		code = openMojiBySport["Other"]
	}
	return "https://openmoji.org/data/color/618x618/" + code + ".png"
}
