package guide

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fieldlane/fieldlane/internal/catalog"
	"github.com/fieldlane/fieldlane/internal/deeplink"
	"github.com/fieldlane/fieldlane/internal/services"
	"github.com/fieldlane/fieldlane/internal/store"
)

func writeExtinf(w io.Writer, tvgID, name, logo, group string, chno int) error {
	var b strings.Builder
	b.WriteString(`#EXTINF:-1 tvg-id="` + escapeAttr(tvgID) + `"`)
	b.WriteString(` tvg-name="` + escapeAttr(name) + `"`)
	if chno > 0 {
		fmt.Fprintf(&b, ` tvg-chno="%d"`, chno)
	}
	if logo != "" {
		b.WriteString(` tvg-logo="` + escapeAttr(logo) + `"`)
	}
	if group != "" {
		b.WriteString(` group-title="` + escapeAttr(group) + `"`)
	}
	b.WriteString("," + strings.ReplaceAll(name, ",", " ") + "\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func escapeAttr(s string) string {
	return strings.NewReplacer(`"`, `'`, "\n", " ", "\r", " ").Replace(s)
}

// WriteDirectM3U emits one channel per event. The stream URL is the selected
// deeplink after correction — a scheme URL unless forbidSchemes, in which
// case events whose selection has no HTTP form are skipped and reported in
// the missing-deeplink diagnostic instead.
func WriteDirectM3U(w io.Writer, events []*catalog.Event, selections map[string]*deeplink.Selection, forbidSchemes bool) error {
	if _, err := io.WriteString(w, "#EXTM3U\n"); err != nil {
		return err
	}
	for _, e := range events {
		if e.PVID == "" {
			continue
		}
		sel := selections[e.ID]
		if sel == nil {
			continue
		}
		streamURL := sel.URL
		if forbidSchemes {
			if sel.HTTPURL == "" {
				continue
			}
			streamURL = sel.HTTPURL
		}
		group := services.DisplayName(sel.Playable.LogicalService)
		if err := writeExtinf(w, DirectChannelID(e), e.Title, e.HeroImageURL, group, 0); err != nil {
			return err
		}
		if _, err := io.WriteString(w, streamURL+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteLanesM3U emits the generic lane channels pointing at the stub HLS
// resolver. chrome switches the stream URL to the launch redirect, which
// hands browser-capture clients an HTTP deeplink instead of an HLS stub.
func WriteLanesM3U(w io.Writer, lanesList []store.Lane, baseURL string, chrome bool) error {
	if _, err := io.WriteString(w, "#EXTM3U\n"); err != nil {
		return err
	}
	base := strings.TrimSuffix(baseURL, "/")
	for _, l := range lanesList {
		if err := writeExtinf(w, LaneChannelID(l.ID), l.DisplayName, "", "Event Lanes", l.LogicalNumber); err != nil {
			return err
		}
		streamURL := fmt.Sprintf("%s/lane/%d/stream.m3u8", base, l.ID)
		if chrome {
			streamURL = fmt.Sprintf("%s/api/lane/%d/launch?deeplink_format=http", base, l.ID)
		}
		if _, err := io.WriteString(w, streamURL+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteADBM3U emits provider-lane channels. When providerCode is "", all
// providers in plans are emitted (sorted for determinism); otherwise only the
// one provider.
func WriteADBM3U(w io.Writer, plans map[string][]store.ADBSlot, laneCounts map[string]int, baseURL, providerCode string) error {
	if _, err := io.WriteString(w, "#EXTM3U\n"); err != nil {
		return err
	}
	base := strings.TrimSuffix(baseURL, "/")
	codes := make([]string, 0, len(plans))
	for code := range plans {
		if providerCode == "" || code == providerCode {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	for _, code := range codes {
		label := services.DisplayName(code)
		for n := 1; n <= laneCounts[code]; n++ {
			name := fmt.Sprintf("%s Lane %d", label, n)
			if err := writeExtinf(w, ADBChannelID(code, n), name, "", label, 0); err != nil {
				return err
			}
			streamURL := fmt.Sprintf("%s/api/adb/lanes/%s/%d/deeplink?format=text", base, code, n)
			if _, err := io.WriteString(w, streamURL+"\n"); err != nil {
				return err
			}
		}
	}
	return nil
}
