package collector

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"animepresence/internal/dom"
)

// Selectors lists the DOM patterns tried, in order, for each metadata field.
type Selectors struct {
	Series        []string
	EpisodeTitle  []string
	EpisodeNumber []string
	Season        []string
	Thumbnail     []string // read from src
	MetaImage     string   // read from content
}

func DefaultSelectors() Selectors {
	return Selectors{
		Series: []string{
			`a[href*="/series/"] h4`,
			`[data-t="show-title-link"]`,
			`.show-title-link`,
			`a.show-title-link`,
			`.erc-series-title a`,
			`.current-media-parent-ref`,
			`h4.title a`,
			`[class*="erc-current-media-info"] a[href*="/series/"]`,
			`.erc-watch-header a[href*="/series/"]`,
		},
		EpisodeTitle: []string{
			`[data-t="episode-title"]`,
			`.episode-title`,
			`.erc-current-media-info h1`,
			`h1.title`,
			`[class*="episode-info"] h1`,
			`.erc-watch-header h1`,
		},
		EpisodeNumber: []string{
			`[data-t="episode-info"]`,
			`.episode-number`,
			`[class*="episode-info"]`,
			`.erc-playable-collection-item--is-selected .playable-card-endpoint__episode-text`,
		},
		Season: []string{
			`[data-t="season-dropdown"] button`,
			`.seasons-select button`,
			`[class*="season-selector"]`,
		},
		Thumbnail: []string{
			`.erc-current-media-info img[src]`,
			`[data-t="episode-thumbnail"] img[src]`,
		},
		MetaImage: `meta[property="og:image"]`,
	}
}

var (
	episodeTextPattern = regexp.MustCompile(`(?i)E(?:pisode)?\s*(\d+)`)
	watchPathPattern   = regexp.MustCompile(`/watch/[^/]+/([^/]+)`)
	slugEpisodePattern = regexp.MustCompile(`(?i)episode-(\d+)`)
	slugShortPattern   = regexp.MustCompile(`(?i)e(\d+)`)
	titlePattern       = regexp.MustCompile(`(?i)^Watch\s+(.+?)\s+(?:Episode\s+)?(\d+)(?:\s*[-\x{2013}]\s*(.+))?`)
	dubSubPattern      = regexp.MustCompile(`(?i)\s*\((?:English\s+)?(?:Dub|Sub)(?:bed)?\)`)
	siteSuffixPattern  = regexp.MustCompile(`(?i)\s*-\s*Crunchyroll.*$`)
)

// Metadata is what a page says about the current show and episode.
type Metadata struct {
	Anime         string
	EpisodeTitle  string
	EpisodeNumber string
	SeasonTitle   string
	Thumbnail     string
	URL           string
}

// ExtractMetadata applies the selector lists first, then the URL and the
// document title. The first non-empty value wins per field.
func ExtractMetadata(doc dom.Document, sel Selectors) Metadata {
	meta := Metadata{
		Anime:        firstText(doc, sel.Series),
		EpisodeTitle: firstText(doc, sel.EpisodeTitle),
		SeasonTitle:  firstText(doc, sel.Season),
		URL:          doc.URL(),
	}

	meta.EpisodeNumber = firstMatch(doc, sel.EpisodeNumber, episodeTextPattern)
	if meta.EpisodeNumber == "" {
		meta.EpisodeNumber = episodeFromURL(meta.URL)
	}

	if meta.Anime == "" || meta.EpisodeNumber == "" || meta.EpisodeTitle == "" {
		show, num, sub := parseTitle(doc.Title())
		meta.Anime = lo.CoalesceOrEmpty(meta.Anime, show)
		meta.EpisodeNumber = lo.CoalesceOrEmpty(meta.EpisodeNumber, num)
		meta.EpisodeTitle = lo.CoalesceOrEmpty(meta.EpisodeTitle, sub)
	}

	meta.Thumbnail = firstAttr(doc, sel.Thumbnail, "src")
	if meta.Thumbnail == "" && sel.MetaImage != "" {
		meta.Thumbnail = firstAttr(doc, []string{sel.MetaImage}, "content")
	}

	return meta
}

// parseTitle reads "Watch <show> [Episode ]<num>[ - <subtitle>]".
func parseTitle(title string) (show, num, subtitle string) {
	m := titlePattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", "", ""
	}
	show = strings.TrimSpace(dubSubPattern.ReplaceAllString(m[1], ""))
	num = m[2]
	if m[3] != "" {
		subtitle = strings.TrimSpace(siteSuffixPattern.ReplaceAllString(m[3], ""))
	}
	return show, num, subtitle
}

func episodeFromURL(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	m := watchPathPattern.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	if n := slugEpisodePattern.FindStringSubmatch(m[1]); n != nil {
		return n[1]
	}
	if n := slugShortPattern.FindStringSubmatch(m[1]); n != nil {
		return n[1]
	}
	return ""
}

// Selector failures are scraping misses, never errors.
func firstText(doc dom.Document, selectors []string) string {
	for _, s := range selectors {
		el, err := doc.QuerySelector(s)
		if err != nil || el == nil {
			continue
		}
		if text := strings.TrimSpace(el.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstMatch(doc dom.Document, selectors []string, re *regexp.Regexp) string {
	for _, s := range selectors {
		el, err := doc.QuerySelector(s)
		if err != nil || el == nil {
			continue
		}
		if m := re.FindStringSubmatch(el.Text()); m != nil {
			return m[1]
		}
	}
	return ""
}

func firstAttr(doc dom.Document, selectors []string, attr string) string {
	for _, s := range selectors {
		el, err := doc.QuerySelector(s)
		if err != nil || el == nil {
			continue
		}
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
