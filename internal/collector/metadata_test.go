package collector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animepresence/internal/dom"
	"animepresence/internal/protocol"
)

func parse(t *testing.T, url, html string) *dom.HTMLDocument {
	t.Helper()
	doc, err := dom.ParseHTML(url, strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestPageStateFor(t *testing.T) {
	cases := map[string]protocol.PageState{
		"https://www.crunchyroll.com/watch/GG1U2J4/the-journeys-end": protocol.PageWatching,
		"https://www.crunchyroll.com/series/GG5H5XQ7D/frieren":       protocol.PageBrowsingSeries,
		"https://www.crunchyroll.com/":                               protocol.PageBrowsingHome,
		"https://www.crunchyroll.com":                                protocol.PageBrowsingHome,
		"https://www.crunchyroll.com/home":                           protocol.PageBrowsingHome,
		"https://www.crunchyroll.com/search?q=frieren":               protocol.PageSearching,
		"https://www.crunchyroll.com/history":                        protocol.PageBrowsingHistory,
		"https://www.crunchyroll.com/watchlist":                      protocol.PageBrowsingWatchlist,
		"https://www.crunchyroll.com/crunchylists":                   protocol.PageBrowsingWatchlist,
		"https://www.crunchyroll.com/simulcastcalendar":              protocol.PageBrowsingCalendar,
		"https://www.crunchyroll.com/news":                           protocol.PageBrowsing,
	}
	for url, want := range cases {
		assert.Equal(t, want, PageStateFor(url), url)
	}
}

func TestExtractMetadataFromSelectors(t *testing.T) {
	doc := parse(t, "https://www.crunchyroll.com/watch/G1/x", `<html><head>
<title>Watch Something Else Episode 9</title>
<meta property="og:image" content="https://img/og.jpg"></head><body>
<a href="/series/G5"><h4>  Frieren: Beyond Journey's End </h4></a>
<h1 class="title">The Journey's End</h1>
<div data-t="episode-info">S1 E1 - 24m</div>
<div data-t="season-dropdown"><button>S1: Frieren</button></div>
</body></html>`)

	meta := ExtractMetadata(doc, DefaultSelectors())
	assert.Equal(t, "Frieren: Beyond Journey's End", meta.Anime)
	assert.Equal(t, "The Journey's End", meta.EpisodeTitle)
	assert.Equal(t, "1", meta.EpisodeNumber)
	assert.Equal(t, "S1: Frieren", meta.SeasonTitle)
	assert.Equal(t, "https://img/og.jpg", meta.Thumbnail)
}

func TestExtractMetadataFromTitle(t *testing.T) {
	doc := parse(t, "https://www.crunchyroll.com/watch/G1/x", `<html><head>
<title>Watch Frieren (English Dub) Episode 12 – A Real Hero - Crunchyroll</title></head><body></body></html>`)

	meta := ExtractMetadata(doc, DefaultSelectors())
	assert.Equal(t, "Frieren", meta.Anime)
	assert.Equal(t, "12", meta.EpisodeNumber)
	assert.Equal(t, "A Real Hero", meta.EpisodeTitle)
	assert.Empty(t, meta.Thumbnail)
}

func TestExtractMetadataEpisodeFromURL(t *testing.T) {
	doc := parse(t, "https://www.crunchyroll.com/watch/G1/frieren-episode-7", `<html><head>
<title>Watch Frieren Episode 99</title></head><body><h4 class="title"><a>Frieren</a></h4></body></html>`)

	meta := ExtractMetadata(doc, DefaultSelectors())
	assert.Equal(t, "7", meta.EpisodeNumber, "URL slug wins over the document title")
	assert.Equal(t, "Frieren", meta.Anime)

	short := parse(t, "https://www.crunchyroll.com/watch/G1/s1e4", `<html><body></body></html>`)
	assert.Equal(t, "4", ExtractMetadata(short, DefaultSelectors()).EpisodeNumber)
}

func TestExtractMetadataNothingFound(t *testing.T) {
	meta := ExtractMetadata(emptyDoc{title: "Crunchyroll"}, DefaultSelectors())
	assert.Equal(t, Metadata{}, meta)
}

func TestParseTitle(t *testing.T) {
	show, num, sub := parseTitle("Watch Spy x Family (Subbed) 3 - Operation Strix - Crunchyroll")
	assert.Equal(t, "Spy x Family", show)
	assert.Equal(t, "3", num)
	assert.Equal(t, "Operation Strix", sub)

	show, num, sub = parseTitle("Crunchyroll - Home")
	assert.Empty(t, show)
	assert.Empty(t, num)
	assert.Empty(t, sub)
}
