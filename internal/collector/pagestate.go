package collector

import (
	"net/url"
	"strings"

	"animepresence/internal/protocol"
)

// PageStateFor classifies a page by its URL path.
func PageStateFor(rawURL string) protocol.PageState {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	if path == "" {
		path = "/"
	}

	switch {
	case strings.Contains(path, "/watch/"):
		return protocol.PageWatching
	case strings.Contains(path, "/series/"):
		return protocol.PageBrowsingSeries
	case path == "/" || strings.Contains(path, "/home"):
		return protocol.PageBrowsingHome
	case strings.Contains(path, "/search"):
		return protocol.PageSearching
	case strings.Contains(path, "/history"):
		return protocol.PageBrowsingHistory
	case strings.Contains(path, "/watchlist"), strings.Contains(path, "/crunchylists"):
		return protocol.PageBrowsingWatchlist
	case strings.Contains(path, "/simulcastcalendar"):
		return protocol.PageBrowsingCalendar
	}
	return protocol.PageBrowsing
}
