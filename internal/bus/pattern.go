package bus

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is a browser-style URL match pattern, e.g. "*://*.crunchyroll.com/*".
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

func ParsePattern(raw string) (*Pattern, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return nil, fmt.Errorf("pattern %q: missing scheme separator", raw)
	}

	host, path := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host, path = rest[:i], rest[i:]
	}

	var b strings.Builder
	b.WriteString("^")

	switch scheme {
	case "*":
		b.WriteString("https?")
	case "http", "https", "ws", "wss", "file":
		b.WriteString(scheme)
	default:
		return nil, fmt.Errorf("pattern %q: unsupported scheme %q", raw, scheme)
	}
	b.WriteString("://")

	switch {
	case host == "*":
		b.WriteString(`[^/:]+`)
	case strings.HasPrefix(host, "*."):
		b.WriteString(`([^/:]+\.)?`)
		b.WriteString(regexp.QuoteMeta(host[2:]))
	case strings.Contains(host, "*"):
		return nil, fmt.Errorf("pattern %q: wildcard must lead the host", raw)
	default:
		b.WriteString(regexp.QuoteMeta(host))
	}
	b.WriteString(`(:\d+)?`)

	b.WriteString(strings.ReplaceAll(regexp.QuoteMeta(path), `\*`, ".*"))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", raw, err)
	}
	return &Pattern{raw: raw, re: re}, nil
}

func (p *Pattern) Match(url string) bool {
	return p.re.MatchString(url)
}

func (p *Pattern) String() string { return p.raw }
