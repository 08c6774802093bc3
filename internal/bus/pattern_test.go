package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatch(t *testing.T) {
	p, err := ParsePattern("*://*.crunchyroll.com/*")
	require.NoError(t, err)

	cases := map[string]bool{
		"https://www.crunchyroll.com/watch/G1/ep":    true,
		"http://crunchyroll.com/":                    true,
		"https://static.crunchyroll.com/player.html": true,
		"https://crunchyroll.com":                    false,
		"https://evilcrunchyroll.com/":               false,
		"https://crunchyroll.com.evil.io/":           false,
		"ftp://www.crunchyroll.com/":                 false,
		"":                                           false,
	}
	for url, want := range cases {
		assert.Equal(t, want, p.Match(url), url)
	}
}

func TestParsePatternErrors(t *testing.T) {
	for _, raw := range []string{"crunchyroll.com", "gopher://x/*", "*://cr*.com/*"} {
		_, err := ParsePattern(raw)
		assert.Error(t, err, raw)
	}
}
