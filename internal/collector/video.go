package collector

import (
	"errors"

	"animepresence/internal/dom"
	"animepresence/internal/playback"
	"animepresence/internal/protocol"
)

// resolveVideo picks the video state source: a relayed snapshot with a known
// duration, then the page's own media elements, then same-origin frames.
func (c *Collector) resolveVideo() protocol.VideoState {
	if r := c.relayed; r != nil && r.Duration > 0 {
		snap := *r
		if snap.CurrentTimeFormatted == "" {
			snap.CurrentTimeFormatted = playback.FormatTime(snap.CurrentTime)
		}
		if snap.DurationFormatted == "" {
			snap.DurationFormatted = playback.FormatTime(snap.Duration)
		}
		return protocol.VideoState{Snapshot: snap, Found: true}
	}

	if m := c.findDirectMedia(); m != nil {
		return protocol.VideoState{Snapshot: playback.FromMedia(m), Found: true}
	}

	return protocol.NotFoundVideo()
}

func (c *Collector) findDirectMedia() dom.Media {
	for _, sel := range c.cfg.MediaSelectors {
		m, err := c.page.QueryMedia(sel)
		if err == nil && hasDuration(m) {
			return m
		}
	}

	for _, f := range c.page.Frames() {
		content, err := f.Content()
		if err != nil {
			if !errors.Is(err, dom.ErrCrossOrigin) {
				c.logger.Debug().Err(err).Str("src", f.Src()).Msg("frame unreadable")
			}
			continue
		}
		if content == nil {
			continue
		}
		m, err := content.QueryMedia("video")
		if err == nil && hasDuration(m) {
			return m
		}
	}
	return nil
}

func hasDuration(m dom.Media) bool {
	return m != nil && m.Duration() > 0
}
