// Package dom describes the slice of a browser document the observer and the
// collector need. Implementations live with whatever embeds them; ParseHTML
// provides a static one.
package dom

import (
	"errors"

	"animepresence/internal/playback"
	"animepresence/internal/protocol"
)

// ErrCrossOrigin is returned when a frame's document cannot be read from the
// current browsing context.
var ErrCrossOrigin = errors.New("cross-origin frame access denied")

type Element interface {
	Text() string
	Attr(name string) (string, bool)
}

type Document interface {
	URL() string
	Title() string
	// QuerySelector returns nil, nil when nothing matches and an error for an
	// unsupported selector.
	QuerySelector(selector string) (Element, error)
	QuerySelectorAll(selector string) ([]Element, error)
}

// Media is a live media element.
type Media interface {
	playback.Media
	Play() error
	Pause()
	Seek(seconds float64)
	SetPlaybackRate(rate float64)
	AddListener(event string, fn func())
}

// Page is a document that can also reach its media elements and child frames.
type Page interface {
	Document
	QueryMedia(selector string) (Media, error)
	Frames() []Frame
}

type Frame interface {
	Src() string
	// Content returns ErrCrossOrigin when the frame is not readable.
	Content() (Page, error)
	Post(msg protocol.RelayMessage)
}

// Layout is the computed box and style of a node.
type Layout struct {
	Width      float64
	Height     float64
	Display    string
	Visibility string
	Opacity    float64
}

func (l Layout) Visible() bool {
	return l.Width > 0 && l.Height > 0 &&
		l.Display != "none" && l.Visibility != "hidden" && l.Opacity != 0
}

// Node is an element in a live tree, used by walkers that must also descend
// into open shadow roots.
type Node interface {
	Element
	Tag() string
	Layout() Layout
	Click() error
	Children() []Node
	// Shadow returns the children of an open shadow root, or nil.
	Shadow() []Node
}

// Walk visits n and every descendant, shadow trees included, until fn returns false.
func Walk(n Node, fn func(Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.Shadow() {
		if !Walk(c, fn) {
			return false
		}
	}
	for _, c := range n.Children() {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}
