package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"animepresence/internal/protocol"
)

// HTMLDocument is a static Document parsed from markup.
type HTMLDocument struct {
	url string
	doc *goquery.Document
}

func ParseHTML(url string, r io.Reader) (*HTMLDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTMLDocument{url: url, doc: doc}, nil
}

func (d *HTMLDocument) URL() string { return d.url }

func (d *HTMLDocument) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

func (d *HTMLDocument) QuerySelector(selector string) (Element, error) {
	sel, err := d.find(selector)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, nil
	}
	return htmlElement{sel.First()}, nil
}

func (d *HTMLDocument) QuerySelectorAll(selector string) ([]Element, error) {
	sel, err := d.find(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, htmlElement{s})
	})
	return out, nil
}

func (d *HTMLDocument) find(selector string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return d.doc.FindMatcher(m), nil
}

type htmlElement struct {
	sel *goquery.Selection
}

func (e htmlElement) Text() string { return e.sel.Text() }

func (e htmlElement) Attr(name string) (string, bool) { return e.sel.Attr(name) }

// QueryMedia always misses: a static document has no live media.
func (d *HTMLDocument) QueryMedia(selector string) (Media, error) {
	if _, err := d.find(selector); err != nil {
		return nil, err
	}
	return nil, nil
}

// Frames lists the document's iframes. Their content is never readable.
func (d *HTMLDocument) Frames() []Frame {
	var frames []Frame
	d.doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		frames = append(frames, staticFrame{src: src})
	})
	return frames
}

type staticFrame struct {
	src string
}

func (f staticFrame) Src() string                    { return f.src }
func (f staticFrame) Content() (Page, error)         { return nil, ErrCrossOrigin }
func (f staticFrame) Post(msg protocol.RelayMessage) {}
