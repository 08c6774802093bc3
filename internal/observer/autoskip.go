package observer

import (
	"strings"

	"animepresence/internal/dom"
)

// scanSkip clicks at most one visible "skip" control per pass.
func (o *Observer) scanSkip() {
	if !o.autoSkip {
		return
	}
	root := o.doc.Root()
	if root == nil {
		return
	}

	dom.Walk(root, func(n dom.Node) bool {
		if !isSkipControl(n) {
			return true
		}
		if err := n.Click(); err != nil {
			o.logger.Debug().Err(err).Msg("skip click failed")
		} else {
			o.logger.Info().Str("tag", n.Tag()).Msg("skipped")
		}
		return false
	})
}

func isSkipControl(n dom.Node) bool {
	if !clickable(n) {
		return false
	}
	label := n.Text()
	if aria, ok := n.Attr("aria-label"); ok {
		label += " " + aria
	}
	if !strings.Contains(strings.ToLower(label), "skip") {
		return false
	}
	return n.Layout().Visible()
}

func clickable(n dom.Node) bool {
	switch strings.ToLower(n.Tag()) {
	case "button", "a":
		return true
	case "input":
		t, _ := n.Attr("type")
		return t == "button" || t == "submit"
	}
	if role, ok := n.Attr("role"); ok && role == "button" {
		return true
	}
	_, ok := n.Attr("tabindex")
	return ok
}
