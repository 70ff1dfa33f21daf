// Package classify matches a single utterance against the scam-factor
// catalog. Matching is a case-sensitive substring test: a factor fires when
// any of its keywords appears verbatim in the text. There is no stemming,
// tokenization, or partial credit.
package classify

import (
	"strings"

	"github.com/callshield/callshield/pkg/catalog"
)

// Classify returns the catalog factors matched by text, in catalog order.
// It is a pure function.
func Classify(text string, c *catalog.Catalog) []catalog.Factor {
	if text == "" || c == nil {
		return nil
	}
	var matched []catalog.Factor
	for _, f := range c.All() {
		for _, kw := range f.Keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, f)
				break
			}
		}
	}
	return matched
}
