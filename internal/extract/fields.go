package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/beachwatch-crawler/internal/beach"
)

var (
	errElementNotFound = errors.New("element not found")
	errNoChild         = errors.New("element has no children")
)

// Parse builds a goquery document from raw HTML.
func Parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// FieldsFromHTML parses html and runs Fields over it.
func FieldsFromHTML(html string, spec beach.FieldSpec) ([]beach.LabeledValue, error) {
	doc, err := Parse(html)
	if err != nil {
		return nil, err
	}
	return Fields(doc, spec), nil
}

// Fields extracts one value per spec entry, in spec order. A field that cannot
// be read yields its own selector as the value so that one broken element
// never costs the rest of the page.
func Fields(doc *goquery.Document, spec beach.FieldSpec) []beach.LabeledValue {
	out := make([]beach.LabeledValue, 0, len(spec))
	for _, f := range spec {
		v, err := Field(doc, f)
		if err != nil {
			out = append(out, beach.LabeledValue{
				Label:    f.Label,
				Value:    beach.ScalarValue(f.Selector),
				Fallback: true,
			})
			continue
		}
		out = append(out, beach.LabeledValue{Label: f.Label, Value: v})
	}
	return out
}

// Field extracts a single field. Multi fields collect the first child text of
// every div carrying the class; other fields read the first div, falling back
// to the first span.
func Field(doc *goquery.Document, f beach.Field) (beach.Value, error) {
	if doc == nil {
		return beach.Value{}, errors.New("nil document")
	}
	if f.Multi {
		items := []string{}
		var childErr error
		withClass(doc.Selection, "div", f.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text, err := firstChildText(s)
			if err != nil {
				childErr = err
				return false
			}
			items = append(items, text)
			return true
		})
		if childErr != nil {
			return beach.Value{}, fmt.Errorf("%s: %w", f.Selector, childErr)
		}
		return beach.ListValue(items), nil
	}

	sel := withClass(doc.Selection, "div", f.Selector).First()
	if sel.Length() == 0 {
		sel = withClass(doc.Selection, "span", f.Selector).First()
	}
	if sel.Length() == 0 {
		return beach.Value{}, fmt.Errorf("%s: %w", f.Selector, errElementNotFound)
	}
	text, err := firstChildText(sel)
	if err != nil {
		return beach.Value{}, fmt.Errorf("%s: %w", f.Selector, err)
	}
	return beach.ScalarValue(text), nil
}

// withClass matches elements whose class list contains class. Matching on the
// attribute avoids building a CSS selector from config input.
func withClass(root *goquery.Selection, tag, class string) *goquery.Selection {
	return root.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.HasClass(class)
	})
}

// firstChildText returns the text of the element's first child node, which is
// usually a text node but may be an element.
func firstChildText(s *goquery.Selection) (string, error) {
	child := s.First().Contents().First()
	if child.Length() == 0 {
		return "", errNoChild
	}
	return child.Text(), nil
}
