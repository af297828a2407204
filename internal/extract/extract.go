package extract

import (
	"errors"
	"strings"

	"cve-crawler/pkg/models"
)

var (
	ErrMissingTitle       = errors.New("content section has no title element")
	ErrMissingDescription = errors.New("content section has no description element")
)

// Grammar describes where a detail page keeps the pieces of a record.
type Grammar struct {
	ContentTag       string `mapstructure:"content_tag"`
	ContentClass     string `mapstructure:"content_class"`
	TitleTag         string `mapstructure:"title_tag"`
	TitleClass       string `mapstructure:"title_class"`
	DescriptionTag   string `mapstructure:"description_tag"`
	IdentifierPrefix string `mapstructure:"identifier_prefix"`
}

// DefaultGrammar matches the FortiGuard encyclopedia detail pages.
func DefaultGrammar() Grammar {
	return Grammar{
		ContentTag:       "section",
		ContentClass:     "ency_content",
		TitleTag:         "h2",
		TitleClass:       "title",
		DescriptionTag:   "p",
		IdentifierPrefix: "CVE",
	}
}

// ContentSection locates the section extraction runs over.
func (g Grammar) ContentSection(doc Node) (Node, bool) {
	return doc.Find(g.ContentTag, g.ContentClass)
}

// Extract returns one record per anchor in content whose leading text starts
// with the identifier prefix. All records from one page share the page's
// name and description. The name is the full text of the title element,
// nested markup included. Title and description are only required when at
// least one identifier was found.
func (g Grammar) Extract(content Node) ([]models.VulnerabilityRecord, error) {
	var ids []string
	for _, a := range content.FindAll("a") {
		lead, ok := LeadingText(a)
		if ok && strings.HasPrefix(lead, g.IdentifierPrefix) {
			ids = append(ids, lead)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	title, ok := content.Find(g.TitleTag, g.TitleClass)
	if !ok {
		return nil, ErrMissingTitle
	}
	para, ok := content.Find(g.DescriptionTag, "")
	if !ok {
		return nil, ErrMissingDescription
	}

	name := strings.TrimSpace(title.Text())
	description := NormalizeFragments(para.Children())

	records := make([]models.VulnerabilityRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, models.VulnerabilityRecord{
			ID:          id,
			Name:        name,
			Description: description,
		})
	}
	return records, nil
}

// LeadingText is the anchor's first child when that child is a text node.
func LeadingText(n Node) (string, bool) {
	children := n.Children()
	if len(children) == 0 || children[0].Kind != TextFragment {
		return "", false
	}
	return children[0].Text, true
}
