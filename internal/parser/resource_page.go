// Package parser extracts resource records from resource pages.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/resource-existence/internal/catalog"
)

// ErrNotResourcePage is returned when the document has no resource info block,
// which is what deleted, moved or access-restricted resources render.
var ErrNotResourcePage = errors.New("document is not a resource page")

// ResourcePageParser parses resource detail pages.
type ResourcePageParser struct{}

// NewResourcePageParser returns a ResourcePageParser.
func NewResourcePageParser() *ResourcePageParser {
	return &ResourcePageParser{}
}

// Parse fills a Resource from doc, starting from seed. Fields missing from the
// page are left at their zero value so callers can judge completeness.
func (p *ResourcePageParser) Parse(doc *goquery.Document, seed catalog.ListedResource) (*catalog.Resource, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	info := doc.Find("div.resourceInfo").First()
	if info.Length() == 0 {
		return nil, ErrNotResourcePage
	}

	r := &catalog.Resource{
		ListedResource: seed,
		Links:          make(map[string]string),
	}

	title := info.Find("h1").First()
	if version := strings.TrimSpace(title.Find("span.muted").First().Text()); version != "" {
		if r.Version == nil {
			r.Version = &catalog.Version{}
		}
		r.Version.Name = version
	}
	if name := ownText(title); name != "" {
		r.Name = name
	}
	if tag := strings.TrimSpace(info.Find("p.tagLine").First().Text()); tag != "" {
		r.Tag = tag
	}

	r.Description = strings.TrimSpace(textOrHTML(doc.Find("blockquote.ResourceDescription").First()))

	file, external, err := parseFile(doc)
	if err != nil {
		return nil, err
	}
	r.File = file
	r.External = external

	if n, ok := parseCount(doc.Find("dl.downloadCount dd").First().Text()); ok {
		r.Downloads = n
	}
	if ts, ok := doc.Find("dl.lastUpdate .DateTime").First().Attr("data-time"); ok {
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			r.UpdateDate = time.Unix(sec, 0).UTC()
		}
	}

	doc.Find(".resourceTabs a").Each(func(_ int, a *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(a.Text()))
		if label == "" {
			return
		}
		href, _ := a.Attr("href")
		if strings.HasPrefix(label, catalog.LinkDiscussion) {
			r.Links[catalog.LinkDiscussion] = href
			return
		}
		r.Links[label] = href
	})
	if href, ok := doc.Find("a.SourceCodeLink, dl.sourceCode a").First().Attr("href"); ok {
		r.SourceCodeLink = href
	}
	if href, ok := doc.Find("a.DonationLink, dl.donationLink a").First().Attr("href"); ok {
		r.DonationLink = href
	}

	if price := doc.Find("span.resourcePrice, .purchaseButton .price").First(); price.Length() > 0 {
		r.Premium = true
		r.Price, r.Currency = parsePrice(price.Text())
	}
	return r, nil
}

func parseFile(doc *goquery.Document) (*catalog.File, bool, error) {
	button := doc.Find("label.downloadButton a.inner").First()
	if button.Length() == 0 {
		return nil, false, nil
	}
	href, _ := button.Attr("href")
	file := &catalog.File{URL: href}
	minor := strings.TrimSpace(button.Find(".minorText").First().Text())
	if strings.Contains(strings.ToLower(minor), "external") {
		file.Type = "external"
		file.ExternalURL = href
		return file, true, nil
	}
	// "2.5 MB .jar"
	fields := strings.Fields(minor)
	switch len(fields) {
	case 0:
	case 1:
		file.Type = fields[0]
	default:
		size, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
		if err != nil {
			return nil, false, fmt.Errorf("parse file size %q: %w", fields[0], err)
		}
		file.Size = size
		file.SizeUnit = fields[1]
		if len(fields) > 2 {
			file.Type = fields[2]
		}
	}
	return file, false, nil
}

func parseCount(raw string) (int64, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parsePrice(raw string) (float64, string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return 0, ""
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil {
		return 0, ""
	}
	if len(fields) > 1 {
		return price, fields[1]
	}
	return price, ""
}

// ownText returns the text of s excluding its child elements.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

func textOrHTML(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	html, err := s.Html()
	if err != nil || strings.TrimSpace(s.Text()) == "" {
		return s.Text()
	}
	return html
}
