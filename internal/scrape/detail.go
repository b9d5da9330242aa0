package scrape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/ml-inventory/internal/domain"
)

// ParseItemPage parses a detail page into raw item fields. The caller runs
// the result through the card assembler to attach identity and decisions.
func ParseItemPage(html []byte, pageURL string, now time.Time) (*domain.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse item page: %w", err)
	}

	item := &domain.Item{
		Source:     "mercadolibre_scrape",
		Permalink:  pageURL,
		Title:      detailTitle(doc),
		PriceMXN:   extractPrice(doc.Selection),
		Currency:   domain.CurrencyMXN,
		Condition:  detailCondition(doc),
		CapturedAt: now.UTC().Format("2006-01-02T15:04:05Z"),
	}

	if ld := linkedData(doc); ld != nil {
		item.Attributes = map[string]any{"jsonld": ld}
		item.Pictures = linkedDataImages(ld)
		if brand, ok := ld["brand"].(map[string]any); ok {
			item.Brand, _ = brand["name"].(string)
		} else if brand, ok := ld["brand"].(string); ok {
			item.Brand = brand
		}
	}

	return item, nil
}

func detailTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return "unknown"
}

func detailCondition(doc *goquery.Document) string {
	sel := doc.Find("span.andes-badge, span[itemprop='condition']").First()
	return strings.ToLower(strings.TrimSpace(sel.Text()))
}

// linkedData extracts the first usable ld+json block. A top-level array is
// unwrapped to its first object element.
func linkedData(doc *goquery.Document) map[string]any {
	var found map[string]any

	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			found = obj
			return false
		}

		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			for _, v := range list {
				if m, ok := v.(map[string]any); ok {
					found = m
					return false
				}
			}
		}

		return true
	})

	return found
}

// linkedDataImages normalizes the "image" field, which may be a string or a
// list.
func linkedDataImages(ld map[string]any) []string {
	switch img := ld["image"].(type) {
	case string:
		return []string{img}
	case []any:
		out := make([]string, 0, len(img))
		for _, v := range img {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
