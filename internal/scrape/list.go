// Package scrape parses MercadoLibre listing and detail pages into raw card
// fields. Identity extraction and all decision layers are owned by the card
// assembler; this package only lifts what is literally on the page.
package scrape

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/ml-inventory/internal/card"
	"github.com/jonesrussell/ml-inventory/internal/identity"
)

// minTitleLength mirrors the assembler's title floor; shorter scraped titles
// are treated as not found and the next fallback is tried.
const minTitleLength = 3

// cardSelectors are tried in order; the first that matches anything wins.
// Strict li-based selectors avoid capturing ads and recommendation shelves.
var cardSelectors = []string{
	"li.ui-search-layout__item",
	"li.ui-search-result",
	"li.ui-search-result__item",
}

// priceSelectors are tried in order per card.
var priceSelectors = []string{
	"span.price-tag-fraction",
	"span.andes-money-amount__fraction",
	"div.ui-price__part--integer span.andes-money-amount__fraction",
	"span.ui-search-price__part--fraction",
}

// SellerRef is a seller store discovered on a listing page.
type SellerRef struct {
	SellerID  int64  `json:"seller_id"`
	SellerURL string `json:"seller_url"`
	SourceURL string `json:"source_url"`
}

// ParseListPage extracts raw cards and seller references from one listing
// page. Cards are deduplicated by permalink, keeping the first occurrence.
func ParseListPage(html []byte, sourceURL string) ([]card.Input, []SellerRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse listing page: %w", err)
	}

	cards := extractCards(doc)
	if len(cards) == 0 {
		cards = fallbackExtractCards(doc)
	}

	seen := make(map[string]struct{}, len(cards))
	uniq := cards[:0]
	for _, c := range cards {
		if _, ok := seen[c.Permalink]; ok {
			continue
		}
		seen[c.Permalink] = struct{}{}
		uniq = append(uniq, c)
	}

	return uniq, extractSellerRefs(doc, sourceURL), nil
}

func extractCards(doc *goquery.Document) []card.Input {
	var sel *goquery.Selection
	for _, s := range cardSelectors {
		sel = doc.Find(s)
		if sel.Length() > 0 {
			break
		}
	}
	if sel == nil {
		return nil
	}

	var cards []card.Input
	sel.Each(func(_ int, el *goquery.Selection) {
		link := el.Find("a[href*='mercadolibre.com.mx']").First()
		href, ok := link.Attr("href")
		if !ok || href == "" || skipHref(href) {
			return
		}

		cards = append(cards, card.Input{
			Permalink: stripFragment(href),
			Title:     extractTitle(el, href),
			PriceMXN:  extractPrice(el),
			Currency:  "MXN",
		})
	})

	return cards
}

// fallbackExtractCards scans content-area links with strict filters when the
// card selectors match nothing, e.g. on a layout revision.
func fallbackExtractCards(doc *goquery.Document) []card.Input {
	scope := doc.Find("#root-app, main.ui-search-main, div.ui-search-main").First()
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	var cards []card.Input
	scope.Find("a[href*='mercadolibre.com.mx']").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		href = stripFragment(href)
		if href == "" || skipHref(href) || strings.Contains(href, "/_CustId_") {
			return
		}
		// Only product-shaped URLs.
		if !strings.Contains(href, "/p/") && !strings.Contains(href, "/MLM") {
			return
		}

		title, _ := link.Attr("title")
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		if len(title) < minTitleLength {
			return
		}

		cards = append(cards, card.Input{
			Permalink: href,
			Title:     title,
			Currency:  "MXN",
		})
	})

	return cards
}

// skipHref filters store pages and advertising links.
func skipHref(href string) bool {
	return strings.Contains(href, "/tienda/") ||
		strings.Contains(href, "/publi/") ||
		strings.Contains(href, "/advertising/")
}

// extractTitle walks a fallback chain: the search-item h2, any h2, the link
// title attribute, an image alt, and finally the URL slug.
func extractTitle(el *goquery.Selection, href string) string {
	if t := strings.TrimSpace(el.Find("h2.ui-search-item__title").First().Text()); len(t) >= minTitleLength {
		return t
	}
	if t := strings.TrimSpace(el.Find("h2").First().Text()); len(t) >= minTitleLength {
		return t
	}
	if t, ok := el.Find("a[title]").First().Attr("title"); ok && len(t) >= minTitleLength {
		return t
	}
	if t, ok := el.Find("img[alt]").First().Attr("alt"); ok && len(t) >= minTitleLength {
		return t
	}
	if t := titleFromSlug(href); len(t) >= minTitleLength {
		return t
	}
	if t := strings.TrimSpace(el.Find("a").First().Text()); len(t) >= minTitleLength {
		return t
	}
	return ""
}

// titleFromSlug rebuilds an approximate title from the URL's last path
// segment.
func titleFromSlug(href string) string {
	path := stripFragment(href)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.Trim(path, "/")
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	path = strings.ReplaceAll(path, "-", " ")
	return strings.TrimSpace(strings.ReplaceAll(path, "_", " "))
}

// extractPrice tries the known price fraction selectors. Thousands separators
// are stripped; a missing price is reported as zero.
func extractPrice(el *goquery.Selection) float64 {
	for _, s := range priceSelectors {
		text := strings.TrimSpace(el.Find(s).First().Text())
		if text == "" {
			continue
		}
		text = strings.ReplaceAll(text, ",", "")
		if price, err := strconv.ParseFloat(text, 64); err == nil {
			return price
		}
	}
	return 0
}

// extractSellerRefs collects distinct seller stores linked from the page.
func extractSellerRefs(doc *goquery.Document, sourceURL string) []SellerRef {
	seen := make(map[int64]struct{})
	var refs []SellerRef

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, "/tienda/") && !strings.Contains(href, "/_CustId_") {
			return
		}

		sellerID, ok := identity.SellerID(href)
		if !ok {
			return
		}
		if _, dup := seen[sellerID]; dup {
			return
		}
		seen[sellerID] = struct{}{}

		refs = append(refs, SellerRef{
			SellerID:  sellerID,
			SellerURL: SellerListURL(sellerID),
			SourceURL: sourceURL,
		})
	})

	return refs
}

// NextPageURL extracts the next-page link from a listing page. Returns empty
// when there is no next page.
func NextPageURL(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse pagination: %w", err)
	}

	selectors := []string{
		"a[rel='next']",
		"a[title='Siguiente']",
		"a[aria-label*='Siguiente']",
		"li.andes-pagination__button--next a",
		".pagination__next a",
	}

	for _, s := range selectors {
		if href, ok := doc.Find(s).First().Attr("href"); ok && href != "" {
			return href, nil
		}
	}

	return "", nil
}

func stripFragment(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i]
	}
	return href
}
