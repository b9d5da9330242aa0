// Package crawl runs listing-page crawl passes: sequential pagination, card
// assembly, click-tracker re-resolution, and detail-page enrichment.
package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/ml-inventory/internal/card"
	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/fetcher"
	"github.com/jonesrussell/ml-inventory/internal/identity"
	"github.com/jonesrussell/ml-inventory/internal/logger"
	"github.com/jonesrussell/ml-inventory/internal/metrics"
	"github.com/jonesrussell/ml-inventory/internal/scrape"
)

// DefaultMaxPages bounds a crawl pass when no limit is configured.
const DefaultMaxPages = 20

// Config configures a crawl pass.
type Config struct {
	// MaxPages caps pagination depth per pass; 0 means DefaultMaxPages.
	MaxPages int `yaml:"max_pages" env:"CRAWL_MAX_PAGES"`
	// Toggles are the eligibility-filter toggles applied at assembly.
	Toggles card.Toggles `yaml:"toggles"`
}

// Result is the outcome of one crawl pass.
type Result struct {
	Cards        []*domain.Card
	Sellers      []scrape.SellerRef
	Stats        domain.Stats
	PagesFetched int
}

// Crawler drives listing-page passes through the resilient fetcher.
type Crawler struct {
	fetcher  *fetcher.Client
	toggles  card.Toggles
	maxPages int
	log      logger.Interface
}

// New creates a crawler.
func New(f *fetcher.Client, cfg Config, log logger.Interface) *Crawler {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Crawler{
		fetcher:  f,
		toggles:  cfg.Toggles,
		maxPages: maxPages,
		log:      log,
	}
}

// Run crawls a listing starting at startURL, following next-page links.
// Pagination is strictly sequential: each next-page URL comes from the
// previous page's content. The first page may fall back to alternate URLs;
// deduplication by permalink happens after the full pass, so page order does
// not affect the final set. Cancellation is checked between pages and
// between cards.
func (c *Crawler) Run(ctx context.Context, startURL string, fallbackURLs []string) (*Result, error) {
	result := &Result{}
	pageURL := startURL

	// A store URL names its seller; cards on the page inherit it unless the
	// page says otherwise.
	sellerID, _ := identity.SellerID(startURL)

	for page := 0; pageURL != "" && page < c.maxPages; page++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		body, err := c.fetchPage(ctx, pageURL, page, fallbackURLs)
		if err != nil {
			if page == 0 {
				return result, fmt.Errorf("fetch first listing page: %w", err)
			}
			// Mid-pass failures end the pass with what was collected.
			c.log.Warn("pagination aborted", "page", page, "url", pageURL, "error", err.Error())
			break
		}
		result.PagesFetched++

		inputs, sellers, parseErr := scrape.ParseListPage(body, pageURL)
		if parseErr != nil {
			return result, parseErr
		}
		result.Sellers = append(result.Sellers, sellers...)

		for _, in := range inputs {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if in.SellerID == 0 {
				in.SellerID = sellerID
			}
			result.Cards = append(result.Cards, c.assemble(ctx, in))
		}

		next, nextErr := scrape.NextPageURL(body)
		if nextErr != nil {
			return result, nextErr
		}
		pageURL = next
	}

	result.Cards = card.Dedupe(result.Cards)
	result.Stats = card.ComputeStats(result.Cards)
	recordDispositions(result.Cards)

	c.log.Info("crawl pass finished",
		"pages", result.PagesFetched,
		"cards", result.Stats.Total,
		"ready", result.Stats.Ready,
		"needs_enrichment", result.Stats.NeedsEnrichment,
		"filtered", result.Stats.FilteredOut)

	return result, nil
}

// RunSeller crawls one seller store, trying the alternate store URL shapes
// when the primary 404s.
func (c *Crawler) RunSeller(ctx context.Context, sellerID int64) (*Result, error) {
	return c.Run(ctx, scrape.SellerListURL(sellerID), scrape.SellerFallbackURLs(sellerID))
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string, page int, fallbackURLs []string) ([]byte, error) {
	if page == 0 && len(fallbackURLs) > 0 {
		return c.fetcher.FetchWithFallback(ctx, pageURL, fallbackURLs)
	}
	return c.fetcher.Fetch(ctx, pageURL)
}

// assemble builds one card, re-resolving identity when the permalink turned
// out to be a click-tracker redirect.
func (c *Crawler) assemble(ctx context.Context, in card.Input) *domain.Card {
	assembled := card.Assemble(in, c.toggles)

	if fetcher.IsClickTracker(assembled.Permalink) {
		resolved := c.fetcher.ResolveRedirectURL(ctx, assembled.Permalink)
		if resolved != assembled.Permalink {
			assembled = card.Reresolve(assembled, resolved, c.toggles)
		}
	}

	return assembled
}

// Enrich turns cards into items, fetching detail pages for the cards flagged
// at assembly. Filtered cards are excluded; a failed detail fetch falls back
// to the card's own fields so the transform-time gate can decide.
func (c *Crawler) Enrich(ctx context.Context, cards []*domain.Card) ([]*domain.Item, error) {
	items := make([]*domain.Item, 0, len(cards))

	for _, crd := range cards {
		if ctx.Err() != nil {
			return items, ctx.Err()
		}
		if crd.FilteredOut {
			continue
		}
		if !crd.NeedsEnrichment {
			items = append(items, domain.FromCard(crd))
			continue
		}

		item, err := c.enrichOne(ctx, crd)
		if err != nil {
			c.log.Warn("detail fetch failed, exporting card fields only",
				"permalink", crd.Permalink, "error", err.Error())
			items = append(items, domain.FromCard(crd))
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

// enrichOne fetches and parses one detail page, overlaying the detail onto
// the card's fields.
func (c *Crawler) enrichOne(ctx context.Context, crd *domain.Card) (*domain.Item, error) {
	body, err := c.fetcher.Fetch(ctx, crd.Permalink)
	if err != nil {
		return nil, err
	}

	detail, err := scrape.ParseItemPage(body, crd.Permalink, time.Now())
	if err != nil {
		return nil, err
	}

	item := domain.FromCard(crd)
	item.Condition = detail.Condition
	item.Brand = detail.Brand
	item.Pictures = detail.Pictures
	item.Attributes = detail.Attributes
	item.CapturedAt = detail.CapturedAt
	if item.PriceMXN <= 0 {
		item.PriceMXN = detail.PriceMXN
	}
	if len(item.Title) < 3 && len(detail.Title) >= 3 {
		item.Title = detail.Title
	}

	return item, nil
}

func recordDispositions(cards []*domain.Card) {
	for _, crd := range cards {
		switch {
		case crd.FilteredOut:
			metrics.RecordCard("filtered")
		case crd.NeedsEnrichment:
			metrics.RecordCard("needs_enrichment")
		default:
			metrics.RecordCard("ready")
		}
	}
}
