// scraper/links.go
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/config"
	"github.com/rs/zerolog"
)

// Fetcher retrieves a URL's body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// LinkFinder extracts document links for a category from the listing page.
// It keeps no state between calls.
type LinkFinder struct {
	fetcher    Fetcher
	listURL    string
	prefix     string
	disallowed []string
	categories map[string]config.CategoryConfig
	logger     zerolog.Logger
}

func NewLinkFinder(cfg config.SourceConfig, fetcher Fetcher, logger zerolog.Logger) *LinkFinder {
	disallowed := make([]string, 0, len(cfg.DisallowedTokens))
	for _, tok := range cfg.DisallowedTokens {
		if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" {
			disallowed = append(disallowed, tok)
		}
	}
	return &LinkFinder{
		fetcher:    fetcher,
		listURL:    cfg.ListURL,
		prefix:     strings.ToLower(cfg.DocumentPrefix),
		disallowed: disallowed,
		categories: cfg.Categories,
		logger:     logger.With().Str("component", "LinkFinder").Logger(),
	}
}

// FindDocumentLinks returns absolute document URLs for category in page order.
// Duplicates are returned as found.
func (lf *LinkFinder) FindDocumentLinks(ctx context.Context, category string) ([]string, error) {
	cc, ok := lf.categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	base, err := url.Parse(lf.listURL)
	if err != nil {
		return nil, fmt.Errorf("invalid list URL %s: %w", lf.listURL, err)
	}

	page, err := lf.fetcher.Fetch(ctx, lf.listURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, apperror.NewParseError(lf.listURL, "failed to parse HTML", err)
	}

	var links []string
	doc.Find(cc.Selector).Each(func(_ int, a *goquery.Selection) {
		href, exists := a.Attr("href")
		if !exists || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			lf.logger.Debug().Str("href", href).Err(err).Msg("Ignoring unparsable link")
			return
		}
		abs := base.ResolveReference(ref)
		if lf.accept(abs) {
			links = append(links, abs.String())
		}
	})

	lf.logger.Info().Str("category", category).Int("links", len(links)).Msg("Found document links")
	return links, nil
}

func (lf *LinkFinder) accept(u *url.URL) bool {
	if !strings.HasPrefix(strings.ToLower(u.String()), lf.prefix) {
		return false
	}
	target := strings.ToLower(u.RequestURI())
	for _, tok := range lf.disallowed {
		if strings.Contains(target, tok) {
			return false
		}
	}
	return true
}
