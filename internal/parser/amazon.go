// Package parser extracts prices, titles and product codes from Amazon HTML.
// It only sees static markup; fetching (plain HTTP or headless browser) is the
// caller's concern.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrBlocked means the page is a bot-check interstitial, not a product page.
	ErrBlocked = errors.New("blocked by captcha page")
	// ErrPriceNotFound means the page parsed but no selector yielded a price.
	ErrPriceNotFound = errors.New("price not found")
)

// Amazon swaps price markup frequently; the ladder is ordered from the
// current layout down to legacy blocks. First parseable number wins.
var priceSelectors = []string{
	"span.a-price-whole",
	"span.a-offscreen",
	"#corePriceDisplay_desktop_feature_div",
	"#corePrice_feature_div",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#priceblock_saleprice",
}

var (
	numberPattern = regexp.MustCompile(`[\d,]+(\.\d+)?`)
	asinPattern   = regexp.MustCompile(`^[A-Z0-9]{10}$`)
)

// Prices outside this band are selector noise (review counts, pixel sizes),
// not product prices.
const (
	minPlausiblePrice = 10
	maxPlausiblePrice = 1_000_000
)

type ProductPage struct {
	ASIN  string
	Title string
	Price float64
}

type AmazonParser struct{}

func NewAmazonParser() *AmazonParser {
	return &AmazonParser{}
}

// ParseProductPage extracts title and price from a product detail page.
// Returns ErrBlocked for captcha interstitials and ErrPriceNotFound when no
// selector matched.
func (p *AmazonParser) ParseProductPage(html, asin string) (*ProductPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if p.isCaptchaPage(doc) {
		return nil, ErrBlocked
	}

	page := &ProductPage{
		ASIN:  asin,
		Title: p.ExtractTitle(doc),
	}

	price, err := p.ExtractPrice(doc)
	if err != nil {
		return nil, err
	}
	page.Price = price

	return page, nil
}

// ExtractPrice walks the selector ladder and returns the first value inside
// the plausible price band.
func (p *AmazonParser) ExtractPrice(doc *goquery.Document) (float64, error) {
	for _, selector := range priceSelectors {
		var found float64
		doc.Find(selector).EachWithBreak(func(i int, s *goquery.Selection) bool {
			price, ok := parsePriceText(s.Text())
			if ok {
				found = price
				return false
			}
			return true
		})
		if found > 0 {
			return found, nil
		}
	}

	return 0, ErrPriceNotFound
}

// ExtractTitle returns the product title, empty when absent.
func (p *AmazonParser) ExtractTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("#productTitle").First().Text())
}

// ExtractASINs pulls product codes out of a listing page (best sellers,
// new releases, search results). data-asin attributes are primary; /dp/ hrefs
// are the fallback when the listing renders few attribute nodes.
func (p *AmazonParser) ExtractASINs(html string, max int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if p.isCaptchaPage(doc) {
		return nil, ErrBlocked
	}

	seen := make(map[string]bool)
	var asins []string

	doc.Find("div[data-asin]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		asin, _ := s.Attr("data-asin")
		if asinPattern.MatchString(asin) && !seen[asin] {
			seen[asin] = true
			asins = append(asins, asin)
		}
		return len(asins) < max
	})

	if len(asins) < 10 {
		doc.Find("a[href]").EachWithBreak(func(i int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if asin, ok := asinFromHref(href); ok && !seen[asin] {
				seen[asin] = true
				asins = append(asins, asin)
			}
			return len(asins) < max
		})
	}

	return asins, nil
}

// IsCaptcha reports whether raw HTML is a bot-check page.
func (p *AmazonParser) IsCaptcha(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return p.isCaptchaPage(doc)
}

func (p *AmazonParser) isCaptchaPage(doc *goquery.Document) bool {
	if doc.Find(`form[action*="captcha"]`).Length() > 0 {
		return true
	}
	// The chars-below page has no product markup, so a text scan is safe.
	text := strings.ToLower(doc.Find("body").Text())
	return strings.Contains(text, "enter the characters you see below") ||
		strings.Contains(text, "type the characters you see in this image")
}

func asinFromHref(href string) (string, bool) {
	idx := strings.Index(href, "/dp/")
	if idx < 0 {
		return "", false
	}

	rest := href[idx+len("/dp/"):]
	if end := strings.IndexAny(rest, "/?"); end >= 0 {
		rest = rest[:end]
	}

	if asinPattern.MatchString(rest) {
		return rest, true
	}
	return "", false
}

// parsePriceText finds the first number in a text fragment, tolerating
// currency glyphs, thousands separators and prefixes like "MRP:".
func parsePriceText(text string) (float64, bool) {
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}

	clean := strings.ReplaceAll(match, ",", "")
	price, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}

	if price <= minPlausiblePrice || price >= maxPlausiblePrice {
		return 0, false
	}

	return price, true
}
