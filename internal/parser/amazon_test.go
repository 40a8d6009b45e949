package parser

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractPrice(t *testing.T) {
	parser := NewAmazonParser()

	tests := []struct {
		name     string
		html     string
		expected float64
		hasError bool
	}{
		{
			name:     "modern price whole",
			html:     `<span class="a-price-whole">1,299</span>`,
			expected: 1299,
		},
		{
			name:     "offscreen price with currency",
			html:     `<span class="a-offscreen">₹24,990.00</span>`,
			expected: 24990,
		},
		{
			name:     "dollar price with decimals",
			html:     `<span class="a-offscreen">$49.99</span>`,
			expected: 49.99,
		},
		{
			name:     "core price display block",
			html:     `<div id="corePriceDisplay_desktop_feature_div"><span>Deal of the Day</span> ₹3,499</div>`,
			expected: 3499,
		},
		{
			name:     "legacy deal price",
			html:     `<span id="priceblock_dealprice">₹ 15,999</span>`,
			expected: 15999,
		},
		{
			name:     "ladder prefers earlier selector",
			html:     `<span class="a-price-whole">999</span><span id="priceblock_ourprice">1,500</span>`,
			expected: 999,
		},
		{
			name:     "tiny number rejected, later selector wins",
			html:     `<span class="a-price-whole">5</span><span class="a-offscreen">₹2,199</span>`,
			expected: 2199,
		},
		{
			name:     "absurd number rejected",
			html:     `<span class="a-price-whole">99999999</span>`,
			hasError: true,
		},
		{
			name:     "no price markup",
			html:     `<div id="productTitle">Something</div>`,
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := parser.ExtractPrice(mustDoc(t, tt.html))

			if tt.hasError {
				assert.ErrorIs(t, err, ErrPriceNotFound)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, price, 0.001)
		})
	}
}

func TestParseProductPage(t *testing.T) {
	parser := NewAmazonParser()

	html := `<!DOCTYPE html>
<html>
<body>
	<span id="productTitle">
		Sony WH-1000XM5 Wireless Noise Cancelling Headphones
	</span>
	<div id="corePriceDisplay_desktop_feature_div">
		<span class="a-price-whole">24,990</span>
	</div>
</body>
</html>`

	page, err := parser.ParseProductPage(html, "B09Y2MYL5C")
	require.NoError(t, err)

	assert.Equal(t, "B09Y2MYL5C", page.ASIN)
	assert.Equal(t, "Sony WH-1000XM5 Wireless Noise Cancelling Headphones", page.Title)
	assert.InDelta(t, 24990.0, page.Price, 0.001)
}

func TestParseProductPageCaptcha(t *testing.T) {
	parser := NewAmazonParser()

	html := `<html><body>
		<h4>Enter the characters you see below</h4>
		<form action="/errors/validateCaptcha"><input type="text"></form>
	</body></html>`

	_, err := parser.ParseProductPage(html, "B09Y2MYL5C")
	assert.ErrorIs(t, err, ErrBlocked)
	assert.True(t, parser.IsCaptcha(html))
}

func TestExtractASINs(t *testing.T) {
	parser := NewAmazonParser()

	t.Run("data-asin attributes", func(t *testing.T) {
		html := `<div>
			<div data-asin="B0C7KXNM5H"></div>
			<div data-asin="B09Y2MYL5C"></div>
			<div data-asin=""></div>
			<div data-asin="SHORT"></div>
			<div data-asin="B0C7KXNM5H"></div>
		</div>`

		asins, err := parser.ExtractASINs(html, 50)
		require.NoError(t, err)
		assert.Equal(t, []string{"B0C7KXNM5H", "B09Y2MYL5C"}, asins)
	})

	t.Run("href fallback", func(t *testing.T) {
		html := `<div>
			<a href="/dp/B0BZCVNKfoo">broken</a>
			<a href="/Sony-Headphones/dp/B09Y2MYL5C/ref=sr_1_1?keywords=sony">ok</a>
			<a href="https://www.amazon.in/dp/B0C7KXNM5H?th=1">ok</a>
			<a href="/gp/help/customer">not a product</a>
		</div>`

		asins, err := parser.ExtractASINs(html, 50)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"B09Y2MYL5C", "B0C7KXNM5H"}, asins)
	})

	t.Run("respects cap", func(t *testing.T) {
		var sb strings.Builder
		sb.WriteString("<div>")
		for i := 0; i < 30; i++ {
			sb.WriteString(`<div data-asin="B00000000` + string(rune('A'+i%26)) + `"></div>`)
		}
		sb.WriteString("</div>")

		asins, err := parser.ExtractASINs(sb.String(), 5)
		require.NoError(t, err)
		assert.Len(t, asins, 5)
	})
}
