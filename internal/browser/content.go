package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonRendered never contributes visible text. Navigation and headers are kept
// on purpose: account links such as "Logout" usually live there.
const nonRendered = "script, style, noscript, template, svg"

// ExtractText returns the whitespace-normalized text of the document body.
func ExtractText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(nonRendered).Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return strings.Join(strings.Fields(body.Text()), " "), nil
}
