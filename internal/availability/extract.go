package availability

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signals are the raw values read from one info region
type Signals struct {
	Markup     string
	Text       string
	Status     string
	HasStatus  bool
	Price      string
	Paragraphs []string
}

// ExtractionError reports info region markup that could not be read
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting availability: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ExtractHTML parses the outer HTML of an info region and collects its signals
func ExtractHTML(markup string, sel Selectors) (Signals, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Signals{}, &ExtractionError{Err: err}
	}

	region := doc.Find("body").Children()
	if region.Length() == 0 {
		return Signals{}, &ExtractionError{Err: fmt.Errorf("empty info region")}
	}

	return Extract(region, markup, sel), nil
}

// Extract collects signals from an already parsed info region
func Extract(region *goquery.Selection, markup string, sel Selectors) Signals {
	sig := Signals{
		Markup: markup,
		Text:   collapseSpace(region.Text()),
	}

	if sel.Status != "" {
		if status := region.Find(sel.Status).First(); status.Length() > 0 {
			sig.HasStatus = true
			sig.Status = strings.TrimSpace(status.Text())
		}
	}

	// Sale price first, otherwise the regular in-stock price
	for _, priceSel := range []string{sel.SalePrice, sel.StockPrice} {
		if priceSel == "" {
			continue
		}
		if price := strings.TrimSpace(region.Find(priceSel).First().Text()); price != "" {
			sig.Price = collapseSpace(price)
			break
		}
	}

	region.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := collapseSpace(p.Text()); text != "" {
			sig.Paragraphs = append(sig.Paragraphs, text)
		}
	})

	return sig
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
