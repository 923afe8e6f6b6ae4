package scraper

// Candidate is one selector/attribute pair tried when looking up a URL
type Candidate struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr"`
}

// Selectors locates the parts of the listing page
type Selectors struct {
	Container string      `yaml:"container"`
	Card      string      `yaml:"card"`
	Meta      string      `yaml:"meta"`
	BuyTicket string      `yaml:"buy_ticket"`
	Image     []Candidate `yaml:"image"`
	Link      []Candidate `yaml:"link"`
}

// DefaultSelectors returns the selectors for the events calendar theme
func DefaultSelectors() Selectors {
	return Selectors{
		Container: "#events-list",
		Card:      ".event-card",
		Meta:      ".event-meta",
		BuyTicket: ".buy-ticket",
		Image: []Candidate{
			{Selector: ".event-image img", Attr: "src"},
			{Selector: "img", Attr: "data-src"},
			{Selector: "img", Attr: "src"},
		},
		Link: []Candidate{
			{Selector: "a.event-link", Attr: "href"},
			{Selector: "h1 a, h2 a, h3 a", Attr: "href"},
			{Selector: ".event-image a", Attr: "href"},
		},
	}
}
