package availability

// Literals holds the site-language strings the rules look for. Matching is
// case-insensitive except for StatusSoldOut, which must equal the status element
// text exactly.
type Literals struct {
	RegistrationsMarker string   `yaml:"registrations_marker"`
	SoldOutMarker       string   `yaml:"sold_out_marker"`
	StatusSoldOut       string   `yaml:"status_sold_out"`
	SoldOutVariants     []string `yaml:"sold_out_variants"`
	AvailableVariants   []string `yaml:"available_variants"`
	PricePrefix         string   `yaml:"price_prefix"`

	// Status values written to records
	SoldOutStatus   string `yaml:"sold_out_status"`
	AvailableStatus string `yaml:"available_status"`
}

// DefaultLiterals returns the literals used by the Spanish-language race sites
func DefaultLiterals() Literals {
	return Literals{
		RegistrationsMarker: "inscripciones:",
		SoldOutMarker:       "agotadas",
		StatusSoldOut:       "Agotado",
		SoldOutVariants:     []string{"agotado", "agotadas", "agotados", "no disponible", "sold out", "cupo completo", "aforo completo"},
		AvailableVariants:   []string{"disponible", "disponibles", "available", "abiertas"},
		PricePrefix:         "precio",
		SoldOutStatus:       "sold out",
		AvailableStatus:     "available",
	}
}

// Selectors locates the parts of a registration page
type Selectors struct {
	Info       string `yaml:"info"`
	Status     string `yaml:"status"`
	SalePrice  string `yaml:"sale_price"`
	StockPrice string `yaml:"stock_price"`
}

// DefaultSelectors returns selectors for WooCommerce-style product pages
func DefaultSelectors() Selectors {
	return Selectors{
		Info:       ".summary.entry-summary",
		Status:     ".registration-status",
		SalePrice:  ".price ins .woocommerce-Price-amount",
		StockPrice: ".stock.in-stock .woocommerce-Price-amount, .price .woocommerce-Price-amount",
	}
}
