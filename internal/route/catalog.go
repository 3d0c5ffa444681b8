package route

// LeveragedEntry maps an index or sector to its bull/inverse leveraged ETFs.
type LeveragedEntry struct {
	Bull     string
	Inverse  string
	Leverage float64
}

// Direct index proxies checked before any sector match.
var indexCatalog = map[string]LeveragedEntry{
	"SPY": {Bull: "SPXL", Inverse: "SPXU", Leverage: 3},
	"QQQ": {Bull: "TQQQ", Inverse: "SQQQ", Leverage: 3},
	"IWM": {Bull: "TNA", Inverse: "TZA", Leverage: 3},
	"DIA": {Bull: "UDOW", Inverse: "SDOW", Leverage: 3},
}

var sectorCatalog = map[string]LeveragedEntry{
	"technology":     {Bull: "TECL", Inverse: "TECS", Leverage: 3},
	"semiconductors": {Bull: "SOXL", Inverse: "SOXS", Leverage: 3},
	"financials":     {Bull: "FAS", Inverse: "FAZ", Leverage: 3},
	"energy":         {Bull: "ERX", Inverse: "ERY", Leverage: 2},
	"healthcare":     {Bull: "CURE", Inverse: "RXD", Leverage: 3},
	"biotech":        {Bull: "LABU", Inverse: "LABD", Leverage: 3},
	"retail":         {Bull: "RETL", Inverse: "RETS", Leverage: 3},
	"homebuilders":   {Bull: "NAIL", Inverse: "CLAW", Leverage: 3},
}

// Broad-market fallback when neither index nor sector matches.
var broadMarket = LeveragedEntry{Bull: "SPXL", Inverse: "SPXU", Leverage: 3}

var sectorBySymbol = map[string]string{
	"AAPL":  "technology",
	"MSFT":  "technology",
	"GOOG":  "technology",
	"GOOGL": "technology",
	"META":  "technology",
	"CRM":   "technology",
	"ORCL":  "technology",
	"NVDA":  "semiconductors",
	"AMD":   "semiconductors",
	"AVGO":  "semiconductors",
	"INTC":  "semiconductors",
	"MU":    "semiconductors",
	"TSM":   "semiconductors",
	"JPM":   "financials",
	"BAC":   "financials",
	"GS":    "financials",
	"MS":    "financials",
	"WFC":   "financials",
	"XOM":   "energy",
	"CVX":   "energy",
	"COP":   "energy",
	"SLB":   "energy",
	"UNH":   "healthcare",
	"JNJ":   "healthcare",
	"PFE":   "healthcare",
	"LLY":   "healthcare",
	"MRNA":  "biotech",
	"AMGN":  "biotech",
	"GILD":  "biotech",
	"AMZN":  "retail",
	"WMT":   "retail",
	"TGT":   "retail",
	"HD":    "homebuilders",
	"LEN":   "homebuilders",
	"DHI":   "homebuilders",
}

// SectorOf returns the catalog sector for a ticker, empty when unmapped.
func SectorOf(ticker string) string {
	return sectorBySymbol[ticker]
}

// LookupLeveraged resolves a signal ticker to its leveraged proxy: direct
// index match first, sector match second, broad-market fallback last.
func LookupLeveraged(ticker string) (LeveragedEntry, string) {
	if entry, ok := indexCatalog[ticker]; ok {
		return entry, "index"
	}
	if sector := SectorOf(ticker); sector != "" {
		if entry, ok := sectorCatalog[sector]; ok {
			return entry, sector
		}
	}
	return broadMarket, "broad_market"
}

// MaxHoldDaysFor caps the holding duration by leverage factor.
func MaxHoldDaysFor(leverage float64) int {
	if leverage >= 3 {
		return 5
	}
	return 10
}
