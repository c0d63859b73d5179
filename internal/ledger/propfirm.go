package ledger

import "strings"

// PropFirm is the evaluation profile a firm applies to its funded accounts.
type PropFirm struct {
	Key               string  `json:"key"`
	Name              string  `json:"name"`
	ProfitSplitPct    float64 `json:"profitSplit"`
	MaxDrawdownPct    float64 `json:"maxDrawdown"`
	DailyLossLimitPct float64 `json:"dailyLossLimit"`
}

var propFirms = map[string]PropFirm{
	"DNA_FUNDED":      {Key: "DNA_FUNDED", Name: "DNA Funded", ProfitSplitPct: 80, MaxDrawdownPct: 10, DailyLossLimitPct: 5},
	"BRIGHT_FUNDED":   {Key: "BRIGHT_FUNDED", Name: "Bright Funded", ProfitSplitPct: 70, MaxDrawdownPct: 10, DailyLossLimitPct: 5},
	"TOP_TIER_TRADER": {Key: "TOP_TIER_TRADER", Name: "Top Tier Trader", ProfitSplitPct: 80, MaxDrawdownPct: 10, DailyLossLimitPct: 5},
}

func LookupPropFirm(key string) (PropFirm, bool) {
	f, ok := propFirms[strings.ToUpper(strings.TrimSpace(key))]
	return f, ok
}

// MinInitialBalance is the smallest challenge size accepted.
const MinInitialBalance = 1000.0
