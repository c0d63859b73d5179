package ledger

// TradingSymbols is the instrument universe accepted for trades and strategies.
var TradingSymbols = []string{
	"EURUSD", "GBPUSD", "USDJPY", "AUDUSD", "NZDUSD", "USDCAD", "USDCHF",
	"EURJPY", "GBPJPY", "AUDJPY",
	"GOLD", "OIL",
	"SP500", "DAX", "FTSE",
}

var symbolSet = func() map[string]struct{} {
	out := make(map[string]struct{}, len(TradingSymbols))
	for _, s := range TradingSymbols {
		out[s] = struct{}{}
	}
	return out
}()

func IsTradingSymbol(s string) bool {
	_, ok := symbolSet[s]
	return ok
}
