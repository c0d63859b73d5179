package marketdata

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var basePrices = map[string]float64{
	"EURUSD": 1.10,
	"GBPUSD": 1.27,
	"USDJPY": 150.0,
	"AUDUSD": 0.66,
	"NZDUSD": 0.61,
	"USDCAD": 1.36,
	"USDCHF": 0.88,
	"EURJPY": 163.0,
	"GBPJPY": 190.0,
	"AUDJPY": 99.0,
	"GOLD":   2300.0,
	"OIL":    80.0,
	"SP500":  5200.0,
	"DAX":    18000.0,
	"FTSE":   8000.0,
}

const maxHistory = 500

// Simulated is a seeded random walk per symbol. Each fetch appends one bar,
// so consecutive ticks see the market move.
type Simulated struct {
	Clock    clockwork.Clock
	Interval time.Duration
	// Volatility is the per-bar standard deviation as a fraction of price.
	Volatility float64

	mu      sync.Mutex
	rng     *rand.Rand
	history map[string][]OHLC
}

func NewSimulated(seed int64, clock clockwork.Clock) *Simulated {
	if seed == 0 {
		seed = 42
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Simulated{
		Clock:      clock,
		Interval:   time.Minute,
		Volatility: 0.0008,
		rng:        rand.New(rand.NewSource(seed)),
		history:    map[string][]OHLC{},
	}
}

func (s *Simulated) FetchSeries(ctx context.Context, symbol string, lookback int) ([]OHLC, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if lookback <= 0 {
		lookback = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bars := s.history[symbol]
	if len(bars) == 0 {
		bars = s.seedHistory(symbol, lookback)
	}
	for len(bars) < lookback {
		bars = s.prepend(bars)
	}
	bars = append(bars, s.next(bars[len(bars)-1], s.Clock.Now().UTC()))
	if len(bars) > maxHistory {
		bars = bars[len(bars)-maxHistory:]
	}
	s.history[symbol] = bars

	if lookback > len(bars) {
		lookback = len(bars)
	}
	out := make([]OHLC, lookback)
	copy(out, bars[len(bars)-lookback:])
	return out, nil
}

func (s *Simulated) seedHistory(symbol string, n int) []OHLC {
	price, ok := basePrices[symbol]
	if !ok {
		price = 100
	}
	start := s.Clock.Now().UTC().Add(-time.Duration(n) * s.Interval)
	bars := make([]OHLC, 0, n)
	prev := OHLC{Close: price, Timestamp: start}
	for i := 0; i < n; i++ {
		prev = s.next(prev, start.Add(time.Duration(i+1)*s.Interval))
		bars = append(bars, prev)
	}
	return bars
}

// prepend extends history backwards when a caller asks for more bars than
// were generated so far.
func (s *Simulated) prepend(bars []OHLC) []OHLC {
	first := bars[0]
	bar := OHLC{
		Open: first.Open, High: first.Open, Low: first.Open, Close: first.Open,
		Timestamp: first.Timestamp.Add(-s.Interval),
	}
	return append([]OHLC{bar}, bars...)
}

func (s *Simulated) next(prev OHLC, at time.Time) OHLC {
	open := prev.Close
	change := s.rng.NormFloat64() * s.Volatility * open
	closePrice := math.Max(open+change, open*0.5)
	wick := math.Abs(s.rng.NormFloat64()) * s.Volatility * open * 0.5
	return OHLC{
		Open:      open,
		High:      math.Max(open, closePrice) + wick,
		Low:       math.Min(open, closePrice) - wick,
		Close:     closePrice,
		Volume:    float64(100 + s.rng.Intn(900)),
		Timestamp: at,
	}
}
