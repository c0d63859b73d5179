package strategy

import "math"

// SMA returns the simple moving average aligned with values; the first
// period-1 entries are NaN. It returns nil when values are too short.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// Bollinger returns the middle, upper and lower bands using the population
// standard deviation of each window.
func Bollinger(values []float64, period int, k float64) (mid, upper, lower []float64) {
	mid = SMA(values, period)
	if mid == nil {
		return nil, nil, nil
	}
	upper = make([]float64, len(values))
	lower = make([]float64, len(values))
	for i := range values {
		if i < period-1 {
			upper[i], lower[i] = math.NaN(), math.NaN()
			continue
		}
		mean := mid[i]
		ss := 0.0
		for _, v := range values[i-period+1 : i+1] {
			d := v - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period))
		upper[i] = mean + k*sd
		lower[i] = mean - k*sd
	}
	return mid, upper, lower
}

// RSI is Wilder's relative strength index. Entries before period are NaN.
// A window with no movement reads 50.
func RSI(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period+1 {
		return nil
	}
	out := make([]float64, len(values))
	for i := 0; i < period; i++ {
		out[i] = math.NaN()
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	out[period] = rsiValue(gain, loss)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+gain/loss)
}
