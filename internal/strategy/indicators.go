package strategy

import "math"

// Rolling indicator math used by the bundled strategies. Warmup bars (fewer
// than window samples) come back as NaN so conditions on them are false.

// RollingMean returns the simple moving average of values over window.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RollingStd returns the rolling sample standard deviation over window.
func RollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		win := values[i-window+1 : i+1]
		var mean float64
		for _, v := range win {
			mean += v
		}
		mean /= float64(window)
		var ss float64
		for _, v := range win {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// BollingerBands returns middle, upper and lower bands over closes.
func BollingerBands(closes []float64, window int, numStd float64) (middle, upper, lower []float64) {
	middle = RollingMean(closes, window)
	std := RollingStd(closes, window)
	upper = make([]float64, len(closes))
	lower = make([]float64, len(closes))
	for i := range closes {
		upper[i] = middle[i] + numStd*std[i]
		lower[i] = middle[i] - numStd*std[i]
	}
	return middle, upper, lower
}

// RSI returns the relative strength index over closes using simple rolling
// averages of gains and losses.
func RSI(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := range closes {
		if i == 0 {
			continue
		}
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := RollingMean(gains, window)
	avgLoss := RollingMean(losses, window)
	for i := range closes {
		switch {
		case i < window:
			out[i] = math.NaN()
		case avgLoss[i] == 0:
			out[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}
