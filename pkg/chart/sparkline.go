package chart

import (
	"math"
	"strings"
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws values as a row of block characters, resampled to at most
// width columns.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = resample(values, width)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var b strings.Builder
	for _, v := range values {
		b.WriteRune(sparkBlocks[blockIndex(v, lo, hi)])
	}
	return b.String()
}

// blockIndex scales v into the block range. Halving before subtracting keeps
// hi-lo finite for ranges close to the float64 limits.
func blockIndex(v, lo, hi float64) int {
	if !(hi > lo) {
		return 0
	}
	ratio := (v/2 - lo/2) / (hi/2 - lo/2)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0
	}
	idx := int(ratio * float64(len(sparkBlocks)-1))
	if idx < 0 {
		return 0
	}
	if idx >= len(sparkBlocks) {
		return len(sparkBlocks) - 1
	}
	return idx
}

func resample(values []float64, width int) []float64 {
	ret := make([]float64, width)
	step := float64(len(values)) / float64(width)
	for i := range ret {
		ret[i] = values[int(float64(i)*step)]
	}
	return ret
}
