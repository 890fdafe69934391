package converter

import "math"

const bytesPerMegabyte = 1024 * 1024

func BytesToMegabytes(bytes int64) float64 {
	return float64(bytes) / bytesPerMegabyte
}

// OptionalBytesToMegabytes rounds to two decimals, keeping nil as nil.
func OptionalBytesToMegabytes(bytes *int64) *float64 {
	if bytes == nil {
		return nil
	}
	mb := RoundTo(BytesToMegabytes(*bytes), 2)
	return &mb
}

func RoundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
