package ml

// The float32 conversions below round each product before it is used, which
// stops the compiler from fusing a multiply and an add into one FMA
// instruction on architectures that have it. Without them the same inputs
// could produce different bits on amd64 and arm64.

func (t featureTerm) apply(row []float32) float32 {
	switch t.kind {
	case termSquare:
		v := row[t.left]
		return float32(v * v)
	case termProduct:
		return float32(row[t.left] * row[t.right])
	default:
		return row[t.left]
	}
}

// dot sums row[j]*coef[j] strictly left to right starting from zero.
func dot(row, coef []float32) float32 {
	var acc float32
	for j := range row {
		acc = acc + float32(row[j]*coef[j])
	}
	return acc
}
