package embedding

// AdjustToDims truncates or pads a vector to the target dimension.
// If target <= 0, vec is returned unchanged.
func AdjustToDims(vec []float32, target int) []float32 {
	if target <= 0 || len(vec) == target {
		return vec
	}
	if len(vec) > target {
		return vec[:target]
	}
	out := make([]float32, target)
	copy(out, vec)
	return out
}

// meanPool averages the rows of a [seq, hidden] block where mask is non-zero.
func meanPool(block []float32, mask []int64, hidden int) []float32 {
	out := make([]float32, hidden)
	var n float32
	for t, m := range mask {
		if m == 0 {
			continue
		}
		row := block[t*hidden : (t+1)*hidden]
		for k, v := range row {
			out[k] += v
		}
		n++
	}
	if n > 0 {
		for k := range out {
			out[k] /= n
		}
	}
	return out
}
