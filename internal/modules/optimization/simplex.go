package optimization

import (
	"sort"
)

// projectSimplex writes into dst the Euclidean projection of x onto
// {w : w_i >= 0, sum(w) = 1}. The box bound w_i <= 1 follows from the two.
//
// Sort-based algorithm of Duchi et al. (2008): find the largest k such that
// u_k - (sum_{j<=k} u_j - 1)/k > 0 over u sorted descending, then shift and
// clip at zero.
func projectSimplex(dst, x []float64) []float64 {
	n := len(x)
	if dst == nil {
		dst = make([]float64, n)
	}
	if n == 0 {
		return dst
	}

	u := append([]float64(nil), x...)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var (
		cumulative float64
		theta      float64
	)
	for k, v := range u {
		cumulative += v
		t := (cumulative - 1) / float64(k+1)
		if v-t > 0 {
			theta = t
		}
	}

	for i, v := range x {
		dst[i] = max(v-theta, 0)
	}
	return dst
}
