package cpu

// Both operands of the products below are stored row-major with the shared
// dimension innermost: A is (m, k), B is (n, k). For convolutions this is the
// natural layout of NHWC pixels (rows of A) against OHWI filters (rows of B).

// matmulTransBFloat32 computes C = A · Bᵀ.
// C[i,j] = sum_k A[i,k] * B[j,k]
func matmulTransBFloat32(c, a, b []float32, m, k, n int) {
	for i := 0; i < m; i++ {
		ai := a[i*k:][:k]
		ci := c[i*n:][:n]
		for j := 0; j < n; j++ {
			bj := b[j*k:][:k]
			sum := float32(0)
			for kIdx, v := range ai {
				sum += v * bj[kIdx]
			}
			ci[j] = sum
		}
	}
}

// matmulTransBUint8 computes the raw integer product C = A · Bᵀ of uint8
// operands into int32. Zero-point corrections are applied by the caller
// from row sums.
func matmulTransBUint8(c []int32, a, b []uint8, m, k, n int) {
	for i := 0; i < m; i++ {
		ai := a[i*k:][:k]
		ci := c[i*n:][:n]
		for j := 0; j < n; j++ {
			bj := b[j*k:][:k]
			var sum int32
			for kIdx, v := range ai {
				sum += int32(v) * int32(bj[kIdx])
			}
			ci[j] = sum
		}
	}
}

// rowSumsUint8 returns the sum of each k-long row of a.
func rowSumsUint8(a []uint8, rows, k int) []int32 {
	sums := make([]int32, rows)
	for i := 0; i < rows; i++ {
		var s int32
		for _, v := range a[i*k:][:k] {
			s += int32(v)
		}
		sums[i] = s
	}
	return sums
}
