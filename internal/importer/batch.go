package importer

// MaxBatchSize is the largest number of documents committed in one batch.
const MaxBatchSize = 400

// Batches splits n documents into [start, end) windows of at most size
// documents. There are exactly ceil(n/size) windows: 400 gives one, 401 and
// 800 give two, zero gives none.
func Batches(n, size int) [][2]int {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	if n <= 0 {
		return nil
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
