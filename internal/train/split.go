package train

import (
	"fmt"
	"math"
	"math/rand"
)

const (
	DefaultTestSize    = 0.2
	DefaultRandomState = 42
	cvFolds            = 5
)

// Split holds the deterministic holdout partition for one run. The same
// test size and seed always yield the same partition.
type Split struct {
	TrainIdx []int
	TestIdx  []int
	shuffled []int
}

func NewSplit(n int, testSize float64, seed int64) (Split, error) {
	if n < 2 {
		return Split{}, fmt.Errorf("need at least 2 rows, got %d", n)
	}
	if testSize <= 0 || testSize >= 1 {
		return Split{}, fmt.Errorf("test size must be in (0,1), got %v", testSize)
	}
	testCount := int(math.Round(float64(n) * testSize))
	if testCount < 1 {
		testCount = 1
	}
	if testCount >= n {
		testCount = n - 1
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return Split{
		TestIdx:  perm[:testCount],
		TrainIdx: perm[testCount:],
		shuffled: perm,
	}, nil
}

// Folds returns up to cvFolds contiguous validation folds over the
// shuffled index. Fewer rows than folds yields one fold per row.
func (s Split) Folds() [][]int {
	n := len(s.shuffled)
	k := cvFolds
	if n < k {
		k = n
	}
	folds := make([][]int, 0, k)
	size := n / k
	rem := n % k
	start := 0
	for i := 0; i < k; i++ {
		end := start + size
		if i < rem {
			end++
		}
		folds = append(folds, s.shuffled[start:end])
		start = end
	}
	return folds
}

// FoldTrain returns the complement of one validation fold.
func (s Split) FoldTrain(fold []int) []int {
	in := make(map[int]struct{}, len(fold))
	for _, i := range fold {
		in[i] = struct{}{}
	}
	out := make([]int, 0, len(s.shuffled)-len(fold))
	for _, i := range s.shuffled {
		if _, held := in[i]; !held {
			out = append(out, i)
		}
	}
	return out
}
