package train

import (
	"testing"
)

func TestNewSplitIsDeterministic(t *testing.T) {
	a, err := NewSplit(100, 0.2, 42)
	if err != nil {
		t.Fatalf("NewSplit: %v", err)
	}
	b, err := NewSplit(100, 0.2, 42)
	if err != nil {
		t.Fatalf("NewSplit: %v", err)
	}
	if len(a.TestIdx) != 20 || len(a.TrainIdx) != 80 {
		t.Fatalf("unexpected sizes: %d test, %d train", len(a.TestIdx), len(a.TrainIdx))
	}
	for i := range a.TestIdx {
		if a.TestIdx[i] != b.TestIdx[i] {
			t.Fatalf("same seed produced different partitions")
		}
	}
}

func TestNewSplitDifferentSeeds(t *testing.T) {
	a, _ := NewSplit(100, 0.2, 42)
	b, _ := NewSplit(100, 0.2, 7)
	same := true
	for i := range a.TestIdx {
		if a.TestIdx[i] != b.TestIdx[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical partitions")
	}
}

func TestNewSplitRejectsTinyInput(t *testing.T) {
	if _, err := NewSplit(1, 0.2, 42); err == nil {
		t.Fatalf("expected error for single row")
	}
	if _, err := NewSplit(10, 0, 42); err == nil {
		t.Fatalf("expected error for zero test size")
	}
	if _, err := NewSplit(10, 1, 42); err == nil {
		t.Fatalf("expected error for full test size")
	}
}

func TestFoldsPartitionEveryRowOnce(t *testing.T) {
	split, err := NewSplit(23, 0.2, 42)
	if err != nil {
		t.Fatalf("NewSplit: %v", err)
	}
	folds := split.Folds()
	if len(folds) != 5 {
		t.Fatalf("expected 5 folds, got %d", len(folds))
	}
	seen := make(map[int]int)
	for _, fold := range folds {
		for _, idx := range fold {
			seen[idx]++
		}
	}
	if len(seen) != 23 {
		t.Fatalf("folds cover %d rows, want 23", len(seen))
	}
	for idx, count := range seen {
		if count != 1 {
			t.Fatalf("row %d appears %d times across folds", idx, count)
		}
	}
}

func TestFoldTrainIsComplement(t *testing.T) {
	split, err := NewSplit(20, 0.2, 42)
	if err != nil {
		t.Fatalf("NewSplit: %v", err)
	}
	fold := split.Folds()[0]
	train := split.FoldTrain(fold)
	if len(train)+len(fold) != 20 {
		t.Fatalf("train %d + fold %d != 20", len(train), len(fold))
	}
	inFold := make(map[int]struct{})
	for _, idx := range fold {
		inFold[idx] = struct{}{}
	}
	for _, idx := range train {
		if _, overlap := inFold[idx]; overlap {
			t.Fatalf("row %d in both fold and train", idx)
		}
	}
}
