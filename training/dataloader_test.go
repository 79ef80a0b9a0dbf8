package training

import (
	"math/rand"
	"testing"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

func newSequentialDataset(t *testing.T, n int) *TensorDataset {
	t.Helper()
	rows := make([][]float64, n)
	labels := make([]int, n)
	for i := range rows {
		rows[i] = []float64{float64(i), float64(i) * 10}
		labels[i] = i % 3
	}
	ds, err := NewTensorDatasetFromRows(rows, labels)
	if err != nil {
		t.Fatalf("failed to build dataset: %v", err)
	}
	return ds
}

// firstColumn returns the sample indices encoded in column 0 of a batch.
func firstColumn(b *Batch) []int {
	data := b.Data.Float64s()
	width := b.Data.Shape[1]
	ids := make([]int, b.Size())
	for i := range ids {
		ids[i] = int(data[i*width])
	}
	return ids
}

func TestTensorDatasetGet(t *testing.T) {
	ds := newSequentialDataset(t, 5)
	if ds.Len() != 5 || ds.Features() != 2 {
		t.Fatalf("unexpected dataset size %d x %d", ds.Len(), ds.Features())
	}

	data, label, err := ds.Get(3)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !tensor.ShapesEqual(data.Shape, []int{2}) {
		t.Errorf("expected data shape [2], got %v", data.Shape)
	}
	if v := data.Float64s(); v[0] != 3 || v[1] != 30 {
		t.Errorf("unexpected row %v", v)
	}
	labels, _ := label.GetInt32Data()
	if labels[0] != 0 {
		t.Errorf("expected label 0, got %d", labels[0])
	}

	if _, _, err := ds.Get(5); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestNewTensorDatasetValidation(t *testing.T) {
	if _, err := NewTensorDatasetFromRows([][]float64{{1}, {2}}, []int{0}); err == nil {
		t.Error("expected error for length mismatch")
	}
	if _, err := NewTensorDatasetFromRows([][]float64{{1}}, []int{-1}); err == nil {
		t.Error("expected error for negative label")
	}
	if _, err := NewTensorDatasetFromRows([][]float64{{1, 2}, {3}}, []int{0, 1}); err == nil {
		t.Error("expected error for ragged rows")
	}
}

func TestDataLoaderBatching(t *testing.T) {
	ds := newSequentialDataset(t, 10)
	loader, err := NewDataLoader(ds, 4, false, nil)
	if err != nil {
		t.Fatalf("NewDataLoader failed: %v", err)
	}
	if loader.Len() != 3 {
		t.Errorf("expected 3 batches, got %d", loader.Len())
	}

	loader.Reset()
	var sizes []int
	var seen []int
	for loader.HasNext() {
		batch, err := loader.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		sizes = append(sizes, batch.Size())
		seen = append(seen, firstColumn(batch)...)

		if !tensor.ShapesEqual(batch.Labels.Shape, []int{batch.Size()}) {
			t.Errorf("labels shape %v, expected [%d]", batch.Labels.Shape, batch.Size())
		}
		if batch.Labels.DType != tensor.Int32 {
			t.Errorf("labels dtype %s, expected int32", batch.Labels.DType)
		}
	}

	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("unexpected batch sizes %v", sizes)
	}
	for i, id := range seen {
		if id != i {
			t.Fatalf("unshuffled loader returned sample %d at position %d", id, i)
		}
	}

	batch, err := loader.Next()
	if err != nil || batch != nil {
		t.Errorf("expected nil batch at end of epoch, got %v, %v", batch, err)
	}
}

func TestDataLoaderShuffle(t *testing.T) {
	ds := newSequentialDataset(t, 20)

	epoch := func(loader *DataLoader) []int {
		loader.Reset()
		var ids []int
		for loader.HasNext() {
			batch, err := loader.Next()
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			ids = append(ids, firstColumn(batch)...)
		}
		return ids
	}

	a, _ := NewDataLoader(ds, 6, true, rand.New(rand.NewSource(99)))
	b, _ := NewDataLoader(ds, 6, true, rand.New(rand.NewSource(99)))
	first, second := epoch(a), epoch(b)

	if len(first) != 20 {
		t.Fatalf("expected 20 samples, got %d", len(first))
	}
	seen := make(map[int]bool)
	for i, id := range first {
		if id != second[i] {
			t.Fatal("same seed should give the same order")
		}
		seen[id] = true
	}
	if len(seen) != 20 {
		t.Errorf("epoch visited %d distinct samples, expected 20", len(seen))
	}

	inOrder := true
	for i, id := range first {
		if id != i {
			inOrder = false
			break
		}
	}
	if inOrder {
		t.Error("shuffled epoch came out in order")
	}

	next := epoch(a)
	same := true
	for i := range next {
		if next[i] != first[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive epochs should reshuffle")
	}
}

func TestNewDataLoaderValidation(t *testing.T) {
	ds := newSequentialDataset(t, 3)
	if _, err := NewDataLoader(nil, 2, false, nil); err == nil {
		t.Error("expected error for nil dataset")
	}
	if _, err := NewDataLoader(ds, 0, false, nil); err == nil {
		t.Error("expected error for zero batch size")
	}
}

func TestSubsetDataset(t *testing.T) {
	ds := newSequentialDataset(t, 10)

	sub, err := NewSubsetDataset(ds, 4)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 4 {
		t.Errorf("expected 4 samples, got %d", sub.Len())
	}
	capped, _ := NewSubsetDataset(ds, 50)
	if capped.Len() != 10 {
		t.Errorf("limit should be capped at 10, got %d", capped.Len())
	}
	if _, err := NewSubsetDataset(ds, -1); err == nil {
		t.Error("expected error for negative limit")
	}

	indexed, err := NewIndexedSubset(ds, []int{7, 2})
	if err != nil {
		t.Fatal(err)
	}
	data, _, _ := indexed.Get(0)
	if data.Float64s()[0] != 7 {
		t.Errorf("expected sample 7, got %v", data.Float64s())
	}
	if _, err := NewIndexedSubset(ds, []int{10}); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestSplitDataset(t *testing.T) {
	ds := newSequentialDataset(t, 30)
	train, test, err := SplitDataset(ds, 0.8, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("SplitDataset failed: %v", err)
	}
	if train.Len() != 24 || test.Len() != 6 {
		t.Errorf("expected 24/6 split, got %d/%d", train.Len(), test.Len())
	}

	seen := make(map[float64]bool)
	for _, sub := range []*SubsetDataset{train, test} {
		for i := 0; i < sub.Len(); i++ {
			data, _, err := sub.Get(i)
			if err != nil {
				t.Fatal(err)
			}
			id := data.Float64s()[0]
			if seen[id] {
				t.Fatalf("sample %v appears twice", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != 30 {
		t.Errorf("split covers %d samples, expected 30", len(seen))
	}

	for _, f := range []float64{0, 1, 1.5} {
		if _, _, err := SplitDataset(ds, f, nil); err == nil {
			t.Errorf("expected error for fraction %f", f)
		}
	}
}
