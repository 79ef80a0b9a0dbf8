package training

import (
	"fmt"
	"math/rand"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// SubsetDataset exposes a selection of samples from an underlying dataset.
type SubsetDataset struct {
	originalDataset Dataset
	indices         []int
}

// NewSubsetDataset creates a new SubsetDataset that wraps an existing dataset
// and limits the number of samples it exposes to its first limit samples.
func NewSubsetDataset(original Dataset, limit int) (*SubsetDataset, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative")
	}
	if limit > original.Len() {
		limit = original.Len() // Adjust limit if it's greater than the original dataset's length
	}
	indices := make([]int, limit)
	for i := range indices {
		indices[i] = i
	}
	return &SubsetDataset{originalDataset: original, indices: indices}, nil
}

// NewIndexedSubset exposes the samples at indices, in that order.
func NewIndexedSubset(original Dataset, indices []int) (*SubsetDataset, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= original.Len() {
			return nil, fmt.Errorf("subset index %d out of range [0, %d)", idx, original.Len())
		}
	}
	return &SubsetDataset{originalDataset: original, indices: append([]int(nil), indices...)}, nil
}

// Len returns the number of samples in the subset.
func (sd *SubsetDataset) Len() int {
	return len(sd.indices)
}

// Get returns a sample at the given index from the original dataset.
func (sd *SubsetDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= len(sd.indices) {
		return nil, nil, fmt.Errorf("index out of bounds for subset: %d (size: %d)", idx, len(sd.indices))
	}
	return sd.originalDataset.Get(sd.indices[idx])
}

// SplitDataset shuffles ds with rng and splits it into a training subset
// holding trainFraction of the samples and a test subset with the rest.
func SplitDataset(ds Dataset, trainFraction float64, rng *rand.Rand) (train, test *SubsetDataset, err error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, fmt.Errorf("train fraction must be in (0, 1), got %f", trainFraction)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	perm := rng.Perm(ds.Len())
	cut := int(float64(len(perm)) * trainFraction)
	if cut == 0 || cut == len(perm) {
		return nil, nil, fmt.Errorf("split of %d samples at %f leaves an empty side", len(perm), trainFraction)
	}

	if train, err = NewIndexedSubset(ds, perm[:cut]); err != nil {
		return nil, nil, err
	}
	if test, err = NewIndexedSubset(ds, perm[cut:]); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}
