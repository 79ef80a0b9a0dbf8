package training

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/PotapenkoOleg/PyTorch/tensor"
)

// Dataset interface defines methods that all datasets must implement
type Dataset interface {
	Len() int                                                           // Total number of samples
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) // Returns a single sample
}

// DataLoader provides batching and per-epoch shuffling
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a new DataLoader. Shuffling draws from rng so runs are
// reproducible; a nil rng is seeded with 1.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, rng *rand.Rand) (*DataLoader, error) {
	if dataset == nil {
		return nil, fmt.Errorf("dataset is nil")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	datasetLen := dataset.Len()
	indices := make([]int, datasetLen)
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rng,
		indices:   indices,
		position:  0,
	}, nil
}

// Batch represents a batch of data and labels
type Batch struct {
	Data   *tensor.Tensor // [B, features] Float64
	Labels *tensor.Tensor // [B] Int32 class indices, or [B, k] regression targets
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return b.Data.Shape[0]
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// BatchSize returns the configured batch size.
func (dl *DataLoader) BatchSize() int {
	return dl.batchSize
}

// Dataset returns the underlying dataset.
func (dl *DataLoader) Dataset() Dataset {
	return dl.dataset
}

// Reset resets the data loader for a new epoch
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch or nil if epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}

	return batch, nil
}

// HasNext returns true if there are more batches in the current epoch
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// loadBatch loads a batch of samples and stacks them along a new leading
// dimension. Single-element labels collapse to a [B] vector.
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}
	batchSize := len(indices)

	firstData, firstLabel, err := dl.dataset.Get(indices[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load sample %d: %w", indices[0], err)
	}

	dataShape := append([]int{batchSize}, firstData.Shape...)
	labelShape := []int{batchSize}
	if firstLabel.NumElems > 1 {
		labelShape = append(labelShape, firstLabel.Shape...)
	}

	batchData, err := tensor.Zeros(dataShape, firstData.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch data tensor: %w", err)
	}
	batchLabels, err := tensor.Zeros(labelShape, firstLabel.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch labels tensor: %w", err)
	}

	for i, idx := range indices {
		data, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %w", idx, err)
		}
		if err := copyInto(batchData, data, i); err != nil {
			return nil, fmt.Errorf("failed to copy data for sample %d: %w", idx, err)
		}
		if err := copyInto(batchLabels, label, i); err != nil {
			return nil, fmt.Errorf("failed to copy label for sample %d: %w", idx, err)
		}
	}

	return &Batch{
		Data:   batchData,
		Labels: batchLabels,
	}, nil
}

// copyInto copies a sample tensor into a specific position in the batch tensor
func copyInto(batchTensor, sampleTensor *tensor.Tensor, batchIndex int) error {
	if batchTensor.DType != sampleTensor.DType {
		return fmt.Errorf("dtype mismatch: batch %s, sample %s", batchTensor.DType, sampleTensor.DType)
	}

	sampleSize := sampleTensor.NumElems
	if sampleSize*batchTensor.Shape[0] != batchTensor.NumElems {
		return &tensor.ShapeError{
			Op:       "DataLoader",
			Field:    "sample",
			Expected: batchTensor.Shape[1:],
			Actual:   sampleTensor.Shape,
		}
	}
	offset := batchIndex * sampleSize

	switch batchTensor.DType {
	case tensor.Float64:
		copy(batchTensor.Data.([]float64)[offset:offset+sampleSize], sampleTensor.Data.([]float64))
	case tensor.Int32:
		copy(batchTensor.Data.([]int32)[offset:offset+sampleSize], sampleTensor.Data.([]int32))
	default:
		return fmt.Errorf("unsupported dtype for batch copying: %s", batchTensor.DType)
	}

	return nil
}

// TensorDataset serves rows of an in-memory [N, features] matrix with one
// class label per row.
type TensorDataset struct {
	features int
	data     []float64
	labels   []int32
}

// NewTensorDataset creates a dataset from a [N, features] Float64 tensor and
// N class labels.
func NewTensorDataset(data *tensor.Tensor, labels []int) (*TensorDataset, error) {
	if data == nil || data.DType != tensor.Float64 || len(data.Shape) != 2 {
		return nil, fmt.Errorf("data must be a 2D Float64 tensor")
	}
	if data.Shape[0] != len(labels) {
		return nil, fmt.Errorf("data and labels must have the same length: got %d and %d", data.Shape[0], len(labels))
	}

	lbl := make([]int32, len(labels))
	for i, l := range labels {
		if l < 0 {
			return nil, fmt.Errorf("label %d at index %d is negative", l, i)
		}
		lbl[i] = int32(l)
	}
	return &TensorDataset{
		features: data.Shape[1],
		data:     append([]float64(nil), data.Float64s()...),
		labels:   lbl,
	}, nil
}

// NewTensorDatasetFromRows is a convenience wrapper over NewTensorDataset.
func NewTensorDatasetFromRows(rows [][]float64, labels []int) (*TensorDataset, error) {
	data, err := tensor.FromRows(rows)
	if err != nil {
		return nil, err
	}
	return NewTensorDataset(data, labels)
}

// Len returns the number of samples in the dataset
func (ds *TensorDataset) Len() int {
	return len(ds.labels)
}

// Features returns the width of each sample.
func (ds *TensorDataset) Features() int {
	return ds.features
}

// Get returns a sample at the given index
func (ds *TensorDataset) Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error) {
	if idx < 0 || idx >= len(ds.labels) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.labels))
	}

	row := make([]float64, ds.features)
	copy(row, ds.data[idx*ds.features:(idx+1)*ds.features])
	data, err = tensor.NewTensor([]int{ds.features}, tensor.Float64, row)
	if err != nil {
		return nil, nil, err
	}
	label, err = tensor.NewTensor([]int{1}, tensor.Int32, []int32{ds.labels[idx]})
	if err != nil {
		return nil, nil, err
	}
	return data, label, nil
}
