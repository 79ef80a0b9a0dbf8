// Package datasets generates small deterministic classification problems for
// demos and tests.
package datasets

import (
	"fmt"
	"math/rand"
)

// Blobs is a labelled sample set with one feature row per label.
type Blobs struct {
	Rows   [][]float64
	Labels []int
}

// Len returns the number of samples.
func (b *Blobs) Len() int {
	return len(b.Labels)
}

// Features returns the width of each row.
func (b *Blobs) Features() int {
	if len(b.Rows) == 0 {
		return 0
	}
	return len(b.Rows[0])
}

// Classes returns one more than the largest label.
func (b *Blobs) Classes() int {
	n := 0
	for _, l := range b.Labels {
		if l+1 > n {
			n = l + 1
		}
	}
	return n
}

// IrisCenters are three cluster means laid out like the standardized Iris
// measurements (sepal length, sepal width, petal length, petal width).
var IrisCenters = [][]float64{
	{-1.0, 0.9, -1.3, -1.2},
	{0.1, -0.7, 0.3, 0.1},
	{0.9, -0.1, 1.0, 1.1},
}

// BlobConfig describes a Gaussian cluster problem.
type BlobConfig struct {
	Centers [][]float64 // one mean per class, all the same width
	Samples int         // total samples, spread round-robin over classes
	Spread  float64     // per-feature standard deviation
	Seed    int64
}

// DefaultIrisConfig returns the Iris-shaped problem: 4 features, 3 classes.
func DefaultIrisConfig(samples int, seed int64) BlobConfig {
	return BlobConfig{
		Centers: IrisCenters,
		Samples: samples,
		Spread:  0.35,
		Seed:    seed,
	}
}

// MakeBlobs draws cfg.Samples points from isotropic Gaussians around each
// center. Labels cycle 0, 1, ..., k-1 so every class is equally represented,
// and rows are shuffled with the same seed.
func MakeBlobs(cfg BlobConfig) (*Blobs, error) {
	if len(cfg.Centers) < 2 {
		return nil, fmt.Errorf("need at least two centers, got %d", len(cfg.Centers))
	}
	if cfg.Samples <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", cfg.Samples)
	}
	if cfg.Spread <= 0 {
		return nil, fmt.Errorf("spread must be positive, got %f", cfg.Spread)
	}
	width := len(cfg.Centers[0])
	for i, c := range cfg.Centers {
		if len(c) != width || width == 0 {
			return nil, fmt.Errorf("center %d has %d features, expected %d", i, len(c), width)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	blobs := &Blobs{
		Rows:   make([][]float64, cfg.Samples),
		Labels: make([]int, cfg.Samples),
	}
	for i := 0; i < cfg.Samples; i++ {
		class := i % len(cfg.Centers)
		row := make([]float64, width)
		for j, mu := range cfg.Centers[class] {
			row[j] = mu + cfg.Spread*rng.NormFloat64()
		}
		blobs.Rows[i] = row
		blobs.Labels[i] = class
	}

	rng.Shuffle(cfg.Samples, func(i, j int) {
		blobs.Rows[i], blobs.Rows[j] = blobs.Rows[j], blobs.Rows[i]
		blobs.Labels[i], blobs.Labels[j] = blobs.Labels[j], blobs.Labels[i]
	})
	return blobs, nil
}

// MakeIris is MakeBlobs with DefaultIrisConfig.
func MakeIris(samples int, seed int64) (*Blobs, error) {
	return MakeBlobs(DefaultIrisConfig(samples, seed))
}
