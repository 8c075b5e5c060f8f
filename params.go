package detloss

import "fmt"

// Params defines the configuration of the loss pipeline.  All values are
// fixed at construction and never mutated afterwards.
type Params struct {
	// NumClasses is the number of object classes the detector predicts
	NumClasses int
	// RegMax is the number of discretisation bins per box side used by the
	// distributional box regression.  A value of 1 disables the
	// distribution focal term and treats the logits as plain offsets.
	RegMax int
	// EmbeddingSize is the length of the per position instance embedding
	EmbeddingSize int
	// Strides are the feature level strides in pixels, finest level first
	Strides []float32
	// TopK is the number of candidate positions per instance considered by
	// the task aligned assigner
	TopK int
	// EmbedTopK is the default number of highest quality positions per
	// instance contributing to the embedding loss
	EmbedTopK int
	// BoxGain scales the localisation term
	BoxGain float32
	// ClsGain scales the classification term
	ClsGain float32
	// DFLGain scales the distribution regression term
	DFLGain float32
	// EmbedGain scales the embedding term
	EmbedGain float32
}

// DefaultParams returns an instance of Params configured with the default
// values used for a COCO trained embedding detector featuring:
//   - Object Classes: 80
//   - Regression Bins: 16 per box side
//   - Embedding Size: 256
//   - Strides: 8, 16 and 32
//   - Assigner Top-K: 10, Embedding Top-K: 3
//   - Loss Gains: box 7.5, cls 0.5, dfl 1.5, embed 1.0
func DefaultParams() Params {
	return Params{
		NumClasses:    80,
		RegMax:        16,
		EmbeddingSize: 256,
		Strides:       []float32{8, 16, 32},
		TopK:          10,
		EmbedTopK:     3,
		BoxGain:       7.5,
		ClsGain:       0.5,
		DFLGain:       1.5,
		EmbedGain:     1.0,
	}
}

// validate checks that the configuration describes a usable pipeline.
func (p Params) validate() error {

	if p.NumClasses < 1 {
		return fmt.Errorf("num classes must be positive, got %d", p.NumClasses)
	}

	if p.RegMax < 1 {
		return fmt.Errorf("reg max must be at least 1, got %d", p.RegMax)
	}

	if p.EmbeddingSize < 1 {
		return fmt.Errorf("embedding size must be positive, got %d", p.EmbeddingSize)
	}

	if len(p.Strides) == 0 {
		return fmt.Errorf("at least one feature level stride is required")
	}

	for i, s := range p.Strides {
		if s <= 0 {
			return fmt.Errorf("stride %d must be positive, got %v", i, s)
		}
	}

	if p.TopK < 1 {
		return fmt.Errorf("assigner topk must be positive, got %d", p.TopK)
	}

	if p.EmbedTopK < 1 {
		return fmt.Errorf("embed topk must be positive, got %d", p.EmbedTopK)
	}

	return nil
}
