package detloss

import (
	"fmt"

	"github.com/detgo/go-detloss/assign"
	"github.com/detgo/go-detloss/embed"
)

// gridOffset centers anchor points inside their grid cells.
const gridOffset = 0.5

// DetectionLoss computes the combined training loss over a batch of raw
// detector outputs and ground truth annotations.  Construct once with New
// and reuse across training steps; Compute is a pure function of its inputs
// and the fixed configuration.
type DetectionLoss struct {
	params   Params
	assigner *assign.Assigner
	codec    boxCodec
	bbox     bboxLoss
}

// Predictions are the raw network outputs for one batch: parallel lists of
// detection and embedding feature maps, one pair per configured stride with
// equal spatial dimensions per level.
type Predictions struct {
	// Detect maps carry NumClasses + 4*RegMax channels each
	Detect []FeatureMap
	// Embed maps carry EmbeddingSize channels each
	Embed []FeatureMap
}

// Result is the outcome of one loss forward pass.
type Result struct {
	// Total is the gain weighted sum of the four terms
	Total float32
	// Box, Cls, DFL and Embed are the gain weighted per term values
	Box   float32
	Cls   float32
	DFL   float32
	Embed float32
	// Foreground marks the batch*positions assigned to an instance
	Foreground []bool
}

// New returns a DetectionLoss for the given configuration.
func New(p Params) (*DetectionLoss, error) {

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	return &DetectionLoss{
		params:   p,
		assigner: assign.NewAssigner(p.TopK, p.NumClasses),
		codec:    newBoxCodec(p.RegMax),
		bbox:     bboxLoss{regMax: p.RegMax},
	}, nil
}

// Compute runs the full loss pipeline for one batch.  embedTopK overrides
// the per instance embedding selection count; values of zero or below fall
// back to Params.EmbedTopK.
func (l *DetectionLoss) Compute(preds Predictions, targets Targets,
	embedTopK int) (Result, error) {

	if err := l.checkShapes(preds, targets); err != nil {
		return Result{}, err
	}

	p := l.params

	if embedTopK <= 0 {
		embedTopK = p.EmbedTopK
	}

	batch := preds.Detect[0].Batch
	anchors := MakeAnchors(preds.Detect, p.Strides, gridOffset)
	numAnchors := anchors.Total
	nc := p.NumClasses
	es := p.EmbeddingSize

	// split the detection heads into distribution and class logits and
	// flatten all levels into position major slices
	predDist := make([]float32, batch*numAnchors*4*p.RegMax)
	predScores := make([]float32, batch*numAnchors*nc)
	flattenHeads(preds.Detect, 0, 4*p.RegMax, predDist)
	flattenHeads(preds.Detect, 4*p.RegMax, nc, predScores)

	predEmbeds := make([]float32, batch*numAnchors*es)
	flattenHeads(preds.Embed, 0, es, predEmbeds)
	embed.NormalizeRows(predEmbeds, es)

	// image size follows from the finest level grid
	imgW := float32(preds.Detect[0].Width) * p.Strides[0]
	imgH := float32(preds.Detect[0].Height) * p.Strides[0]

	maxCount := maxPerImage(targets.ImageIndex, batch)
	gtLabels, gtBoxes, gtMask := padDetections(targets, batch, maxCount, imgW, imgH)
	gtEmbeds := padEmbeddings(targets, batch, maxCount, es)
	embed.NormalizeRows(gtEmbeds, es)

	// decoded boxes stay in grid units for the box loss; the assigner works
	// in absolute image coordinates
	predBoxes := l.codec.decode(predDist, anchors, batch)

	probs := make([]float32, len(predScores))

	for i, v := range predScores {
		probs[i] = sigmoid(v)
	}

	absBoxes := make([]float32, len(predBoxes))

	for i := 0; i < batch*numAnchors; i++ {
		s := anchors.Strides[i%numAnchors]

		for k := 0; k < 4; k++ {
			absBoxes[i*4+k] = predBoxes[i*4+k] * s
		}
	}

	absAnchors := make([]float32, len(anchors.Points))

	for pt := 0; pt < numAnchors; pt++ {
		s := anchors.Strides[pt]
		absAnchors[pt*2] = anchors.Points[pt*2] * s
		absAnchors[pt*2+1] = anchors.Points[pt*2+1] * s
	}

	asn := l.assigner.Assign(assign.Input{
		Scores:     probs,
		Boxes:      absBoxes,
		Embeds:     predEmbeds,
		Anchors:    absAnchors,
		GTLabels:   gtLabels,
		GTBoxes:    gtBoxes,
		GTEmbeds:   gtEmbeds,
		GTMask:     gtMask,
		Batch:      batch,
		NumAnchors: numAnchors,
		MaxBoxes:   maxCount,
		EmbedSize:  es,
	})

	// the normalisation sum is floored at one to keep divisions defined
	var scoreSum float64

	for _, v := range asn.Scores {
		scoreSum += float64(v)
	}

	norm := float32(scoreSum)

	if norm < 1 {
		norm = 1
	}

	res := Result{Foreground: asn.Foreground}

	// classification over every position, foreground or not
	var bce float64

	for i, x := range predScores {
		bce += float64(bceWithLogits(x, asn.Scores[i]))
	}

	res.Cls = float32(bce) / norm

	anyForeground := false

	for _, f := range asn.Foreground {
		if f {
			anyForeground = true
			break
		}
	}

	ious := make([]float32, batch*numAnchors)

	if anyForeground {

		// bring target boxes back into grid units
		targetBoxes := make([]float32, len(asn.Boxes))

		for i := 0; i < batch*numAnchors; i++ {
			s := anchors.Strides[i%numAnchors]

			for k := 0; k < 4; k++ {
				targetBoxes[i*4+k] = asn.Boxes[i*4+k] / s
			}
		}

		res.Box, res.DFL, ious = l.bbox.compute(predDist, predBoxes, anchors,
			targetBoxes, asn.Scores, norm, asn.Foreground, batch, nc)
	}

	// only the most reliable matches per instance pull on the embedding
	// space
	selected := selectEmbedPositions(ious, asn.Scores, asn.Foreground,
		asn.GTIndex, batch, numAnchors, nc, embedTopK)

	count := 0

	for _, s := range selected {
		if s {
			count++
		}
	}

	predSel := make([]float32, 0, count*es)
	targetSel := make([]float32, 0, count*es)

	for i, s := range selected {
		if !s {
			continue
		}

		predSel = append(predSel, predEmbeds[i*es:(i+1)*es]...)
		targetSel = append(targetSel, asn.Embeds[i*es:(i+1)*es]...)
	}

	res.Embed = embed.Distance(predSel, targetSel, count, es) +
		embed.Relational(predSel, targetSel, count, es)

	res.Box *= p.BoxGain
	res.Cls *= p.ClsGain
	res.DFL *= p.DFLGain
	res.Embed *= p.EmbedGain
	res.Total = res.Box + res.Cls + res.DFL + res.Embed

	return res, nil
}

// checkShapes verifies that the prediction tensors agree with the configured
// class count, bin count and embedding size before any indexing happens.
func (l *DetectionLoss) checkShapes(preds Predictions, targets Targets) error {

	p := l.params

	if len(preds.Detect) != len(p.Strides) {
		return fmt.Errorf("got %d detection levels, config has %d strides",
			len(preds.Detect), len(p.Strides))
	}

	if len(preds.Embed) != len(preds.Detect) {
		return fmt.Errorf("got %d embedding levels for %d detection levels",
			len(preds.Embed), len(preds.Detect))
	}

	if len(preds.Detect) == 0 {
		return fmt.Errorf("predictions contain no feature levels")
	}

	batch := preds.Detect[0].Batch
	wantDet := p.NumClasses + 4*p.RegMax

	for i, fm := range preds.Detect {

		if fm.Channels != wantDet {
			return fmt.Errorf("detection level %d has %d channels, want %d (classes + 4*reg_max)",
				i, fm.Channels, wantDet)
		}

		if fm.Batch != batch {
			return fmt.Errorf("detection level %d has batch %d, want %d",
				i, fm.Batch, batch)
		}

		if len(fm.Data) != fm.Batch*fm.Channels*fm.Height*fm.Width {
			return fmt.Errorf("detection level %d buffer has %d values, want %d",
				i, len(fm.Data), fm.Batch*fm.Channels*fm.Height*fm.Width)
		}

		em := preds.Embed[i]

		if em.Channels != p.EmbeddingSize {
			return fmt.Errorf("embedding level %d has %d channels, want %d",
				i, em.Channels, p.EmbeddingSize)
		}

		if em.Batch != batch || em.Height != fm.Height || em.Width != fm.Width {
			return fmt.Errorf("embedding level %d shape (%d,%d,%d) does not match detection level (%d,%d,%d)",
				i, em.Batch, em.Height, em.Width, batch, fm.Height, fm.Width)
		}

		if len(em.Data) != em.Batch*em.Channels*em.Height*em.Width {
			return fmt.Errorf("embedding level %d buffer has %d values, want %d",
				i, len(em.Data), em.Batch*em.Channels*em.Height*em.Width)
		}
	}

	n := len(targets.ImageIndex)

	if len(targets.Classes) != n {
		return fmt.Errorf("targets have %d classes for %d rows", len(targets.Classes), n)
	}

	if len(targets.Boxes) != n*4 {
		return fmt.Errorf("targets have %d box values for %d rows", len(targets.Boxes), n)
	}

	if len(targets.Embeddings) != n*p.EmbeddingSize {
		return fmt.Errorf("targets have %d embedding values for %d rows of size %d",
			len(targets.Embeddings), n, p.EmbeddingSize)
	}

	return nil
}
