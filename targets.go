package detloss

import (
	"github.com/detgo/go-detloss/box"
)

// Targets holds the flat ground truth annotation rows for one batch.  Row r
// of every slice describes the same instance; ImageIndex ties it to its
// image.  Image indices outside [0, batchSize) are a caller contract
// violation.
type Targets struct {
	// ImageIndex is the batch image each row belongs to
	ImageIndex []int
	// Classes is the object class per row
	Classes []int
	// Boxes holds 4 values per row in normalised center-size format
	Boxes []float32
	// Embeddings holds EmbeddingSize values per row
	Embeddings []float32
}

// maxPerImage returns the largest number of rows any single image of the
// batch carries.
func maxPerImage(imageIndex []int, batchSize int) int {

	counts := make([]int, batchSize)

	for _, img := range imageIndex {
		counts[img]++
	}

	max := 0

	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	return max
}

// padDetections copies the class and box rows into dense per image blocks of
// maxCount slots, rescaling boxes from normalised center-size format to
// absolute corner format.  Unused slots stay zero; a zero box is the padding
// sentinel reported through the validity mask.
func padDetections(t Targets, batchSize, maxCount int, imgW, imgH float32) (labels []int, boxes []float32, mask []bool) {

	labels = make([]int, batchSize*maxCount)
	boxes = make([]float32, batchSize*maxCount*4)
	mask = make([]bool, batchSize*maxCount)

	fill := make([]int, batchSize)

	for r, img := range t.ImageIndex {

		slot := img*maxCount + fill[img]
		fill[img]++

		labels[slot] = t.Classes[r]

		dst := boxes[slot*4 : slot*4+4]
		dst[0] = t.Boxes[r*4] * imgW
		dst[1] = t.Boxes[r*4+1] * imgH
		dst[2] = t.Boxes[r*4+2] * imgW
		dst[3] = t.Boxes[r*4+3] * imgH
		box.XYWHToXYXY(dst, dst)
	}

	for s := 0; s < batchSize*maxCount; s++ {
		sum := boxes[s*4] + boxes[s*4+1] + boxes[s*4+2] + boxes[s*4+3]
		mask[s] = sum > 0
	}

	return labels, boxes, mask
}

// padEmbeddings performs the identical dense reshape for the embedding rows,
// with no coordinate conversion.
func padEmbeddings(t Targets, batchSize, maxCount, embedSize int) []float32 {

	out := make([]float32, batchSize*maxCount*embedSize)
	fill := make([]int, batchSize)

	for r, img := range t.ImageIndex {

		slot := img*maxCount + fill[img]
		fill[img]++

		copy(out[slot*embedSize:(slot+1)*embedSize],
			t.Embeddings[r*embedSize:(r+1)*embedSize])
	}

	return out
}
