package detloss

import (
	"runtime"
	"sync"
)

// selectEmbedPositions picks, for every assigned instance, the topK
// positions with the best joint quality score (IoU times summed target class
// score) to carry the embedding loss.  Instances with fewer assigned
// positions select all of them.
//
// Images fan out over NumCPU workers.  The result is identical to a
// sequential scan: images are independent, and within an instance ties break
// on the lower position index rather than iteration order.
func selectEmbedPositions(ious, targetScores []float32, foreground []bool,
	gtIndex []int, batch, numAnchors, numClasses, topK int) []bool {

	selected := make([]bool, batch*numAnchors)

	quality := make([]float32, batch*numAnchors)

	for i := range quality {

		if !foreground[i] {
			continue
		}

		var s float32

		for _, v := range targetScores[i*numClasses : (i+1)*numClasses] {
			s += v
		}

		quality[i] = ious[i] * s
	}

	numWorkers := runtime.NumCPU()

	if numWorkers > batch {
		numWorkers = batch
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	// each worker handles images b = w, w+numWorkers, w+2*numWorkers
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()

			for b := w; b < batch; b += numWorkers {
				selectImage(quality, foreground, gtIndex, selected,
					b*numAnchors, numAnchors, topK)
			}
		}(w)
	}

	wg.Wait()

	return selected
}

// selectImage marks the per instance top-k positions of one image.
func selectImage(quality []float32, foreground []bool, gtIndex []int,
	selected []bool, base, numAnchors, topK int) {

	seen := make(map[int]bool)

	for p := 0; p < numAnchors; p++ {

		i := base + p

		if !foreground[i] || seen[gtIndex[i]] {
			continue
		}

		seen[gtIndex[i]] = true
		selectInstance(quality, foreground, gtIndex, selected,
			base, numAnchors, gtIndex[i], topK)
	}
}

// selectInstance marks up to topK positions assigned to one instance, best
// quality first, exact ties going to the lower position index.
func selectInstance(quality []float32, foreground []bool, gtIndex []int,
	selected []bool, base, numAnchors, instance, topK int) {

	for k := 0; k < topK; k++ {

		best := -1
		var bestQuality float32

		for p := 0; p < numAnchors; p++ {

			i := base + p

			if !foreground[i] || gtIndex[i] != instance || selected[i] {
				continue
			}

			if best == -1 || quality[i] > bestQuality {
				best = i
				bestQuality = quality[i]
			}
		}

		if best == -1 {
			// instance has fewer than topK positions
			return
		}

		selected[best] = true
	}
}
