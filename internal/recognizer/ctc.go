package recognizer

import (
	"errors"
	"fmt"
	"math"
)

// DecodedSequence holds CTC-decoded indices and per-character probabilities.
type DecodedSequence struct {
	Indices       []int
	Probs         []float64
	Collapsed     []int
	CollapsedProb []float64
}

// argmax returns the index of the maximum value among the classes allowed by
// mask (nil allows all), or -1 if none is allowed.
func argmax(v []float32, mask []bool) int {
	idx := -1
	var maxVal float32
	for i, x := range v {
		if mask != nil && (i >= len(mask) || !mask[i]) {
			continue
		}
		if idx < 0 || x > maxVal {
			idx, maxVal = i, x
		}
	}
	return idx
}

// softmaxProbOfIndex computes the softmax probability of v[idx] among v.
// Outputs that already look like probabilities are returned as is.
func softmaxProbOfIndex(v []float32, idx int) float64 {
	if len(v) == 0 || idx < 0 || idx >= len(v) {
		return 0
	}
	var sum float64
	minV, maxV := v[0], v[0]
	for _, x := range v {
		sum += float64(x)
		minV = min(minV, x)
		maxV = max(maxV, x)
	}
	if sum > 0.99 && sum < 1.01 && minV >= 0 && maxV <= 1 {
		return float64(v[idx])
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - maxV))
	}
	if denom == 0 {
		return 0
	}
	return math.Exp(float64(v[idx]-maxV)) / denom
}

// CTCCollapse removes blanks and consecutive repeats.
func CTCCollapse(indices []int, probs []float64, blank int) ([]int, []float64) {
	outIdx := make([]int, 0, len(indices))
	outProb := make([]float64, 0, len(indices))
	prev := -1
	for i, idx := range indices {
		if idx == blank {
			prev = idx
			continue
		}
		if idx == prev {
			continue
		}
		outIdx = append(outIdx, idx)
		if i < len(probs) {
			outProb = append(outProb, probs[i])
		} else {
			outProb = append(outProb, 0)
		}
		prev = idx
	}
	return outIdx, outProb
}

// DecodeCTCGreedy decodes logits laid out as [N,T,C], or [N,C,T] when
// classesFirst is set. mask, when non-nil, restricts the classes argmax may
// pick; probabilities are still computed over all classes.
func DecodeCTCGreedy(logits []float32, shape []int64, blank int, classesFirst bool, mask []bool) ([]DecodedSequence, error) {
	if len(shape) < 3 {
		return nil, fmt.Errorf("expected rank-3 logits, got shape %v", shape)
	}
	dims := append([]int64(nil), shape...)
	for len(dims) > 3 && dims[len(dims)-1] == 1 {
		dims = dims[:len(dims)-1]
	}
	n := int(dims[0])
	tDim, cDim := int(dims[1]), int(dims[2])
	if classesFirst {
		tDim, cDim = cDim, tDim
	}
	if n <= 0 || tDim <= 0 || cDim <= 0 {
		return nil, fmt.Errorf("empty logits shape %v", shape)
	}
	if len(logits) < n*tDim*cDim {
		return nil, errors.New("logits shorter than declared shape")
	}

	out := make([]DecodedSequence, n)
	cls := make([]float32, cDim)
	for b := range n {
		start := b * tDim * cDim
		indices := make([]int, tDim)
		probs := make([]float64, tDim)
		for t := range tDim {
			if classesFirst {
				for k := range cDim {
					cls[k] = logits[start+k*tDim+t]
				}
			} else {
				off := start + t*cDim
				copy(cls, logits[off:off+cDim])
			}
			idx := argmax(cls, mask)
			if idx < 0 {
				idx = blank
			}
			indices[t] = idx
			probs[t] = softmaxProbOfIndex(cls, idx)
		}
		collIdx, collProb := CTCCollapse(indices, probs, blank)
		out[b] = DecodedSequence{Indices: indices, Probs: probs, Collapsed: collIdx, CollapsedProb: collProb}
	}
	return out, nil
}

// SequenceConfidence returns the mean of per-character probabilities.
func SequenceConfidence(charProbs []float64) float64 {
	if len(charProbs) == 0 {
		return 0
	}
	var s float64
	for _, p := range charProbs {
		s += p
	}
	return s / float64(len(charProbs))
}

// classesFirst guesses the layout of a rank-3 output from the expected
// class count.
func classesFirst(shape []int64, classes int) bool {
	if len(shape) < 3 {
		return false
	}
	if int(shape[2]) == classes || int(shape[2]) == classes+1 {
		return false
	}
	return int(shape[1]) == classes || int(shape[1]) == classes+1
}
