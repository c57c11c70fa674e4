package devserver

import (
	"strings"
)

const (
	noMatchAnswer   = "Sorry, no relevant information was found to answer your question. Try rephrasing it or uploading related documents."
	noExtractAnswer = "Relevant documents were found, but no usable passage could be extracted to answer your question."
	maxConfidence   = 0.95
	referenceTopK   = 5
	answerPassages  = 3
	minPassageLen   = 10
)

// composeAnswer stitches the leading passages of the retrieved chunks into
// an extractive answer.
func composeAnswer(hits []hit) string {
	if len(hits) == 0 {
		return noMatchAnswer
	}

	var passages []string
	for _, h := range hits {
		for _, line := range strings.Split(h.Content, "\n") {
			line = strings.TrimSpace(line)
			if len([]rune(line)) <= minPassageLen {
				continue
			}
			passages = append(passages, line)
			if len(passages) == answerPassages {
				return "Based on the documents: " + strings.Join(passages, "\n\n")
			}
		}
	}
	if len(passages) == 0 {
		return noExtractAnswer
	}
	return "Based on the documents: " + strings.Join(passages, "\n\n")
}

// confidence blends the mean hit score with how many hits were found and
// how long the answer is, capped at maxConfidence.
func confidence(hits []hit, answer string) float64 {
	if len(hits) == 0 {
		return 0
	}

	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	avg := sum / float64(len(hits))

	countFactor := min(float64(len(hits))/referenceTopK, 1.0)

	lengthFactor := 1.0
	switch n := len([]rune(strings.TrimSpace(answer))); {
	case n < 10:
		lengthFactor = 0.3
	case n > 500:
		lengthFactor = 0.8
	}

	return min(avg*countFactor*lengthFactor, maxConfidence)
}
