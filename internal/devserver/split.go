package devserver

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// splitText cuts text into chunks of at most chunkSize runes, each starting
// chunkSize-overlap runes after the previous one.
func splitText(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := min(i+chunkSize, len(runes))
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
