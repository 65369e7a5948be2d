package platform

// Message size limits.
const (
	// MessageLimit is the platform's hard cap on a single message.
	MessageLimit = 2000
	// ChunkLimit is the segment size used when splitting long output,
	// leaving headroom under MessageLimit for reply framing.
	ChunkLimit = 1990
)

// SplitMessage splits text into ordered segments of at most ChunkLimit
// characters. Concatenating the segments reproduces the input exactly.
// Empty input yields a single empty segment so callers always have
// something to send.
func SplitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= ChunkLimit {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+ChunkLimit-1)/ChunkLimit)
	for start := 0; start < len(runes); start += ChunkLimit {
		end := start + ChunkLimit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
