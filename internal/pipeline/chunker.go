package pipeline

import "strings"

// splitChunks slices text into overlapping rune windows. Boundaries prefer
// whitespace near the window edge so words stay intact.
func splitChunks(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{string(runes)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		cut := end
		if end < len(runes) {
			// Walk back up to a tenth of the window looking for whitespace.
			limit := end - size/10
			for cut > limit && !isSpace(runes[cut-1]) {
				cut--
			}
			if cut <= start {
				cut = end
			}
		}
		if chunk := strings.TrimSpace(string(runes[start:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if cut >= len(runes) {
			break
		}
		next := cut - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}
