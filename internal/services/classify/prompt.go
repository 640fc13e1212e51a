package classify

import "fmt"

const basePrompt = `You extract library metadata from scanned document text.
Respond with a single JSON object containing these keys:
  title (string), summary (string, at most two sentences), author (string or ""),
  year (integer or 0), categories (array of short subject strings),
  tags (array of short keyword strings),
  confidence (integer 0-100, how certain the metadata is),
  completeness (integer 0-100, how much of the expected metadata was found).
Do not include any other keys or commentary.`

func metadataPrompt(kind string) string {
	switch kind {
	case "book":
		return basePrompt + "\nThe document is a book; prefer the title page for title and author."
	case "plan":
		return basePrompt + "\nThe document is a technical drawing or plan; use the title block for metadata."
	case "document":
		return basePrompt
	default:
		if kind == "" {
			return basePrompt
		}
		return basePrompt + fmt.Sprintf("\nThe document kind is %q.", kind)
	}
}
