// Package chunk turns seed documents into bounded-size text chunks ready for
// embedding. Splitting packs whole paragraphs; framing renders the known seed
// sections (overview, stages, defaults, warnings, FAQ) into retrieval-friendly
// text before splitting.
package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxChunkChars is the upper bound on an emitted chunk, counted in characters
// so Cyrillic seed text packs as densely as Latin. A single paragraph longer
// than this is emitted whole, unsplit; that is an accepted edge case.
const MaxChunkChars = 900

var paragraphSep = regexp.MustCompile(`\n{2,}`)

// Split breaks text into chunks of at most MaxChunkChars, packing consecutive
// paragraphs greedily and never reordering them. Paragraphs are blank-line
// delimited. Empty or whitespace-only input yields no chunks.
func Split(text string) []string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if normalized == "" {
		return nil
	}

	var paragraphs []string
	for _, block := range paragraphSep.Split(normalized, -1) {
		if p := strings.TrimSpace(block); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var (
		chunks []string
		buffer string
		bufLen int
	)
	for _, paragraph := range paragraphs {
		pLen := utf8.RuneCountInString(paragraph)
		if buffer == "" {
			buffer, bufLen = paragraph, pLen
			continue
		}
		if bufLen+2+pLen <= MaxChunkChars {
			buffer += "\n\n" + paragraph
			bufLen += 2 + pLen
			continue
		}
		chunks = append(chunks, buffer)
		buffer, bufLen = paragraph, pLen
	}
	if buffer != "" {
		chunks = append(chunks, buffer)
	}

	return chunks
}
