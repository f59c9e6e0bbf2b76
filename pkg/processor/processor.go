package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/newsbot/internal/models"
)

type ProcessorConfig struct {
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
	// Separators are tried in order. The first one is a hard boundary:
	// text on either side of it never shares a chunk.
	Separators []string
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", ".", ","}
	}

	return Processor{
		config: config,
	}
}

// Process splits every document into chunks that carry the document URL.
func (p Processor) Process(docs []models.Document) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for _, doc := range docs {
		for i, text := range p.Split(doc.Content) {
			chunks = append(chunks, models.Chunk{
				ID:     fmt.Sprintf("chunk-%d", len(chunks)),
				Source: doc.URL,
				Index:  i,
				Text:   text,
			})
		}
	}

	return chunks, nil
}

// Split cuts text into pieces of at most ChunkSize characters. Pieces are
// contiguous substrings of text, in order, with no overlap.
func (p Processor) Split(text string) []string {
	var chunks []string

	for _, part := range splitOn(text, p.config.Separators[0]) {
		chunks = append(chunks, p.fit(part, 1)...)
	}

	return chunks
}

// fit returns piece unchanged when it is small enough and otherwise splits it
// with the separators from level onwards.
func (p Processor) fit(piece string, level int) []string {
	if isBlank(piece) {
		return nil
	}
	if runeLen(piece) <= p.config.ChunkSize {
		return []string{piece}
	}

	for i := level; i < len(p.config.Separators); i++ {
		sep := p.config.Separators[i]
		parts := splitOn(piece, sep)
		if len(parts) < 2 {
			continue
		}
		return p.pack(parts, sep, i+1)
	}

	return hardCut(piece, p.config.ChunkSize)
}

// pack merges adjacent parts while they fit, re-inserting consumed separators.
// Parts that are still too large are split further and emitted as is.
func (p Processor) pack(parts []string, sep string, next int) []string {
	glue := ""
	if consumed(sep) {
		glue = sep
	}

	var chunks []string
	var current string
	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, part := range parts {
		if runeLen(part) > p.config.ChunkSize {
			flush()
			chunks = append(chunks, p.fit(part, next)...)
			continue
		}
		if current == "" {
			current = part
			continue
		}
		if runeLen(current)+runeLen(glue)+runeLen(part) <= p.config.ChunkSize {
			current += glue + part
			continue
		}
		flush()
		current = part
	}
	flush()

	return chunks
}

// splitOn splits text around sep. Whitespace separators are dropped together
// with blank parts; any other separator stays at the end of the part before it.
func splitOn(text, sep string) []string {
	var parts []string

	if consumed(sep) {
		for _, part := range strings.Split(text, sep) {
			if !isBlank(part) {
				parts = append(parts, part)
			}
		}
		return parts
	}

	for {
		i := strings.Index(text, sep)
		if i < 0 {
			break
		}
		parts = appendAttached(parts, text[:i+len(sep)])
		text = text[i+len(sep):]
	}
	if text != "" {
		parts = appendAttached(parts, text)
	}

	return parts
}

// appendAttached keeps whitespace-only fragments on the previous part so that
// no characters are lost.
func appendAttached(parts []string, part string) []string {
	if isBlank(part) && len(parts) > 0 {
		parts[len(parts)-1] += part
		return parts
	}
	return append(parts, part)
}

func hardCut(piece string, size int) []string {
	var chunks []string
	runes := []rune(piece)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := string(runes[start:end]); !isBlank(chunk) {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func consumed(sep string) bool {
	return strings.TrimSpace(sep) == ""
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
