// Package chunker splits raw documents into bounded, overlapping passages
// ready for embedding.
package chunker

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Document is a raw text blob with its source identity. Documents are
// immutable and discarded after splitting.
type Document struct {
	// SourceID identifies where the text came from (file path or upload name).
	SourceID string

	// Text is the full UTF-8 content.
	Text string
}

// Chunk is a bounded slice of a source document. Consecutive chunks of one
// source share overlapping text so passage boundaries do not cut context.
type Chunk struct {
	Text     string
	SourceID string
}

// Config controls chunk sizing.
type Config struct {
	// Size is the maximum chunk length in characters.
	Size int

	// Overlap is the number of characters shared between consecutive chunks.
	Overlap int
}

// ApplyDefaults sets default values for a zero-valued config. A config
// that sets Size keeps its Overlap as given, so explicit zero overlap
// stays zero.
func (c *Config) ApplyDefaults() {
	if c.Size == 0 {
		c.Size = 1000
		if c.Overlap == 0 {
			c.Overlap = 200
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be in [0, size), got %d with size %d", c.Overlap, c.Size)
	}
	return nil
}

// Splitter produces chunks via recursive structural splitting: paragraph
// boundaries first, then lines, then words, with hard character cuts only
// when no smaller boundary fits.
type Splitter struct {
	config   Config
	splitter textsplitter.RecursiveCharacter
}

// NewSplitter creates a Splitter with the given configuration.
func NewSplitter(config Config) (*Splitter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &Splitter{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.Size),
			textsplitter.WithChunkOverlap(config.Overlap),
		),
	}, nil
}

// Split splits documents into chunks. Output order follows input document
// order, then chunk order within each document. Empty input yields empty
// output, not an error.
func (s *Splitter) Split(docs []Document) ([]Chunk, error) {
	var chunks []Chunk
	for _, doc := range docs {
		parts, err := s.splitter.SplitText(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", doc.SourceID, err)
		}
		for _, part := range parts {
			if part == "" {
				continue
			}
			chunks = append(chunks, Chunk{Text: part, SourceID: doc.SourceID})
		}
	}
	return chunks, nil
}
