package text

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSegmentLength is the target chunk length in characters.
const DefaultSegmentLength = 250

// A paragraph longer than target*longParagraphFactor is split into sentences;
// a sentence longer than target*longSentenceFactor is split at word boundaries.
const (
	longParagraphFactor = 1.5
	longSentenceFactor  = 2
)

const (
	paragraphSeparator = "\n\n"
	sentenceSeparator  = " "
)

// Chunk is one bounded piece of source text, synthesized by a single model call.
type Chunk struct {
	Index int
	Text  string
}

// Segmenter splits narrative text into chunks of roughly a target length.
// Paragraph boundaries are preferred; over-long paragraphs fall back to
// sentence boundaries. A sentence up to twice the target becomes its own chunk;
// anything longer is cut at the last space before the target, so no chunk
// exceeds twice the target length.
type Segmenter struct {
	target          int
	excessNewlines  *regexp.Regexp
	repeatedSpaces  *regexp.Regexp
	spaceBeforeStop *regexp.Regexp
	sentenceEnd     *regexp.Regexp
	quoteReplacer   *strings.Replacer
}

// NewSegmenter creates a segmenter. A non-positive target uses DefaultSegmentLength.
func NewSegmenter(target int) *Segmenter {
	if target <= 0 {
		target = DefaultSegmentLength
	}

	return &Segmenter{
		target:          target,
		excessNewlines:  regexp.MustCompile(`\n{3,}`),
		repeatedSpaces:  regexp.MustCompile(` {2,}`),
		spaceBeforeStop: regexp.MustCompile(`[ \t]+([.!?])`),
		sentenceEnd:     regexp.MustCompile(`[.!?]+["')\]]*\s+`),
		quoteReplacer: strings.NewReplacer(
			"\r\n", "\n",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Clean normalises line endings, blank lines, spaces and quotes while keeping
// paragraph breaks.
func (s *Segmenter) Clean(source string) string {
	cleaned := s.quoteReplacer.Replace(source)
	cleaned = s.excessNewlines.ReplaceAllString(cleaned, paragraphSeparator)
	cleaned = s.repeatedSpaces.ReplaceAllString(cleaned, " ")
	cleaned = s.spaceBeforeStop.ReplaceAllString(cleaned, "$1")

	return strings.TrimSpace(cleaned)
}

// Chunks returns a lazy sequence over the chunks of source. The sequence can
// be ranged over any number of times; each pass re-segments the text.
func (s *Segmenter) Chunks(source string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		packer := chunkPacker{target: s.target, yield: yield}

		for _, paragraph := range s.paragraphs(source) {
			if float64(utf8.RuneCountInString(paragraph)) <= float64(s.target)*longParagraphFactor {
				if !packer.add(paragraph, paragraphSeparator) {
					return
				}

				continue
			}

			for _, sentence := range s.Sentences(paragraph) {
				for _, piece := range s.wordPieces(sentence) {
					if !packer.add(piece, sentenceSeparator) {
						return
					}
				}
			}
		}

		packer.flush()
	}
}

// Split collects every chunk of source.
func (s *Segmenter) Split(source string) []Chunk {
	return slices.Collect(s.Chunks(source))
}

// Sentences splits a paragraph after terminal punctuation followed by whitespace.
func (s *Segmenter) Sentences(paragraph string) []string {
	var (
		sentences []string
		start     int
	)

	for _, bounds := range s.sentenceEnd.FindAllStringIndex(paragraph, -1) {
		sentence := strings.TrimSpace(paragraph[start:bounds[1]])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}

		start = bounds[1]
	}

	if rest := strings.TrimSpace(paragraph[start:]); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// wordPieces returns sentence unchanged when it is within the hard limit,
// otherwise cuts it into pieces of at most target runes, breaking at the last
// whitespace before the limit. A run without whitespace is cut at the limit.
func (s *Segmenter) wordPieces(sentence string) []string {
	if utf8.RuneCountInString(sentence) <= s.target*longSentenceFactor {
		return []string{sentence}
	}

	var pieces []string

	rest := []rune(sentence)
	for len(rest) > s.target {
		cut := s.target
		for i := s.target; i > 0; i-- {
			if unicode.IsSpace(rest[i]) {
				cut = i

				break
			}
		}

		if piece := strings.TrimSpace(string(rest[:cut])); piece != "" {
			pieces = append(pieces, piece)
		}

		rest = []rune(strings.TrimLeftFunc(string(rest[cut:]), unicode.IsSpace))
	}

	if piece := strings.TrimSpace(string(rest)); piece != "" {
		pieces = append(pieces, piece)
	}

	return pieces
}

func (s *Segmenter) paragraphs(source string) []string {
	var paragraphs []string

	for _, paragraph := range strings.Split(s.Clean(source), paragraphSeparator) {
		if trimmed := strings.TrimSpace(paragraph); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	return paragraphs
}

// chunkPacker accumulates pieces greedily until adding the next one would
// exceed the target length.
type chunkPacker struct {
	target  int
	yield   func(Chunk) bool
	current strings.Builder
	length  int
	index   int
}

func (p *chunkPacker) add(piece, separator string) bool {
	pieceLength := utf8.RuneCountInString(piece)

	if p.length > 0 && p.length+pieceLength > p.target {
		if !p.flush() {
			return false
		}
	}

	p.current.WriteString(piece)
	p.current.WriteString(separator)
	p.length += pieceLength + utf8.RuneCountInString(separator)

	return true
}

func (p *chunkPacker) flush() bool {
	text := strings.TrimSpace(p.current.String())
	p.current.Reset()
	p.length = 0

	if text == "" {
		return true
	}

	chunk := Chunk{Index: p.index, Text: text}
	p.index++

	return p.yield(chunk)
}
