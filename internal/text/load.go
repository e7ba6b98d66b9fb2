package text

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Supported input extensions.
const (
	ExtTXT = ".txt"
	ExtMD  = ".md"
)

// ErrUnsupportedFormat is returned for input files that are neither plain text nor markdown.
var ErrUnsupportedFormat = errors.New("unsupported text format")

// SupportedFormats lists the accepted input extensions.
func SupportedFormats() []string {
	return []string{ExtTXT, ExtMD}
}

// IsSupported reports whether path has a supported text extension.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtTXT, ExtMD:
		return true
	default:
		return false
	}
}

// LoadFile reads a text or markdown file and returns its prose. Markdown is
// reduced to headings and paragraphs separated by blank lines.
func LoadFile(path string) (string, error) {
	if !IsSupported(path) {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, filepath.Ext(path),
			strings.Join(SupportedFormats(), ", "))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file '%s': %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ExtMD) {
		return MarkdownProse(data)
	}

	return string(data), nil
}

// MarkdownProse extracts readable prose from markdown source. Code blocks,
// raw HTML and thematic breaks are dropped; headings gain a full stop so the
// model pauses after them.
func MarkdownProse(source []byte) (string, error) {
	document := goldmark.New().Parser().Parse(gmtext.NewReader(source))

	var blocks []string

	err := ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node.(type) {
		case *ast.Heading:
			if heading := inlineText(node, source); heading != "" {
				blocks = append(blocks, withStop(heading))
			}

			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if paragraph := inlineText(node, source); paragraph != "" {
				blocks = append(blocks, paragraph)
			}

			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk markdown document: %w", err)
	}

	return strings.Join(blocks, paragraphSeparator), nil
}

func inlineText(block ast.Node, source []byte) string {
	var buf bytes.Buffer

	_ = ast.Walk(block, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch inline := node.(type) {
		case *ast.Text:
			buf.Write(inline.Segment.Value(source))

			if inline.SoftLineBreak() || inline.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(inline.Value)
		case *ast.RawHTML, *ast.AutoLink:
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}

func withStop(heading string) string {
	last, _ := utf8.DecodeLastRuneInString(heading)
	if unicode.IsPunct(last) {
		return heading
	}

	return heading + "."
}
