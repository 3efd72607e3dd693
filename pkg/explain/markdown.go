package explain

import (
	"fmt"
	"strings"
)

// MarkdownSink renders to a CommonMark-flavored document, the default
// Sink wired by cmd/tenor.
type MarkdownSink struct {
	b strings.Builder
}

func NewMarkdownSink() *MarkdownSink { return &MarkdownSink{} }

func (s *MarkdownSink) Heading(level int, text string) {
	s.b.WriteString(strings.Repeat("#", level))
	s.b.WriteString(" ")
	s.b.WriteString(text)
	s.b.WriteString("\n\n")
}

func (s *MarkdownSink) Paragraph(text string) {
	s.b.WriteString(text)
	s.b.WriteString("\n\n")
}

func (s *MarkdownSink) ListItem(text string) {
	s.b.WriteString("- ")
	s.b.WriteString(text)
	s.b.WriteString("\n")
}

func (s *MarkdownSink) Emphasis(text string) string { return fmt.Sprintf("*%s*", text) }
func (s *MarkdownSink) Mark(text string) string     { return fmt.Sprintf("`%s`", text) }

func (s *MarkdownSink) String() string { return s.b.String() }
