package plan

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxOutputColumns caps the number of output columns listed per operator.
	MaxOutputColumns = 10
	// TruncationMarker is appended to truncated output lists and previews.
	TruncationMarker = "..."
)

// ParserOptions selects between the caller profiles of the shared parser.
type ParserOptions struct {
	// PreviewLength is the number of characters of statement text kept in
	// Statement.TextPreview. Zero keeps the full text.
	PreviewLength int
	// PreviewEllipsis appends TruncationMarker to previews that were cut and
	// keeps line breaks. Without it, line breaks are flattened to spaces.
	PreviewEllipsis bool
	// DedupeMissingIndexes collapses identical hints in Summary.MissingIndexes.
	DedupeMissingIndexes bool
}

// CompareProfile is used when two plans are parsed for a side by side comparison.
var CompareProfile = ParserOptions{
	PreviewLength: 100,
}

// SingleProfile is used when plans are analyzed one by one.
var SingleProfile = ParserOptions{
	PreviewLength:        200,
	PreviewEllipsis:      true,
	DedupeMissingIndexes: true,
}

func (o ParserOptions) preview(text string) string {
	if o.PreviewEllipsis {
		if o.PreviewLength > 0 && utf8.RuneCountInString(text) > o.PreviewLength {
			return truncateRunes(text, o.PreviewLength) + TruncationMarker
		}
		return text
	}
	if o.PreviewLength > 0 {
		text = truncateRunes(text, o.PreviewLength)
	}
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
}

// ParseError reports a plan document that could not be read or is not
// well-formed XML. It is fatal for that one plan.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parsing execution plan: %v", e.Err)
	}
	return fmt.Sprintf("parsing execution plan %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// planNameFromPath returns the file name without its extension.
func planNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
