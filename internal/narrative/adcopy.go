package narrative

import (
	"strings"
)

// AdCopy is the structured form of a generated social post.
type AdCopy struct {
	Caption            string `json:"caption"`
	Hashtags           string `json:"hashtags"`
	TextOnImage        string `json:"text_on_image"`
	DescriptionOfImage string `json:"description_of_image"`
}

// Complete reports whether every section was found.
func (a AdCopy) Complete() bool {
	return a.Caption != "" && a.Hashtags != "" && a.TextOnImage != "" && a.DescriptionOfImage != ""
}

type SectionParser interface {
	Parse(text string) AdCopy
}

// LineParser reads the four labelled sections line by line. Matching is
// case-insensitive and output is lower-cased.
type LineParser struct{}

var sectionHeaders = []struct {
	header string
	field  func(*AdCopy) *string
}{
	{"instagram caption:", func(a *AdCopy) *string { return &a.Caption }},
	{"hashtags:", func(a *AdCopy) *string { return &a.Hashtags }},
	{"text on image:", func(a *AdCopy) *string { return &a.TextOnImage }},
	{"description of image:", func(a *AdCopy) *string { return &a.DescriptionOfImage }},
}

func (LineParser) Parse(text string) AdCopy {
	var out AdCopy
	var current *string

	for _, line := range strings.Split(text, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}

		// Drop list numbering such as "1. ".
		line = strings.TrimLeft(line, "0123456789. ")

		for _, s := range sectionHeaders {
			if strings.HasPrefix(line, s.header) {
				current = s.field(&out)
				line = strings.TrimSpace(line[len(s.header):])
				break
			}
		}

		if current == nil || line == "" || isHeader(line) {
			continue
		}

		if *current != "" {
			*current += " " + line
		} else {
			*current = line
		}
	}

	out.Caption = strings.TrimSpace(out.Caption)
	out.Hashtags = strings.TrimSpace(out.Hashtags)
	out.TextOnImage = strings.TrimSpace(out.TextOnImage)
	out.DescriptionOfImage = strings.TrimSpace(out.DescriptionOfImage)

	return out
}

func isHeader(line string) bool {
	for _, s := range sectionHeaders {
		if strings.HasPrefix(line, s.header) {
			return true
		}
	}
	return false
}

// ParseAdCopy parses with the default LineParser.
func ParseAdCopy(text string) AdCopy {
	return LineParser{}.Parse(text)
}
