// Package filename recovers document identity fields from loosely formatted
// upload names such as "Design Spec (01-TEST - 1028340 - 1 - A1) - 1.docx".
//
// The recognized convention is CLASS - NUMBER - SHEET - REVISION, either
// inside a parenthesis/bracket group or inline in the name. Parsing is pure
// and never fails for string input; names that do not follow the convention
// come back with IsStructuredFormat false and empty metadata.
package filename

import (
	"regexp"
	"strings"
)

// Parsed is the metadata recovered from a filename.
type Parsed struct {
	Title              string `json:"title"`
	DocClass           string `json:"docClass"`
	DocNumber          string `json:"docNumber"`
	DocSheet           string `json:"docSheet"`
	DocRevision        string `json:"docRevision"`
	FileExtension      string `json:"fileExtension"` // upper-cased with leading dot, e.g. ".DOCX"
	IsStructuredFormat bool   `json:"isStructuredFormat"`
	IsCopyMarker       bool   `json:"isCopyMarker"`
}

var (
	copyMarkerRe    = regexp.MustCompile(`(?i)^\s*copy\s+of\b\s*`)
	extensionRe     = regexp.MustCompile(`^[A-Za-z0-9]{1,10}$`)
	versionSuffixRe = regexp.MustCompile(`\s*-\s*\d+\s*$`)
	groupRe         = regexp.MustCompile(`\(([^()]*)\)|\[([^\[\]]*)\]`)
	tokenSplitRe    = regexp.MustCompile(`[-_\s]+`)
	metaSplitRe     = regexp.MustCompile(`\s+-\s+`)
	inlineRe        = regexp.MustCompile(`([A-Za-z0-9-]+)\s+-\s+(\d+)\s+-\s+(\d+)\s+-\s+([A-Za-z0-9]+)`)
	titleResidueRe  = regexp.MustCompile(`[\s\-_()\[\]]+$`)
	spaceRunRe      = regexp.MustCompile(`\s+`)
	digitsRe        = regexp.MustCompile(`^\d+$`)
	alnumRe         = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ParseAny parses v when it is a string. It returns false for nil or any
// non-string value, the only inputs Parse cannot handle.
func ParseAny(v any) (Parsed, bool) {
	s, ok := v.(string)
	if !ok {
		return Parsed{}, false
	}
	return Parse(s), true
}

// Parse extracts structured metadata from name.
func Parse(name string) Parsed {
	result := Parsed{IsCopyMarker: copyMarkerRe.MatchString(name)}

	base := copyMarkerRe.ReplaceAllString(name, "")
	base, result.FileExtension = splitExtension(base)
	unstructuredTitle := strings.TrimSpace(base)

	rest := versionSuffixRe.ReplaceAllString(base, "")

	meta, found := parseGroups(rest)
	if !found {
		meta, found = parseInline(rest)
	}
	if found && meta.IsStructuredFormat {
		meta.FileExtension = result.FileExtension
		meta.IsCopyMarker = result.IsCopyMarker
		return meta
	}

	result.Title = unstructuredTitle
	return result
}

// splitExtension splits name at its last dot. The suffix only counts as an
// extension when it is a short alphanumeric run, so titles like "Rev. A"
// keep their dot.
func splitExtension(name string) (string, string) {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 {
		return name, ""
	}
	ext := name[idx+1:]
	if !extensionRe.MatchString(ext) {
		return name, ""
	}
	return name[:idx], "." + strings.ToUpper(ext)
}

// parseGroups looks for a bracket or parenthesis group holding the metadata.
// Groups are collected left to right and tested right to left, so the block
// nearest the end of the name wins over earlier asides. found reports that a
// qualifying group exists; when its fields cannot be split cleanly the
// returned Parsed is unstructured and no other strategy is tried.
func parseGroups(s string) (p Parsed, found bool) {
	locs := groupRe.FindAllStringSubmatchIndex(s, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		content := groupContent(s, locs[i])
		if !qualifies(content) {
			continue
		}

		parts := metaSplitRe.Split(strings.TrimSpace(content), -1)
		if len(parts) < 4 {
			return Parsed{}, true
		}
		n := len(parts)
		rev, sheet, number := parts[n-1], parts[n-2], parts[n-3]
		class := strings.Join(parts[:n-3], " - ")
		if !validFields(number, sheet, rev) {
			return Parsed{}, true
		}

		return Parsed{
			Title:              cleanTitle(s[:locs[i][0]]),
			DocClass:           strings.TrimSpace(class),
			DocNumber:          number,
			DocSheet:           sheet,
			DocRevision:        strings.ToUpper(rev),
			IsStructuredFormat: true,
		}, true
	}
	return Parsed{}, false
}

// groupContent returns the inner text of a groupRe match, whichever
// alternative (parenthesis or bracket) matched.
func groupContent(s string, loc []int) string {
	if loc[2] >= 0 {
		return s[loc[2]:loc[3]]
	}
	return s[loc[4]:loc[5]]
}

// qualifies reports whether a group's content tokenizes into at least four
// tokens ending in digits, digits, alphanumeric.
func qualifies(content string) bool {
	var tokens []string
	for _, t := range tokenSplitRe.Split(content, -1) {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	n := len(tokens)
	if n < 4 {
		return false
	}
	return digitsRe.MatchString(tokens[n-3]) &&
		digitsRe.MatchString(tokens[n-2]) &&
		alnumRe.MatchString(tokens[n-1])
}

func validFields(number, sheet, rev string) bool {
	return digitsRe.MatchString(number) && digitsRe.MatchString(sheet) && alnumRe.MatchString(rev)
}

// parseInline matches CLASS - NUMBER - SHEET - REV anywhere in s; the first
// match wins and the text before it is the title.
func parseInline(s string) (Parsed, bool) {
	m := inlineRe.FindStringSubmatchIndex(s)
	if m == nil {
		return Parsed{}, false
	}
	return Parsed{
		Title:              cleanTitle(s[:m[0]]),
		DocClass:           s[m[2]:m[3]],
		DocNumber:          s[m[4]:m[5]],
		DocSheet:           s[m[6]:m[7]],
		DocRevision:        strings.ToUpper(s[m[8]:m[9]]),
		IsStructuredFormat: true,
	}, true
}

// cleanTitle drops any remaining groups, trailing separators and bracket
// residue, and collapses whitespace.
func cleanTitle(s string) string {
	s = groupRe.ReplaceAllString(s, " ")
	s = titleResidueRe.ReplaceAllString(s, "")
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
