package rag

import (
	"html"
	"regexp"
	"strings"
)

// Markdown syntax is stripped before embedding so formatting noise does not
// pollute similarity scores. The original unstripped text is always what
// gets returned as evidence.
var (
	reCodeFence  = regexp.MustCompile("(?s)```.*?```")
	reInlineCode = regexp.MustCompile("`([^`]*)`")
	reImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	// Chunk windows can cut a link or image anywhere; the truncated pieces
	// still need removing from the embedding input.
	reDanglingLink  = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*$`)
	reDanglingOpen  = regexp.MustCompile(`!?\[([^\]]*)$`)
	reOrphanTarget  = regexp.MustCompile(`\]\([^)]*(?:\)|$)`)
	reLeadingURLEnd = regexp.MustCompile(`^[^()\s]*\)`)
	reHeading       = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reEmphasis      = regexp.MustCompile(`(\*{1,3}|_{1,3}|~~)([^*_~]+)(\*{1,3}|_{1,3}|~~)`)
	reHTMLTag       = regexp.MustCompile(`<[^>]+>`)
	reBlockquote    = regexp.MustCompile(`(?m)^>\s?`)
	reHRule         = regexp.MustCompile(`(?m)^([-*_]\s*){3,}$`)
	reSpaces        = regexp.MustCompile(`[ \t]{2,}`)
)

// StripMarkdown removes markdown formatting syntax and HTML tags/entities,
// keeping the readable text.
func StripMarkdown(s string) string {
	s = reCodeFence.ReplaceAllString(s, " ")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = reImage.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reDanglingLink.ReplaceAllString(s, "$1")
	s = reDanglingOpen.ReplaceAllString(s, "$1")
	s = reOrphanTarget.ReplaceAllString(s, "")
	s = reLeadingURLEnd.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reEmphasis.ReplaceAllString(s, "$2")
	s = reHTMLTag.ReplaceAllString(s, " ")
	s = reBlockquote.ReplaceAllString(s, "")
	s = reHRule.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
