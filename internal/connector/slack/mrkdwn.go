package slackconn

import (
	"fmt"
	"strings"
)

// MarkdownToMrkdwn converts the Markdown produced by card rendering to
// Slack's mrkdwn format.
func MarkdownToMrkdwn(md string) string {
	result := convertEmphasis(md)
	result = strings.ReplaceAll(result, "~~", "~")
	result = strings.ReplaceAll(result, "<br />", "\n")
	return convertLinks(result)
}

// convertEmphasis maps **bold** to *bold* and *italic* to _italic_ in one
// pass, leaving code spans alone.
func convertEmphasis(s string) string {
	var b strings.Builder
	inCode := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '`':
			inCode = !inCode
			b.WriteByte(ch)
		case ch == '*' && !inCode:
			if i+1 < len(s) && s[i+1] == '*' {
				b.WriteByte('*')
				i++
			} else {
				b.WriteByte('_')
			}
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// convertLinks converts [text](url) to <url|text>.
func convertLinks(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			b.WriteByte(s[i])
			continue
		}
		closeB := strings.Index(s[i:], "](")
		if closeB == -1 {
			b.WriteByte(s[i])
			continue
		}
		closeB += i
		closeP := strings.IndexByte(s[closeB:], ')')
		if closeP == -1 {
			b.WriteByte(s[i])
			continue
		}
		closeP += closeB

		fmt.Fprintf(&b, "<%s|%s>", s[closeB+2:closeP], s[i+1:closeB])
		i = closeP
	}
	return b.String()
}
