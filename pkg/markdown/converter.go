package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// ToTeamsHTML converts markdown to the HTML subset Teams renders in message
// text
func ToTeamsHTML(markdown string) string {
	if markdown == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	return cleanHTMLForTeams(html)
}

// cleanHTMLForTeams strips the blackfriday output down to what the Teams
// client supports
func cleanHTMLForTeams(html string) string {
	// Unwrap paragraphs
	html = regexp.MustCompile(`<p>(.*?)</p>`).ReplaceAllString(html, "$1\n")

	// Headings become bold lines
	html = regexp.MustCompile(`<h[1-6][^>]*>(.*?)</h[1-6]>`).ReplaceAllString(html, "<b>$1</b>\n")

	html = strings.ReplaceAll(html, "<strong>", "<b>")
	html = strings.ReplaceAll(html, "</strong>", "</b>")
	html = strings.ReplaceAll(html, "<em>", "<i>")
	html = strings.ReplaceAll(html, "</em>", "</i>")

	// Fenced code blocks lose the language class
	html = regexp.MustCompile(`<pre><code(?: class="[^"]*")?>((?s).*?)</code></pre>`).ReplaceAllString(html, "<pre>$1</pre>")

	// Lists flatten to bulleted lines
	html = strings.ReplaceAll(html, "<ul>", "")
	html = strings.ReplaceAll(html, "</ul>", "")
	html = strings.ReplaceAll(html, "<ol>", "")
	html = strings.ReplaceAll(html, "</ol>", "")
	html = strings.ReplaceAll(html, "<li>", "• ")
	html = strings.ReplaceAll(html, "</li>", "\n")

	// Drop tags Teams does not render
	supportedTags := []string{"b", "i", "u", "s", "code", "pre", "a", "br", "blockquote"}
	tagPattern := `</?([a-zA-Z]+)(?:\s[^>]*)?>`

	html = regexp.MustCompile(tagPattern).ReplaceAllStringFunc(html, func(match string) string {
		tagMatch := regexp.MustCompile(`</?([a-zA-Z]+)`).FindStringSubmatch(match)
		if len(tagMatch) > 1 {
			for _, supported := range supportedTags {
				if tagMatch[1] == supported {
					return match
				}
			}
		}
		return ""
	})

	html = regexp.MustCompile(`\n{3,}`).ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
