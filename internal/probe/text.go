package probe

import (
	"mime"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
)

// MaxPageTextChars caps the page text carried downstream.
const MaxPageTextChars = 4000

// minKeywordLen is the exclusive lower bound on name words used for partial
// matching.
const minKeywordLen = 4

var (
	scriptRe      = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe       = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	spaceRe       = regexp.MustCompile(`\s+`)
	metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([a-zA-Z0-9_\-]+)`)
)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
	"&aacute;", "á",
	"&eacute;", "é",
	"&iacute;", "í",
	"&oacute;", "ó",
	"&uacute;", "ú",
	"&ntilde;", "ñ",
)

// decodeBody converts body to UTF-8 using the charset from the Content-Type
// header or a <meta charset> tag. Unknown charsets leave the body untouched.
func decodeBody(body []byte, contentType string) string {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = params["charset"]
	}
	if charset == "" {
		head := body
		if len(head) > 2048 {
			head = head[:2048]
		}
		if m := metaCharsetRe.FindSubmatch(head); len(m) > 1 {
			charset = string(m[1])
		}
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// ExtractText strips script and style blocks and all remaining tags, decodes
// common entities, collapses whitespace and truncates to MaxPageTextChars.
func ExtractText(html string) string {
	html = scriptRe.ReplaceAllString(html, " ")
	html = styleRe.ReplaceAllString(html, " ")
	html = tagRe.ReplaceAllString(html, " ")
	html = entityReplacer.Replace(html)
	html = strings.TrimSpace(spaceRe.ReplaceAllString(html, " "))
	return truncateRunes(html, MaxPageTextChars)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// MentionsGrant reports whether text plausibly concerns the named grant: the
// full name appears case-insensitively, or at least half of the name's words
// longer than four characters appear.
func MentionsGrant(text, grantName string) bool {
	name := strings.ToLower(strings.TrimSpace(grantName))
	if name == "" || text == "" {
		return false
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, name) {
		return true
	}

	keywords := nameKeywords(name)
	if len(keywords) == 0 {
		return false
	}

	found := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	return found*2 >= len(keywords)
}

// nameKeywords splits a lowercased name into distinct words longer than
// minKeywordLen runes.
func nameKeywords(name string) []string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) <= minKeywordLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
