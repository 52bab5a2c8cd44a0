package normalizer

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)

	brTagRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	liTagRe    = regexp.MustCompile(`(?i)<li[^>]*>`)
	blockEndRe = regexp.MustCompile(`(?i)</(p|div|h[1-6]|tr|ul|ol|section|article)>`)
	anyTagRe   = regexp.MustCompile(`<[^>]*>`)

	multiBlankRe = regexp.MustCompile(`\n{3,}`)
	trailingWSRe = regexp.MustCompile(`[ \t]+\n`)
	runSpacesRe  = regexp.MustCompile(`[ \t]{2,}`)

	htmlTagProbeRe = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	escapedTagRe   = regexp.MustCompile(`&lt;[a-zA-Z/][^&]*&gt;`)
)

// htmlToMarkdown converts an HTML fragment to Markdown, falling back to tag
// stripping when conversion fails or produces nothing. Script and style
// blocks never survive either path.
func (s *Service) htmlToMarkdown(htmlBody, baseURL string) string {
	if strings.TrimSpace(htmlBody) == "" {
		return ""
	}
	cleaned := scriptBlockRe.ReplaceAllString(htmlBody, "")
	cleaned = styleBlockRe.ReplaceAllString(cleaned, "")

	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(cleaned)
	if err != nil || strings.TrimSpace(converted) == "" {
		if err != nil {
			s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using fallback")
		}
		return stripTags(cleaned)
	}
	return tidyMarkdown(converted)
}

// stripTags is the conversion fallback: structural tags become line breaks
// and list dashes so downstream line-based hint parsing still works.
func stripTags(htmlBody string) string {
	out := brTagRe.ReplaceAllString(htmlBody, "\n")
	out = blockEndRe.ReplaceAllString(out, "\n\n")
	out = liTagRe.ReplaceAllString(out, "\n- ")
	out = anyTagRe.ReplaceAllString(out, "")
	out = html.UnescapeString(out)
	return tidyMarkdown(out)
}

func tidyMarkdown(text string) string {
	out := trailingWSRe.ReplaceAllString(text, "\n")
	out = runSpacesRe.ReplaceAllString(out, " ")
	out = multiBlankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// looksLikeHTML reports whether escaped or literal markup dominates the
// text. Greenhouse content arrives entity-escaped.
func looksLikeHTML(text string) bool {
	return htmlTagProbeRe.MatchString(text) || escapedTagRe.MatchString(text)
}

var hintMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

// firstHeading returns the text of the first H1-H6 in the markdown, or "".
func firstHeading(source []byte) string {
	doc := hintMarkdown.Parser().Parse(text.NewReader(source))
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || title != "" {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		title = strings.TrimSpace(string(nodeText(heading, source)))
		if title != "" {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// nodeText flattens the text segments under a node.
func nodeText(node ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.Bytes()
}

// Navigation chrome terms. A run of three or more consecutive lines drawn
// from this set, in a document that carries a careers-nav heading, is
// boilerplate and gets removed before hint parsing.
var navChromeTerms = func() map[string]bool {
	terms := []string{
		"welcome", "culture", "workplace benefits", "benefits", "perks",
		"perks & benefits", "teams", "people", "locations", "offices",
		"students", "university", "early careers", "departments",
		"all jobs", "open roles", "view all jobs", "search jobs",
		"join our talent community", "talent community", "diversity",
		"diversity & inclusion", "belonging", "about", "about us",
		"our story", "press", "blog", "investors", "careers", "faqs",
	}
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}()

var navChromePrefixes = []string{"life at ", "working at ", "why "}

var careersHeadingRe = regexp.MustCompile(`(?im)^#{1,6}\s*careers\b`)

var mdDecorationRe = regexp.MustCompile(`[*_#>]|\[|\]\([^)]*\)|^\s*-\s+`)

func isNavChromeLine(line string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(mdDecorationRe.ReplaceAllString(line, "")))
	if cleaned == "" || len(cleaned) > 40 {
		return false
	}
	if navChromeTerms[cleaned] {
		return true
	}
	for _, p := range navChromePrefixes {
		if strings.HasPrefix(cleaned, p) {
			return true
		}
	}
	return false
}

// stripNavChrome removes contiguous runs of navigation-menu lines. It only
// fires on documents that contain a careers-nav heading, so job bodies that
// happen to mention "Benefits" in prose are untouched.
func stripNavChrome(markdown string) string {
	if !careersHeadingRe.MatchString(markdown) {
		return markdown
	}
	lines := strings.Split(markdown, "\n")
	keep := make([]string, 0, len(lines))

	i := 0
	for i < len(lines) {
		if !isNavChromeLine(lines[i]) {
			keep = append(keep, lines[i])
			i++
			continue
		}
		j := i
		run := 0
		for j < len(lines) {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "" {
				j++
				continue
			}
			if !isNavChromeLine(trimmed) {
				break
			}
			run++
			j++
		}
		if run >= 3 {
			i = j
			continue
		}
		keep = append(keep, lines[i])
		i++
	}
	return tidyMarkdown(strings.Join(keep, "\n"))
}
