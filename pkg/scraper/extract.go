package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockTags start and end a paragraph. Text anywhere else runs on.
var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "figcaption": true, "figure": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"hr": true, "li": true, "main": true, "ol": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true, "ul": true,
}

const boilerplate = "script, style, noscript, nav, header, footer, aside, form, iframe, svg"

var noisePatterns = []string{
	"cookie policy",
	"accept cookies",
	"privacy policy",
	"terms of service",
	"all rights reserved",
}

// extractMainContent returns the readable text of doc. Every block element
// boundary breaks a paragraph.
func extractMainContent(doc *goquery.Document) string {
	doc.Find(boilerplate).Remove()

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
	}

	root := doc.Find("body")
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			root = selected.First()
			break
		}
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var paragraphs []paragraph
	var current strings.Builder
	var open []string
	flush := func() {
		if text := cleanContent(current.String()); text != "" {
			var tag string
			if len(open) > 0 {
				tag = open[len(open)-1]
			}
			paragraphs = append(paragraphs, paragraph{text: text, tag: tag})
		}
		current.Reset()
	}

	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			switch name := goquery.NodeName(node); {
			case name == "#text":
				current.WriteString(node.Text())
			case strings.HasPrefix(name, "#"):
				// comments and doctypes
			case blockTags[name]:
				flush()
				open = append(open, name)
				walk(node)
				flush()
				open = open[:len(open)-1]
			default:
				walk(node)
			}
		})
	}
	walk(root)
	flush()

	return joinParagraphs(paragraphs)
}

type paragraph struct {
	text string
	tag  string
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

// joinParagraphs separates paragraphs with a blank line. A heading and the
// paragraph after it, and consecutive list items, only get a line break so
// that they end up in the same chunk.
func joinParagraphs(paragraphs []paragraph) string {
	var b strings.Builder
	for i, p := range paragraphs {
		if i > 0 {
			prev := paragraphs[i-1]
			if isHeading(prev.tag) || (prev.tag == "li" && p.tag == "li") {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		b.WriteString(p.text)
	}
	return b.String()
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	lower := strings.ToLower(content)
	for _, pattern := range noisePatterns {
		if lower == pattern {
			return ""
		}
	}

	return content
}
