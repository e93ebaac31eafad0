package ingest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"briefsmith/internal/textutil"
)

var skippedElements = map[atom.Atom]struct{}{
	atom.Script:   {},
	atom.Style:    {},
	atom.Nav:      {},
	atom.Footer:   {},
	atom.Header:   {},
	atom.Noscript: {},
	atom.Template: {},
	atom.Svg:      {},
}

var blockElements = map[atom.Atom]struct{}{
	atom.P: {}, atom.Div: {}, atom.Br: {}, atom.Li: {}, atom.Tr: {},
	atom.H1: {}, atom.H2: {}, atom.H3: {}, atom.H4: {}, atom.H5: {}, atom.H6: {},
	atom.Section: {}, atom.Article: {}, atom.Blockquote: {}, atom.Pre: {}, atom.Table: {},
}

// ExtractText returns the readable text of an HTML document, one block per
// line with whitespace collapsed.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skippedElements[n.DataAtom]; skip {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			if _, block := blockElements[n.DataAtom]; block {
				sb.WriteByte('\n')
			}
		}
	}
	walk(doc)
	return tidyLines(sb.String()), nil
}

func tidyLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = textutil.CollapseSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// documentText picks plain text or HTML extraction from the content type,
// sniffing the body when the type is missing.
func documentText(contentType string, body []byte) (string, error) {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	contentType = strings.ToLower(contentType)
	switch {
	case strings.Contains(contentType, "html"), strings.Contains(contentType, "xml"):
		return ExtractText(bytes.NewReader(body))
	case strings.HasPrefix(contentType, "text/"), strings.Contains(contentType, "json"):
		return tidyLines(string(body)), nil
	default:
		if looksLikeHTML(body) {
			return ExtractText(bytes.NewReader(body))
		}
		if !utf8.Valid(body) {
			return "", fmt.Errorf("unsupported document type %s", contentType)
		}
		return tidyLines(string(body)), nil
	}
}

func looksLikeHTML(body []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
