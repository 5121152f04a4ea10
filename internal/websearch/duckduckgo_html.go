package websearch

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/ca-srg/searchagent/internal/types"
)

const ddgMissingSnippet = "No description available"

// parseDuckDuckGoHTML extracts results from the DuckDuckGo HTML page. Two
// markup shapes are recognized: result__body blocks and, when none are
// present, web-result blocks with an h2.result__title heading.
func parseDuckDuckGoHTML(body string, n int) ([]types.SearchResult, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	results := parseResultBodies(doc, n)
	if len(results) == 0 {
		results = parseWebResults(doc, n)
	}
	return results, nil
}

func parseResultBodies(doc *html.Node, n int) []types.SearchResult {
	var results []types.SearchResult
	for _, block := range findAll(doc, func(node *html.Node) bool {
		return node.Data == "div" && hasClass(node, "result__body")
	}) {
		if len(results) >= n {
			break
		}
		anchor := findFirst(block, func(node *html.Node) bool {
			return node.Data == "a" && hasClass(node, "result__a")
		})
		if anchor == nil {
			continue
		}
		title := nodeText(anchor)
		link := resolveDuckDuckGoLink(attr(anchor, "href"))
		if title == "" || link == "" {
			continue
		}

		snippet := ddgMissingSnippet
		if snippetNode := findFirst(block, func(node *html.Node) bool {
			return (node.Data == "a" || node.Data == "div") && hasClass(node, "result__snippet")
		}); snippetNode != nil {
			snippet = nodeText(snippetNode)
		}

		results = append(results, types.SearchResult{Title: title, Link: link, Snippet: snippet})
	}
	return results
}

func parseWebResults(doc *html.Node, n int) []types.SearchResult {
	var results []types.SearchResult
	for _, block := range findAll(doc, func(node *html.Node) bool {
		return node.Data == "div" && hasClass(node, "web-result")
	}) {
		if len(results) >= n {
			break
		}
		heading := findFirst(block, func(node *html.Node) bool {
			return node.Data == "h2" && hasClass(node, "result__title")
		})
		if heading == nil {
			continue
		}
		anchor := findFirst(heading, func(node *html.Node) bool { return node.Data == "a" })
		if anchor == nil {
			continue
		}
		title := nodeText(anchor)
		link := resolveDuckDuckGoLink(attr(anchor, "href"))
		if title == "" || link == "" {
			continue
		}

		snippet := ""
		if snippetNode := findFirst(block, func(node *html.Node) bool {
			return node.Data == "div" && hasClass(node, "result__snippet")
		}); snippetNode != nil {
			snippet = nodeText(snippetNode)
		}

		results = append(results, types.SearchResult{Title: title, Link: link, Snippet: snippet})
	}
	return results
}

// resolveDuckDuckGoLink unwraps /l/?uddg= redirect links to the target URL.
func resolveDuckDuckGoLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" && strings.HasSuffix(parsed.Path, "/l/") {
		return target
	}
	return href
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && match(node) {
			found = append(found, node)
			return
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(root)
	return found
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	var traverse func(*html.Node) *html.Node
	traverse = func(node *html.Node) *html.Node {
		if node.Type == html.ElementNode && match(node) {
			return node
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if found := traverse(child); found != nil {
				return found
			}
		}
		return nil
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if found := traverse(child); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(node *html.Node, class string) bool {
	for _, candidate := range strings.Fields(attr(node, "class")) {
		if candidate == class {
			return true
		}
	}
	return false
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(node *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(node)
	return strings.Join(strings.Fields(sb.String()), " ")
}
