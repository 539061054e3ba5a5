// Package sitemap parses sitemap documents and resolves the root sitemap of
// an outlet from direct URLs, robots.txt directives or monthly templates.
package sitemap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

var errUnrecognizedRoot = errors.New("unrecognized root element")

// Parse turns a sitemap body into a Document. Element names are matched by
// local name, ignoring namespaces and case. Malformed or unknown documents
// yield an Unrecognized document with zero entries.
func Parse(data []byte) crawler.Document {
	doc, err := ParseStrict(data)
	if err != nil {
		return crawler.Document{Kind: crawler.KindUnrecognized}
	}
	return doc
}

// ParseStrict behaves like Parse but reports malformed or unrecognized bodies
// as a *crawler.ParseError.
func ParseStrict(data []byte) (crawler.Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return crawler.Document{Kind: crawler.KindUnrecognized}, &crawler.ParseError{Err: err}
	}
	top := rootElement(root)
	if top == nil {
		return crawler.Document{Kind: crawler.KindUnrecognized}, &crawler.ParseError{Err: errUnrecognizedRoot}
	}

	name := strings.ToLower(top.Data)
	switch {
	case strings.HasSuffix(name, "sitemapindex"):
		return crawler.Document{Kind: crawler.KindIndex, Nodes: collect(top, "sitemap")}, nil
	case strings.HasSuffix(name, "urlset"):
		return crawler.Document{Kind: crawler.KindURLSet, Nodes: collect(top, "url")}, nil
	default:
		return crawler.Document{Kind: crawler.KindUnrecognized}, &crawler.ParseError{
			Err: fmt.Errorf("%w: %s", errUnrecognizedRoot, top.Data),
		}
	}
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// collect returns a node for every descendant named entry that has a
// non-empty loc child, in document order.
func collect(top *xmlquery.Node, entry string) []crawler.SitemapNode {
	var nodes []crawler.SitemapNode
	var walk func(n *xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if strings.EqualFold(c.Data, entry) {
				if node, ok := entryNode(c); ok {
					nodes = append(nodes, node)
				}
				continue
			}
			walk(c)
		}
	}
	walk(top)
	return nodes
}

func entryNode(n *xmlquery.Node) (crawler.SitemapNode, bool) {
	var node crawler.SitemapNode
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.ElementNode {
			continue
		}
		switch strings.ToLower(c.Data) {
		case "loc":
			if node.URL == "" {
				node.URL = strings.TrimSpace(c.InnerText())
			}
		case "lastmod":
			if node.LastModified == "" {
				node.LastModified = strings.TrimSpace(c.InnerText())
			}
		}
	}
	return node, node.URL != ""
}
