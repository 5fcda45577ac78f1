package source

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/cognicore/quotes/pkg/quotes/fetch"
)

// HTMLPage extracts quotes from a page marked up as blocks of
// class="quote" elements, each holding class="text", class="author" and any
// number of class="tag" elements.
type HTMLPage struct {
	SourceName string
	Fetcher    fetch.Fetcher
	Repo       string
	File       string
}

// Name implements Source.
func (s *HTMLPage) Name() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return s.Repo + "/" + s.File
}

// Records implements Source.
func (s *HTMLPage) Records(ctx context.Context) (iter.Seq2[Raw, error], error) {
	path, err := s.Fetcher.FetchFile(ctx, s.Repo, s.File)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := html.Parse(textReader(f))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	blocks := findByClass(doc, "quote")

	return func(yield func(Raw, error) bool) {
		for i, b := range blocks {
			if err := ctx.Err(); err != nil {
				yield(Raw{}, err)
				return
			}
			raw := Raw{Line: i + 1}
			if n := findByClass(b, "text"); len(n) > 0 {
				raw.Text = textContent(n[0])
			}
			if n := findByClass(b, "author"); len(n) > 0 {
				raw.Author = textContent(n[0])
			}
			for _, t := range findByClass(b, "tag") {
				raw.Tags = append(raw.Tags, textContent(t))
			}
			if !yield(raw, nil) {
				return
			}
		}
	}, nil
}

// findByClass returns the outermost descendants of n (excluding n) carrying
// class c.
func findByClass(n *html.Node, c string) []*html.Node {
	var out []*html.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && hasClass(child, c) {
			out = append(out, child)
			continue
		}
		out = append(out, findByClass(child, c)...)
	}
	return out
}

func hasClass(n *html.Node, c string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, f := range strings.Fields(a.Val) {
			if f == c {
				return true
			}
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}
