// Package parser maps listing fragments to book records.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/aluiziolira/bookshelf-etl/models"
)

// Normalize converts one listing fragment to a Book. Absent sub-elements
// leave the corresponding field nil; it never fails.
func Normalize(fragment *goquery.Selection, origin *url.URL, sel config.Selectors) models.Book {
	if fragment == nil {
		return models.Book{}
	}
	return models.Book{
		Title:  childText(fragment, sel.Title),
		Author: childText(fragment, sel.Author),
		Price:  childText(fragment, sel.Price),
		Link:   childLink(fragment, sel.Link, origin),
	}
}

// NormalizeAll applies Normalize to each fragment, keeping order.
func NormalizeAll(fragments []*goquery.Selection, origin *url.URL, sel config.Selectors) models.Batch {
	batch := make(models.Batch, 0, len(fragments))
	for _, fragment := range fragments {
		batch = append(batch, Normalize(fragment, origin, sel))
	}
	return batch
}

// Origin reduces a URL to scheme and host.
func Origin(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}, nil
}

// ResolveLink resolves href against origin. Blank or unparsable references
// report false.
func ResolveLink(href string, origin *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if origin == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return origin.ResolveReference(ref).String(), true
}

func childText(fragment *goquery.Selection, selector string) *string {
	if selector == "" {
		return nil
	}
	node := fragment.Find(selector).First()
	if node.Length() == 0 {
		return nil
	}
	return models.Str(strings.TrimSpace(node.Text()))
}

func childLink(fragment *goquery.Selection, selector string, origin *url.URL) *string {
	if selector == "" {
		return nil
	}
	node := fragment.Find(selector).First()
	if node.Length() == 0 {
		return nil
	}
	href, ok := node.Attr("href")
	if !ok {
		return nil
	}
	link, ok := ResolveLink(href, origin)
	if !ok {
		return nil
	}
	return models.Str(link)
}
