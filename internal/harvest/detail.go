package harvest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TopicLink is one anchor found on an index page, with its visible text
// collapsed to single spaces.
type TopicLink struct {
	Href string
	Text string
}

// Detail holds what a topic detail page contributes beyond the title: the
// first inline image (the fallback poster) and the magnet links in post
// order.
type Detail struct {
	PosterURL string
	Magnets   []string
}

// ExtractTopicLinks returns every anchor with an href from an index page.
// Filtering is the harvester's job; this only normalizes the link text.
func ExtractTopicLinks(body []byte) []TopicLink {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var links []TopicLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := collapseRe.ReplaceAllString(s.Text(), " ")
		links = append(links, TopicLink{
			Href: strings.TrimSpace(href),
			Text: strings.TrimSpace(text),
		})
	})
	return links
}

// ExtractDetail pulls the poster image and magnet links out of the first
// post body of a topic page. Lazy-loaded images carry the real URL in
// data-src, so that attribute wins over src.
func ExtractDetail(body []byte) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Detail{}, fmt.Errorf("parse detail page: %w", err)
	}
	var d Detail
	post := doc.Find("div.ipsType_normal.ipsType_richText").First()
	if post.Length() == 0 {
		return d, nil
	}
	img := post.Find("img").First()
	if src, ok := img.Attr("data-src"); ok && src != "" {
		d.PosterURL = src
	} else if src, ok := img.Attr("src"); ok {
		d.PosterURL = src
	}
	post.Find(`a[href^="magnet:"]`).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			d.Magnets = append(d.Magnets, href)
		}
	})
	return d, nil
}
