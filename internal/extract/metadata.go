package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vishalm/serp-forge/internal/serp"
)

// Metadata is structural information read from the page head and images.
type Metadata struct {
	Title         string
	Description   string
	Author        string
	PublishDate   string
	LastModified  string
	Images        []serp.Image
	FeaturedImage string
}

// ExtractMetadata reads title, meta tags and images. Unparseable HTML yields empty metadata.
func ExtractMetadata(html []byte) Metadata {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Metadata{Images: []serp.Image{}}
	}

	md := Metadata{
		Title:         strings.TrimSpace(doc.Find("title").First().Text()),
		Description:   metaContent(doc, `meta[name="description"]`),
		Author:        metaContent(doc, `meta[name="author"]`),
		PublishDate:   metaContent(doc, `meta[property="article:published_time"]`),
		LastModified:  metaContent(doc, `meta[property="article:modified_time"]`),
		FeaturedImage: metaContent(doc, `meta[property="og:image"]`),
		Images:        []serp.Image{},
	}

	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			return
		}
		md.Images = append(md.Images, serp.Image{
			Src:   src,
			Alt:   s.AttrOr("alt", ""),
			Title: s.AttrOr("title", ""),
		})
	})
	return md
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}
