package feed

import (
	"fmt"
	"strings"
	"time"

	"vea/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"mvdan.cc/xurls/v2"
)

var strictURLRe = xurls.Strict()

// Normalize maps a parsed RSS or Atom item onto an Entry. Items without a
// usable title or link are rejected with ErrMalformedEntry. It does no I/O.
func Normalize(sourceName string, item *gofeed.Item) (domain.Entry, error) {
	if item == nil {
		return domain.Entry{}, fmt.Errorf("%w: nil item", ErrMalformedEntry)
	}

	title := strings.TrimSpace(item.Title)
	link := itemLink(item)

	switch {
	case title == "" && link == "":
		return domain.Entry{}, fmt.Errorf("%w: missing title and link", ErrMalformedEntry)
	case title == "":
		return domain.Entry{}, fmt.Errorf("%w: missing title (link = %s)", ErrMalformedEntry, link)
	case link == "":
		return domain.Entry{}, fmt.Errorf("%w: missing link (title = %s)", ErrMalformedEntry, title)
	}

	return domain.Entry{
		Source:    sourceName,
		Title:     title,
		Summary:   itemSummary(item),
		Link:      link,
		Published: itemPublished(item),
	}, nil
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}

	for _, l := range item.Links {
		if link := strings.TrimSpace(l); link != "" {
			return link
		}
	}

	// RSS guids are often permalinks.
	guid := strings.TrimSpace(item.GUID)
	if guid != "" && strictURLRe.FindString(guid) == guid {
		return guid
	}

	return ""
}

func itemSummary(item *gofeed.Item) string {
	raw := strings.TrimSpace(item.Description)
	if raw == "" {
		raw = strings.TrimSpace(item.Content)
	}
	if raw == "" {
		return ""
	}

	return plainText(raw)
}

func plainText(raw string) string {
	text := raw

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err == nil {
		doc.Find("script, style").Remove()
		doc.Find("br").Each(func(_ int, br *goquery.Selection) {
			br.ReplaceWithHtml(" ")
		})
		doc.Find("p, div, li, h1, h2, h3, h4, h5, h6").Each(func(_ int, block *goquery.Selection) {
			block.AfterHtml(" ")
		})
		text = doc.Text()
	}

	return strings.Join(strings.Fields(text), " ")
}

func itemPublished(item *gofeed.Item) *time.Time {
	var t time.Time

	switch {
	case item.PublishedParsed != nil:
		t = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		t = *item.UpdatedParsed
	default:
		t = parseLooseTime(item.Published)
		if t.IsZero() {
			t = parseLooseTime(item.Updated)
		}
	}

	if t.IsZero() {
		return nil
	}

	t = t.UTC()

	return &t
}

func parseLooseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}
	}

	return t
}
