package feed

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	minPartsForTelegramChannelSlugStartingWithS = 2
	telegramHost                                = "t.me"
	telegramTitleMaxChars                       = 200
)

var telegramSlugRe = regexp.MustCompile(`^\w{5,32}$`)

// TelegramMessageCanonicalURL strips query and fragment from a post URL.
// Unparseable input is returned trimmed but otherwise unchanged.
func TelegramMessageCanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return trimmed
	}

	u.RawQuery = ""
	u.Fragment = ""

	return u.String()
}

func TelegramChannelCanonicalURL(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}

	return fmt.Sprintf("https://%s/s/%s", telegramHost, slug)
}

func isTelegramChannelURL(raw string) (bool, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false, ""
	}

	if u.Host != telegramHost {
		return false, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return false, ""
	}

	parts := strings.Split(path, "/")

	var slug string

	switch parts[0] {
	case "s":
		if len(parts) < minPartsForTelegramChannelSlugStartingWithS {
			return false, ""
		}
		slug = parts[1]
	default:
		slug = parts[0]
	}

	slug = strings.TrimSpace(slug)

	if !telegramSlugRe.MatchString(slug) {
		return false, ""
	}

	return true, slug
}

// parseTelegramChannelPage turns the public web preview of a channel into
// feed items in page order. Posts have no title, so the first line of the
// text stands in for it.
func parseTelegramChannelPage(r io.Reader) ([]*gofeed.Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &parseError{err: fmt.Errorf("create document from reader: %w", err)}
	}

	var (
		items []*gofeed.Item
		errs  []error
	)

	doc.Find("a.tgme_widget_message_date").Each(func(_ int, s *goquery.Selection) {
		item, processErr := processTelegramPost(s)
		if processErr != nil {
			errs = append(errs, fmt.Errorf("process telegram post: %w", processErr))
			return
		}

		items = append(items, item)
	})

	if len(items) == 0 && len(errs) == 0 && doc.Find(".tgme_channel_info, .tgme_page").Length() == 0 {
		return nil, &parseError{err: errors.New("not a Telegram channel page")}
	}

	// Individual broken posts are skipped; the rest of the page is still usable.
	return items, nil
}

func processTelegramPost(s *goquery.Selection) (*gofeed.Item, error) {
	href, ok := s.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, errors.New("href empty")
	}

	href = TelegramMessageCanonicalURL(href)

	var textBuilder strings.Builder
	message := s.ParentsFiltered(".tgme_widget_message").First()
	message.Find(".tgme_widget_message_text, .tgme_widget_message_caption").Each(
		func(_ int, inner *goquery.Selection) {
			inner.Find("br").Each(func(_ int, br *goquery.Selection) {
				br.ReplaceWithHtml("\n")
			})
			fragment := strings.TrimSpace(inner.Text())
			if fragment == "" {
				return
			}
			if textBuilder.Len() > 0 {
				textBuilder.WriteString("\n")
			}
			textBuilder.WriteString(fragment)
		},
	)
	text := strings.TrimSpace(textBuilder.String())

	item := &gofeed.Item{
		Title:       telegramPostTitle(text),
		Link:        href,
		GUID:        href,
		Description: text,
	}

	datetime := strings.TrimSpace(s.Find("time").AttrOr("datetime", ""))
	if datetime != "" {
		parsed, err := time.Parse(time.RFC3339, datetime)
		if err != nil {
			return nil, fmt.Errorf("parse datetime: %w", err)
		}
		item.Published = datetime
		item.PublishedParsed = &parsed
	}

	return item, nil
}

func telegramPostTitle(text string) string {
	var firstLine string
	for line := range strings.Lines(text) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			firstLine = trimmed
			break
		}
	}

	normalized := strings.Join(strings.Fields(firstLine), " ")

	runes := []rune(normalized)
	if len(runes) <= telegramTitleMaxChars {
		return normalized
	}

	return strings.TrimSpace(string(runes[:telegramTitleMaxChars])) + "..."
}
