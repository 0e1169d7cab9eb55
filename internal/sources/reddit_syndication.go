package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/azure/reddit-brand-monitor/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// RedditFeedSource polls the per-community syndication feed of new posts
type RedditFeedSource struct {
	communities []string
	client      *resty.Client
	parser      *gofeed.Parser
	limiter     *ratelimit.Limiter
	baseURL     string
	Pacing      Pacing

	now func() time.Time
}

// NewRedditFeedSource creates the syndication-polling adapter
func NewRedditFeedSource(userAgent string, communities []string, limiter *ratelimit.Limiter) *RedditFeedSource {
	return &RedditFeedSource{
		communities: communities,
		client:      newRedditClient(userAgent),
		parser:      gofeed.NewParser(),
		limiter:     limiter,
		baseURL:     redditWebBase,
		Pacing: Pacing{
			BetweenUnits:  5 * time.Second,
			BetweenCycles: 300 * time.Second,
			Throttled:     60 * time.Second,
		},
		now: time.Now,
	}
}

func (f *RedditFeedSource) GetName() string {
	return string(models.SourceSyndication)
}

func (f *RedditFeedSource) IsEnabled() bool {
	return len(f.feedCommunities()) > 0
}

func (f *RedditFeedSource) Run(ctx context.Context, emit Emitter) error {
	communities := f.feedCommunities()
	if len(communities) == 0 {
		return fmt.Errorf("reddit feeds: no named communities configured: %w", ErrNotConfigured)
	}

	logrus.Infof("Starting Reddit feed monitor for %d communities", len(communities))

	for ctx.Err() == nil {
		for _, community := range communities {
			if ctx.Err() != nil {
				return nil
			}

			items, err := f.fetchFeed(ctx, community)
			switch {
			case err == nil:
				emitAll(ctx, emit, items)
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, errThrottled):
				logrus.Warnf("Reddit feed rate limited on r/%s, sleeping %v", community, f.Pacing.Throttled)
				sleepContext(ctx, f.Pacing.Throttled)
			default:
				logrus.Errorf("Reddit feed error for r/%s: %v", community, err)
			}

			sleepContext(ctx, f.Pacing.BetweenUnits)
		}

		sleepContext(ctx, f.Pacing.BetweenCycles)
	}

	return nil
}

// feedCommunities drops "all", which has no useful feed of its own
func (f *RedditFeedSource) feedCommunities() []string {
	var out []string
	for _, c := range f.communities {
		c = strings.TrimSpace(c)
		if c == "" || strings.EqualFold(c, "all") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *RedditFeedSource) fetchFeed(ctx context.Context, community string) ([]models.RawItem, error) {
	if err := f.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/r/%s/new/.rss", f.baseURL, community))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	return f.parseFeed(resp.String(), community)
}

func (f *RedditFeedSource) parseFeed(document, community string) ([]models.RawItem, error) {
	feed, err := f.parser.ParseString(document)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var items []models.RawItem
	for _, entry := range feed.Items {
		if entry == nil || entry.Link == "" {
			continue
		}

		content := entry.Content
		if content == "" {
			content = entry.Description
		}

		item := models.RawItem{
			ID:        entryID(entry.GUID, entry.Link),
			Kind:      models.KindPost,
			Title:     strings.TrimSpace(entry.Title),
			Body:      htmlToText(content),
			Permalink: entry.Link,
			CreatedAt: f.now().UTC(),
			Community: community,
			Author:    entryAuthor(entry),
			Source:    models.SourceSyndication,
		}

		switch {
		case entry.PublishedParsed != nil:
			item.CreatedAt = entry.PublishedParsed.UTC()
		case entry.UpdatedParsed != nil:
			item.CreatedAt = entry.UpdatedParsed.UTC()
		}

		items = append(items, item)
	}

	return items, nil
}

// entryID prefers the native Reddit id ("t3_abc" -> "abc") and falls back to
// a stable id derived from the canonical link
func entryID(guid, link string) string {
	if strings.HasPrefix(guid, "t3_") {
		return strings.TrimPrefix(guid, "t3_")
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	for i, s := range segments {
		if s == "comments" && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	if len(segments) > 0 {
		return segments[len(segments)-1]
	}

	return link
}

func entryAuthor(entry *gofeed.Item) string {
	if entry.Author == nil {
		return models.UnknownAuthor
	}

	name := strings.TrimSpace(entry.Author.Name)
	name = strings.TrimPrefix(name, "/u/")
	if name == "" {
		return models.UnknownAuthor
	}
	return name
}

// blockElements start a new run of text when flattened
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"blockquote": true, "pre": true, "table": true, "tr": true, "td": true, "th": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "hr": true,
}

// htmlToText flattens feed entry HTML. Reddit wraps the self text in div.md,
// followed by "submitted by" boilerplate, so the div wins when present.
func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	text := blockText(doc.Find("div.md"))
	if strings.TrimSpace(text) == "" {
		text = blockText(doc.Selection)
	}

	return strings.Join(strings.Fields(text), " ")
}

// blockText collects the text under sel, separating block elements with a
// space where goquery's Text would glue them together
func blockText(sel *goquery.Selection) string {
	var b strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if block {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte(' ')
		}
	}

	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
