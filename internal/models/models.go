package models

import (
	"strings"
	"time"
)

// Kind is the type of Reddit item a mention was found in
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// SourceKind names the adapter that produced an item
type SourceKind string

const (
	SourceStreaming   SourceKind = "streaming"
	SourceListing     SourceKind = "listing"
	SourceSyndication SourceKind = "syndication"
)

// Sentiment is the enrichment label. The empty value means "not enriched yet".
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// UnknownAuthor is stored when a feed cannot tell who wrote an item
const UnknownAuthor = "unknown"

// Mention represents one (item, matched brand) record
type Mention struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"type"`
	Title     string     `json:"title,omitempty"`
	Body      string     `json:"body,omitempty"`
	Permalink string     `json:"permalink"`
	CreatedAt time.Time  `json:"created"`
	Community string     `json:"subreddit"`
	Author    string     `json:"author"`
	Score     int        `json:"score"`
	Sentiment Sentiment  `json:"sentiment,omitempty"`
	Brand     string     `json:"brand"`
	Source    SourceKind `json:"source"`
}

// Key is the storage identity of a mention
func (m Mention) Key() string {
	return m.ID + ":" + m.Brand
}

// Text is the content submitted for sentiment classification
func (m Mention) Text() string {
	return strings.TrimSpace(m.Title + " " + m.Body)
}

// RawItem is what a source adapter yields before brand matching
type RawItem struct {
	ID        string
	Kind      Kind
	Title     string
	Body      string
	Permalink string
	CreatedAt time.Time
	Community string
	Author    string
	Score     int
	Source    SourceKind
}

// Text is the content searched for brand patterns
func (r RawItem) Text() string {
	return strings.TrimSpace(r.Title + " " + r.Body)
}

// Draft builds the un-enriched mention for one matched brand
func (r RawItem) Draft(brand string) Mention {
	author := r.Author
	if author == "" || author == "[deleted]" {
		author = UnknownAuthor
	}
	return Mention{
		ID:        r.ID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		Permalink: r.Permalink,
		CreatedAt: r.CreatedAt.UTC(),
		Community: r.Community,
		Author:    author,
		Score:     r.Score,
		Brand:     brand,
		Source:    r.Source,
	}
}

// MentionFilter narrows a mention query. Zero values mean "any".
type MentionFilter struct {
	Brand     string     `json:"brand" validate:"omitempty,max=50"`
	Kind      Kind       `json:"type" validate:"omitempty,oneof=post comment"`
	Source    SourceKind `json:"source" validate:"omitempty,oneof=streaming listing syndication"`
	Community string     `json:"subreddit" validate:"omitempty,max=100"`
	Sentiment Sentiment  `json:"sentiment" validate:"omitempty,oneof=positive neutral negative"`
	Since     time.Time  `json:"since"`
	Until     time.Time  `json:"until"`
}

// Page selects a window of query results
type Page struct {
	Number  int `json:"page" validate:"min=1"`
	PerPage int `json:"per_page" validate:"min=1,max=100"`
}

// Offset returns the number of rows to skip
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// MentionPage is one page of query results
type MentionPage struct {
	Results []Mention `json:"results"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Total   int       `json:"total"`
}

// Alert represents an urgent notification
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Digest summarises the mentions persisted over a period
type Digest struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Period      string         `json:"period"`
	Total       int            `json:"total"`
	ByBrand     map[string]int `json:"by_brand"`
	BySentiment map[string]int `json:"by_sentiment"`
	Mentions    []Mention      `json:"mentions"`
}
