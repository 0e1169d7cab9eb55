package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/azure/reddit-brand-monitor/internal/config"
	"github.com/azure/reddit-brand-monitor/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service handles sending notifications via various channels
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// Enabled reports whether any channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendAlert sends an urgent alert via configured notification channels
func (s *Service) SendAlert(alert *models.Alert) error {
	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "d13438",
		Title:      alert.Title,
		Text:       alert.Message,
		Sections: []TeamsSection{{
			Facts: []TeamsFact{
				{Name: "Severity", Value: alert.Type},
				{Name: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
			},
		}},
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Type), alert.Title)
	body := fmt.Sprintf("%s\n\nRaised: %s\n", alert.Message, alert.CreatedAt.Format("2006-01-02 15:04:05 UTC"))

	return s.dispatch("alert", message, subject, body, "")
}

// SendDigest sends the periodic mention summary
func (s *Service) SendDigest(digest *models.Digest) error {
	htmlBody, err := s.buildDigestHTML(digest)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	subject := fmt.Sprintf("Brand Mentions Digest - %s (%d mentions)", digest.Period, digest.Total)
	return s.dispatch("digest", s.buildDigestTeamsMessage(digest), subject, s.buildDigestText(digest), htmlBody)
}

func (s *Service) dispatch(kind string, message *TeamsMessage, subject, text, html string) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(message); err != nil {
			logrus.Errorf("Failed to send Teams %s: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Infof("Sent %s to Teams", kind)
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(subject, text, html); err != nil {
			logrus.Errorf("Failed to send %s email: %v", kind, err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Infof("Sent %s via email", kind)
		}
	}

	if !s.Enabled() {
		logrus.Warnf("No notification channel configured, %s dropped: %s", kind, subject)
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

func (s *Service) sendToTeams(message *TeamsMessage) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) sendEmail(subject, text, html string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	if html != "" {
		m.AddAlternative("text/html", html)
	}

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildDigestTeamsMessage(digest *models.Digest) *TeamsMessage {
	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   fmt.Sprintf("Brand Mentions Digest - %s", digest.Period),
		Text:    fmt.Sprintf("Found %d mentions in the %s", digest.Total, digest.Period),
	}

	facts := []TeamsFact{
		{Name: "Total Mentions", Value: fmt.Sprintf("%d", digest.Total)},
		{Name: "Generated", Value: digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC")},
	}
	for _, brand := range sortedKeys(digest.ByBrand) {
		facts = append(facts, TeamsFact{Name: brand, Value: fmt.Sprintf("%d", digest.ByBrand[brand])})
	}
	for _, label := range sortedKeys(digest.BySentiment) {
		facts = append(facts, TeamsFact{
			Name:  fmt.Sprintf("%s Mentions", capitalize(label)),
			Value: fmt.Sprintf("%d", digest.BySentiment[label]),
		})
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	if len(digest.Mentions) > 0 {
		var top []string
		for i, m := range digest.Mentions {
			if i >= 5 {
				break
			}
			top = append(top, fmt.Sprintf("**[%s](%s)** - %s in r/%s (%s)",
				headline(m), m.Permalink, m.Brand, m.Community, m.Sentiment))
		}
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Recent Mentions",
			ActivityText:  strings.Join(top, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

const digestTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Brand Mentions Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #ff4500; color: white; padding: 20px; border-radius: 5px; }
        .summary { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .mention { border-left: 4px solid #ff4500; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .mention-meta { color: #666; font-size: 0.9em; }
        .positive { border-left-color: #107c10; }
        .negative { border-left-color: #d13438; }
        .neutral { border-left-color: #605e5c; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Brand Mentions Digest</h1>
        <p>{{.Period}} digest generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="summary">
        <h2>Summary</h2>
        <p><strong>Total Mentions:</strong> {{.Total}}</p>
        {{range $brand, $count := .ByBrand}}
            <p><strong>{{$brand}}:</strong> {{$count}}</p>
        {{end}}
        {{range $label, $count := .BySentiment}}
            <p><strong>{{$label | title}} Mentions:</strong> {{$count}}</p>
        {{end}}
    </div>

    {{if .Mentions}}
    <h2>Recent Mentions</h2>
    {{range $index, $mention := .Mentions}}
        {{if lt $index 10}}
        <div class="mention {{$mention.Sentiment}}">
            <a href="{{$mention.Permalink}}" target="_blank">{{headline $mention}}</a>
            <div class="mention-meta">
                {{$mention.Brand}} | u/{{$mention.Author}} in r/{{$mention.Community}} | {{$mention.CreatedAt.Format "Jan 2, 2006"}}
            </div>
        </div>
        {{end}}
    {{end}}
    {{end}}
</body>
</html>
`

func (s *Service) buildDigestHTML(digest *models.Digest) (string, error) {
	t, err := template.New("digest").Funcs(template.FuncMap{
		"title":    capitalize,
		"headline": headline,
	}).Parse(digestTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, digest); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) buildDigestText(digest *models.Digest) string {
	var text strings.Builder

	fmt.Fprintf(&text, "Brand Mentions Digest - %s\n", digest.Period)
	fmt.Fprintf(&text, "Generated: %s\n\n", digest.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	text.WriteString("SUMMARY\n=======\n")
	fmt.Fprintf(&text, "Total Mentions: %d\n", digest.Total)
	for _, brand := range sortedKeys(digest.ByBrand) {
		fmt.Fprintf(&text, "%s: %d\n", brand, digest.ByBrand[brand])
	}
	for _, label := range sortedKeys(digest.BySentiment) {
		fmt.Fprintf(&text, "%s Mentions: %d\n", capitalize(label), digest.BySentiment[label])
	}

	if len(digest.Mentions) > 0 {
		text.WriteString("\nRECENT MENTIONS\n===============\n")
		for i, m := range digest.Mentions {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&text, "\n%d. %s\n", i+1, headline(m))
			fmt.Fprintf(&text, "   Brand: %s | r/%s | u/%s | %s\n", m.Brand, m.Community, m.Author, m.Sentiment)
			fmt.Fprintf(&text, "   URL: %s\n", m.Permalink)
		}
	}

	return text.String()
}

// headline is the title of a post, or the start of a comment body
func headline(m models.Mention) string {
	if m.Title != "" {
		return m.Title
	}
	body := []rune(strings.TrimSpace(m.Body))
	if len(body) > 80 {
		return string(body[:80]) + "..."
	}
	return string(body)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
