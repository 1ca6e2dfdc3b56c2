package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Slack posts run summaries to an incoming webhook
type Slack struct {
	webhookURL string
	client     *http.Client
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title,omitempty"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields,omitempty"`
	Footer string       `json:"footer,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlack creates a Slack notifier; an empty URL disables it
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func slackColor(l Level) string {
	switch l {
	case LevelSuccess:
		return "good"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "danger"
	default:
		return "#439FE0"
	}
}

func slackPayload(n Notification) slackMessage {
	att := slackAttachment{
		Color:  slackColor(n.Level),
		Text:   n.Message,
		Footer: "checklist-orch",
		Fields: []slackField{
			{Title: "Completed", Value: strconv.Itoa(n.Completed), Short: true},
			{Title: "Failed", Value: strconv.Itoa(len(n.Failed)), Short: true},
			{Title: "Skipped", Value: strconv.Itoa(n.Skipped), Short: true},
		},
	}
	if n.RunID != "" {
		att.Title = "Run " + n.RunID
	}
	if n.Duration > 0 {
		att.Fields = append(att.Fields, slackField{Title: "Duration", Value: n.Duration.Round(time.Second).String(), Short: true})
	}
	return slackMessage{Text: n.Title, Attachments: []slackAttachment{att}}
}

// Send posts n to the webhook
func (s *Slack) Send(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(slackPayload(n))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
