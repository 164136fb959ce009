package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackNotifier posts notifications to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Footer string       `json:"footer,omitempty"`
	Fields []slackField `json:"fields,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func toSlackFields(fields []Field) []slackField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]slackField, len(fields))
	for i, f := range fields {
		out[i] = slackField{Title: f.Label, Value: f.Value, Short: true}
	}
	return out
}

// NewSlackNotifier creates a SlackNotifier posting to webhookURL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func slackColor(t Type) string {
	switch t {
	case Success:
		return "good"
	case Warning:
		return "warning"
	case Error:
		return "danger"
	default:
		return "#439FE0"
	}
}

func (m *slackMessage) toJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Send posts n to the configured webhook. A blank webhook URL disables
// the notifier without treating every Send as an error.
func (s *SlackNotifier) Send(n Notification) error {
	if s.webhookURL == "" {
		return nil
	}

	msg := slackMessage{
		Text: n.Title,
		Attachments: []slackAttachment{
			{
				Color:  slackColor(n.Type),
				Title:  n.JobID,
				Text:   n.Message,
				Footer: "llm-merge-orchestrator",
				Fields: toSlackFields(n.Fields),
			},
		},
	}
	if n.DetailURL != "" {
		msg.Attachments[0].Text = fmt.Sprintf("%s\n%s", msg.Attachments[0].Text, n.DetailURL)
	}

	payload, err := msg.toJSON()
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned %d", resp.StatusCode)
	}
	return nil
}
