package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultNotifyTimeout bounds a single webhook delivery.
const DefaultNotifyTimeout = 10 * time.Second

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// slackNotifier sends alert notifications to a Slack incoming webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts alerts to the given Slack
// webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: DefaultNotifyTimeout},
	}
}

type slackMessage struct {
	// Text is the notification fallback shown where blocks are not rendered.
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts the alerts. It returns nil without making a request if the
// alerts slice is empty.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if s.webhookURL == "" {
		return fmt.Errorf("slack webhook URL is not configured")
	}

	body, err := json.Marshal(s.buildMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// buildMessage renders one section per alert. Alerts for the same goal are
// kept together and goals are separated by dividers, in first-seen order.
func (s *slackNotifier) buildMessage(alerts []Alert) slackMessage {
	var order []string
	byGoal := map[string][]Alert{}
	high := 0
	for _, a := range alerts {
		if _, ok := byGoal[a.GoalID]; !ok {
			order = append(order, a.GoalID)
		}
		byGoal[a.GoalID] = append(byGoal[a.GoalID], a)
		if a.Severity == SeverityHigh {
			high++
		}
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "tinker Alert Summary"},
		},
	}
	for i, goalID := range order {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		for _, alert := range byGoal[goalID] {
			text := fmt.Sprintf("%s *[%s]* %s\n_%s_",
				severityEmoji(alert.Severity),
				strings.ToUpper(string(alert.Severity)),
				alert.Message,
				alert.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"),
			)
			blocks = append(blocks, slackBlock{
				Type: "section",
				Text: &slackText{Type: "mrkdwn", Text: text},
			})
		}
	}

	fallback := fmt.Sprintf("tinker: %d alert(s) across %d goal(s)", len(alerts), len(order))
	if high > 0 {
		fallback += fmt.Sprintf(", %d high", high)
	}
	return slackMessage{Text: fallback, Blocks: blocks}
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
