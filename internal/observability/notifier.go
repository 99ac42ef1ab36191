package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
)

// Notifier sends alert notifications to external channels.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

// NopNotifier discards alerts. It is used when no webhook is configured.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, []Alert) error { return nil }

// NotifierOption customizes the Slack notifier.
type NotifierOption func(*slackNotifier)

// WithWebhookClient replaces the HTTP client used to post to the webhook.
func WithWebhookClient(hc *http.Client) NotifierOption {
	return func(s *slackNotifier) {
		if hc != nil {
			s.client = hc
		}
	}
}

// WithWebhookRetry replaces the retry policy for webhook posts. Only
// rate-limit and server errors are retried unless the policy says otherwise.
func WithWebhookRetry(p core.RetryPolicy) NotifierOption {
	return func(s *slackNotifier) {
		if p.Retryable == nil {
			p.Retryable = retryableWebhookError
		}
		s.retry = p
	}
}

// NewNotifier returns a Slack notifier for webhookURL, or a NopNotifier when
// it is empty.
func NewNotifier(webhookURL string, opts ...NotifierOption) Notifier {
	if webhookURL == "" {
		return NopNotifier{}
	}
	return NewSlackNotifier(webhookURL, opts...)
}

// NewSlackNotifier creates a Notifier that posts alerts to a Slack incoming
// webhook. An alert is posted once while it stays active; when it clears and
// fires again it is posted again.
func NewSlackNotifier(webhookURL string, opts ...NotifierOption) Notifier {
	policy := core.DefaultRetryPolicy()
	policy.Retryable = retryableWebhookError
	s := &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		retry:      policy,
		sent:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
	retry      core.RetryPolicy

	mu   sync.Mutex
	sent map[string]bool
}

// webhookError is a non-2xx answer from the webhook.
type webhookError struct {
	status int
	body   string
}

func (e *webhookError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("slack webhook returned status %d", e.status)
	}
	return fmt.Sprintf("slack webhook returned status %d: %s", e.status, e.body)
}

func retryableWebhookError(err error) bool {
	var we *webhookError
	if !errors.As(err, &we) {
		return false
	}
	return we.status == http.StatusTooManyRequests || we.status >= 500
}

// Notify posts the alerts that have not been posted yet. It makes no request
// when there is nothing new.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	fresh := s.unsent(alerts)
	if len(fresh) == 0 {
		return nil
	}

	body, err := json.Marshal(buildMessage(fresh))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}
	if err := s.retry.Do(ctx, func(ctx context.Context) error {
		return s.post(ctx, body)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	for _, a := range fresh {
		s.sent[a.ID] = true
	}
	s.mu.Unlock()
	return nil
}

// unsent returns the alerts not posted yet and forgets posted alerts that are
// no longer active.
func (s *slackNotifier) unsent(alerts []Alert) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		active[a.ID] = true
		if !s.sent[a.ID] {
			fresh = append(fresh, a)
		}
	}
	for id := range s.sent {
		if !active[id] {
			delete(s.sent, id)
		}
	}
	return fresh
}

func (s *slackNotifier) post(ctx context.Context, body []byte) error {
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

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &webhookError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	return nil
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// maxSectionText is Slack's limit for the text of a section block.
const maxSectionText = 3000

// conditionTitles orders the sections of a message.
var conditionTitles = []struct {
	condition string
	title     string
}{
	{ConditionRepeatedTagFailure, "Tags failing repeatedly"},
	{ConditionLastBatchFailed, "Last batch failed"},
	{ConditionUnrecognizedTag, "Unrecognized tags left on tasks"},
}

// buildMessage renders one header, a severity summary and a section per alert
// condition.
func buildMessage(alerts []Alert) slackMessage {
	summary := severitySummary(alerts)
	msg := slackMessage{
		Text: fmt.Sprintf("taskflow: %s", summary),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "taskflow alerts"}},
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: summary}}},
		},
	}

	byCondition := make(map[string][]Alert)
	for _, a := range alerts {
		byCondition[a.Condition] = append(byCondition[a.Condition], a)
	}
	appendSection := func(title string, group []Alert) {
		if len(group) == 0 {
			return
		}
		var b strings.Builder
		fmt.Fprintf(&b, "*%s*", title)
		for _, a := range group {
			fmt.Fprintf(&b, "\n%s %s _(%s)_", severityEmoji(a.Severity), a.Message,
				a.TriggeredAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		text := b.String()
		if len(text) > maxSectionText {
			text = text[:maxSectionText-3] + "..."
		}
		msg.Blocks = append(msg.Blocks,
			slackBlock{Type: "divider"},
			slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}},
		)
	}

	for _, ct := range conditionTitles {
		appendSection(ct.title, byCondition[ct.condition])
		delete(byCondition, ct.condition)
	}
	for condition, group := range byCondition {
		appendSection(condition, group)
	}
	return msg
}

// severitySummary reads like "2 alerts: 1 high, 1 low".
func severitySummary(alerts []Alert) string {
	counts := make(map[AlertSeverity]int)
	for _, a := range alerts {
		counts[a.Severity]++
	}
	var parts []string
	for _, sev := range []AlertSeverity{SeverityHigh, SeverityMedium, SeverityLow} {
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	noun := "alerts"
	if len(alerts) == 1 {
		noun = "alert"
	}
	return fmt.Sprintf("%d %s: %s", len(alerts), noun, strings.Join(parts, ", "))
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return ":red_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	default:
		return ":large_blue_circle:"
	}
}
