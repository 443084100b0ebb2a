package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited Slack calls.
const maxRetries = 3

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackAdapter posts plan outcomes to a Slack channel over the Web API.
// Send-only: no socket connection is held.
type SlackAdapter struct {
	client    slackClient
	channelID string
}

// SlackOpts holds parameters for creating a SlackAdapter.
type SlackOpts struct {
	BotToken  string // xoxb-... bot token
	ChannelID string // channel to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack adapter.
func NewSlack(opts SlackOpts) (*SlackAdapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	a := &SlackAdapter{channelID: opts.ChannelID}
	if opts.Client != nil {
		a.client = opts.Client
	} else {
		a.client = slackapi.New(opts.BotToken)
	}
	return a, nil
}

// Send posts the event as an attachment with status fields.
func (a *SlackAdapter) Send(ctx context.Context, ev Event) error {
	att := slackapi.Attachment{
		Title:    ev.Headline(),
		Color:    severityColor(ev.Severity),
		Fallback: ev.Headline(),
		Fields: []slackapi.AttachmentField{
			{Title: "Project", Value: ev.ProjectID, Short: true},
			{Title: "Join code", Value: ev.JoinCode, Short: true},
			{Title: "Status", Value: ev.Status, Short: true},
			{Title: "Trace", Value: ev.TraceID, Short: true},
		},
	}
	if ev.ErrorCode != "" {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: "Error", Value: ev.ErrorCode, Short: true,
		})
	}

	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(a.channelID, slackapi.MsgOptionAttachments(att))
		return postErr
	})
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}

// Close is a no-op; the Web API client holds no connection.
func (a *SlackAdapter) Close() error { return nil }

func severityColor(severity string) string {
	switch severity {
	case SeveritySuccess:
		return "#36a64f"
	case SeverityError:
		return "#d00000"
	case SeverityWarning:
		return "#e8a317"
	default:
		return ""
	}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors. It respects context cancellation and the RetryAfter duration.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
