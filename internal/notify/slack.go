// Package notify delivers run outcomes to chat channels. Delivery failures
// are logged and never change the run's exit status.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
)

// RunSummary captures the outcome of one download run for delivery.
type RunSummary struct {
	URL      string
	Success  bool
	Path     string
	DataRows int
	Retried  bool
	Duration time.Duration
	Err      error
}

// Notifier defines the interface for run outcome delivery
type Notifier interface {
	Name() string
	Notify(ctx context.Context, summary RunSummary) error
}

// SlackNotifier posts run outcomes to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a Slack notifier using a bot token and channel ID.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

// Name returns the channel name
func (n *SlackNotifier) Name() string {
	return "slack"
}

// Notify posts the run summary to the configured channel.
func (n *SlackNotifier) Notify(ctx context.Context, summary RunSummary) error {
	blocks := buildMessageBlocks(summary)
	fallback := summaryText(summary)

	_, _, err := n.client.PostMessageContext(
		ctx,
		n.channel,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fallback, false),
	)
	if err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}

	log.Info().
		Str("channel", n.channel).
		Bool("success", summary.Success).
		Msg("Slack notification sent")

	return nil
}

// summaryText renders the plain-text fallback for clients without block support.
func summaryText(s RunSummary) string {
	if s.Success {
		return fmt.Sprintf("CSV download succeeded: %s (%d data rows)", s.URL, s.DataRows)
	}
	return fmt.Sprintf("CSV download failed: %s: %v", s.URL, s.Err)
}

func buildMessageBlocks(s RunSummary) []slack.Block {
	var emoji, headline string
	if s.Success {
		emoji = ":white_check_mark:"
		headline = "CSV download succeeded"
	} else {
		emoji = ":x:"
		headline = "CSV download failed"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(
				"mrkdwn",
				fmt.Sprintf("%s *%s*", emoji, headline),
				false,
				false,
			),
			nil,
			nil,
		),
	}

	detail := fmt.Sprintf("URL: %s\nDuration: %s", s.URL, s.Duration.Round(time.Second))
	if s.Success {
		detail += fmt.Sprintf("\nFile: %s\nData rows: %d", s.Path, s.DataRows)
	} else if s.Err != nil {
		detail += fmt.Sprintf("\nError: %v", s.Err)
	}
	if s.Retried {
		detail += "\nRetried with visible browser after headless verification failure"
	}

	blocks = append(blocks, slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", detail, false, false),
		nil,
		nil,
	))

	return blocks
}
