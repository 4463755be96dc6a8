package notification

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/olegiv/drfeedback-go/internal/ai"
	internalerrors "github.com/olegiv/drfeedback-go/internal/errors"
	"github.com/olegiv/drfeedback-go/internal/inspector"
	"github.com/olegiv/drfeedback-go/internal/runner"
)

const (
	maxMessageLength = 4096
	// minMessageInterval keeps us under Telegram's per-chat rate limit
	minMessageInterval = 1 * time.Second
	// maxRetries is the maximum number of retry attempts for sending messages
	maxRetries = 3
	// baseRetryDelay is the initial delay between retries (doubles each attempt)
	baseRetryDelay = 2 * time.Second
	// maxListedFindings caps the error and warning lists of a digest
	maxListedFindings = 15
)

// sender is the part of tgbotapi.BotAPI used here.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient posts bundle digests to Telegram channels.
type TelegramClient struct {
	bot             sender
	botName         string
	archiveChannel  int64
	alertsChannel   int64
	hostname        string
	lastMessageTime time.Time
	wait            func(ctx context.Context, d time.Duration) error
}

// NewTelegramClient creates a new Telegram client
func NewTelegramClient(botToken string, archiveChannel, alertsChannel int64) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, internalerrors.Wrapf(err, "failed to create Telegram bot")
	}

	client := newClient(bot, archiveChannel, alertsChannel)
	client.botName = bot.Self.UserName
	return client, nil
}

func newClient(bot sender, archiveChannel, alertsChannel int64) *TelegramClient {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &TelegramClient{
		bot:            bot,
		archiveChannel: archiveChannel,
		alertsChannel:  alertsChannel,
		hostname:       hostname,
		wait:           sleepCtx,
	}
}

// SendBundleReport posts the digest of agg to the archive channel, and to
// the alerts channel when the bundle has errors or triage flags it.
// triage and stats may be nil.
func (t *TelegramClient) SendBundleReport(ctx context.Context, agg *runner.AggregateReport, source string, triage *ai.Triage, stats *ai.Stats) error {
	message := t.formatMessage(agg, source, triage, stats)

	if err := t.sendToChannel(ctx, t.archiveChannel, message); err != nil {
		return fmt.Errorf("failed to send to archive channel: %w", err)
	}

	if t.alertsChannel != 0 && shouldAlert(agg, triage) {
		if err := t.sendToChannel(ctx, t.alertsChannel, message); err != nil {
			return fmt.Errorf("failed to send to alerts channel: %w", err)
		}
	}
	return nil
}

func shouldAlert(agg *runner.AggregateReport, triage *ai.Triage) bool {
	if triage != nil && ai.ShouldAlert(triage.Status) {
		return true
	}
	return agg.HasErrors() || len(agg.Failed()) > 0
}

// overallStatus derives a status from finding counts when there is no triage.
func overallStatus(agg *runner.AggregateReport) string {
	_, warn, errs := agg.Counts()
	switch {
	case errs > 0:
		return ai.StatusBroken
	case warn > 0:
		return ai.StatusDegraded
	}
	return ai.StatusGood
}

func (t *TelegramClient) formatMessage(agg *runner.AggregateReport, source string, triage *ai.Triage, stats *ai.Stats) string {
	const formattedListTemplate = "%d\\. %s\n"

	var msg strings.Builder

	status := overallStatus(agg)
	if triage != nil {
		status = triage.Status
	}

	msg.WriteString("🩺 *Feedback Bundle Report*\n")
	msg.WriteString(fmt.Sprintf("🆔 Bundle\\: %s\n", escapeMarkdown(agg.ID)))
	if source != "" {
		msg.WriteString(fmt.Sprintf("📦 Source\\: %s\n", escapeMarkdown(filepath.Base(source))))
	}
	msg.WriteString(fmt.Sprintf("🖥 Host\\: %s\n", escapeMarkdown(t.hostname)))
	msg.WriteString(fmt.Sprintf("📅 Date\\: %s\n", escapeMarkdown(agg.CreatedAt.Format("2006-01-02 15:04:05"))))
	msg.WriteString(fmt.Sprintf("%s *Status\\:* %s\n\n", ai.StatusEmoji(status), escapeMarkdown(status)))

	info, warn, errs := agg.Counts()
	msg.WriteString("📋 *Inspection Stats*\n")
	msg.WriteString(fmt.Sprintf("• Files\\: %d\n", len(agg.Results)))
	msg.WriteString(fmt.Sprintf("• Errors\\: %d\n", errs))
	msg.WriteString(fmt.Sprintf("• Warnings\\: %d\n", warn))
	msg.WriteString(fmt.Sprintf("• Info\\: %d\n", info))
	msg.WriteString(fmt.Sprintf("• Duration\\: %s\n", escapeMarkdown(agg.Duration.Round(time.Millisecond).String())))
	if stats != nil {
		msg.WriteString(fmt.Sprintf("• Triage Cost\\: %s\n", escapeMarkdown(fmt.Sprintf("$%.4f", stats.CostUSD))))
	}
	msg.WriteString("\n")

	if triage != nil {
		msg.WriteString("📊 *Summary*\n")
		msg.WriteString(escapeMarkdown(triage.Summary))
		msg.WriteString("\n\n")

		if len(triage.LikelyCauses) > 0 {
			msg.WriteString("🔎 *Likely Causes*\n")
			for i, cause := range triage.LikelyCauses {
				msg.WriteString(fmt.Sprintf(formattedListTemplate, i+1, escapeMarkdown(cause)))
			}
			msg.WriteString("\n")
		}

		if len(triage.NextSteps) > 0 {
			msg.WriteString("💡 *Next Steps*\n")
			for i, step := range triage.NextSteps {
				msg.WriteString(fmt.Sprintf(formattedListTemplate, i+1, escapeMarkdown(step)))
			}
			msg.WriteString("\n")
		}
	}

	if failed := agg.Failed(); len(failed) > 0 {
		msg.WriteString(fmt.Sprintf("💥 *Not Fully Inspected* \\(%d\\)\n", len(failed)))
		for _, res := range failed {
			msg.WriteString(fmt.Sprintf("• %s\n", escapeMarkdown(res.Filename)))
		}
		msg.WriteString("\n")
	}

	writeTier(&msg, agg, inspector.SeverityError, "🔴 *Errors*", errs)
	writeTier(&msg, agg, inspector.SeverityWarn, "⚡ *Warnings*", warn)

	return msg.String()
}

// writeTier lists up to maxListedFindings findings of one severity.
func writeTier(msg *strings.Builder, agg *runner.AggregateReport, sev inspector.Severity, title string, total int) {
	if total == 0 {
		return
	}

	msg.WriteString(fmt.Sprintf("%s \\(%d\\)\n", title, total))
	listed := 0
	for _, res := range agg.Results {
		for _, f := range res.Report.Findings() {
			if f.Severity != sev {
				continue
			}
			if listed == maxListedFindings {
				msg.WriteString(fmt.Sprintf("_\\.\\.\\. and %d more_\n\n", total-listed))
				return
			}
			msg.WriteString(fmt.Sprintf("• `%s`\\: %s\n", escapeCode(res.Filename), escapeMarkdown(f.Message)))
			listed++
		}
	}
	msg.WriteString("\n")
}

// sendToChannel sends a message, split to Telegram's size limit, with
// rate limiting between parts.
func (t *TelegramClient) sendToChannel(ctx context.Context, channelID int64, message string) error {
	for _, part := range splitMessage(message) {
		if err := t.waitForRateLimit(ctx); err != nil {
			return err
		}

		msgConfig := tgbotapi.NewMessage(channelID, part)
		msgConfig.ParseMode = tgbotapi.ModeMarkdownV2

		if err := t.sendWithRetry(ctx, msgConfig); err != nil {
			return err
		}
		t.lastMessageTime = time.Now()
	}
	return nil
}

func (t *TelegramClient) waitForRateLimit(ctx context.Context) error {
	if t.lastMessageTime.IsZero() {
		return nil
	}

	elapsed := time.Since(t.lastMessageTime)
	if elapsed < minMessageInterval {
		return t.wait(ctx, minMessageInterval-elapsed)
	}
	return nil
}

// sendWithRetry sends a message with exponential backoff, honouring
// Telegram's retry_after on 429 responses.
func (t *TelegramClient) sendWithRetry(ctx context.Context, msgConfig tgbotapi.MessageConfig) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := t.bot.Send(msgConfig)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}

		delay := baseRetryDelay * time.Duration(1<<(attempt-1)) // 2s, 4s, 8s...
		if retryAfter, ok := rateLimitRetryAfter(err); ok {
			delay = retryAfter
		}
		if err := t.wait(ctx, delay); err != nil {
			return err
		}
	}

	return internalerrors.Wrapf(lastErr, "failed to send message after %d retries", maxRetries)
}

// rateLimitRetryAfter reports whether err is a 429 and how long Telegram
// asked us to wait, defaulting to 30s.
func rateLimitRetryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second, true
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "429") && !strings.Contains(errStr, "Too Many Requests") {
		return 0, false
	}

	// "Too Many Requests: retry after 30"
	if idx := strings.Index(strings.ToLower(errStr), "retry after "); idx != -1 {
		var seconds int
		if _, err := fmt.Sscanf(errStr[idx+len("retry after "):], "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second, true
		}
	}
	return 30 * time.Second, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// splitMessage splits a long message on line boundaries.
func splitMessage(message string) []string {
	if len(message) <= maxMessageLength {
		return []string{message}
	}

	var messages []string
	var currentMsg strings.Builder

	for _, line := range strings.Split(message, "\n") {
		if currentMsg.Len()+len(line)+1 > maxMessageLength {
			if currentMsg.Len() > 0 {
				messages = append(messages, currentMsg.String())
				currentMsg.Reset()
			}

			if len(line) > maxMessageLength {
				for i := 0; i < len(line); i += maxMessageLength {
					end := min(i+maxMessageLength, len(line))
					messages = append(messages, line[i:end])
				}
				continue
			}
		}

		currentMsg.WriteString(line)
		currentMsg.WriteString("\n")
	}

	if currentMsg.Len() > 0 {
		messages = append(messages, currentMsg.String())
	}
	return messages
}

var markdownReplacer = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
	"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`, ":", `\:`,
)

// escapeMarkdown escapes special characters for Telegram MarkdownV2
// (https://core.telegram.org/bots/api#markdownv2-style).
func escapeMarkdown(text string) string {
	return markdownReplacer.Replace(text)
}

var codeReplacer = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// escapeCode escapes text placed inside a MarkdownV2 code span.
func escapeCode(text string) string {
	return codeReplacer.Replace(text)
}

// BotInfo returns information about the bot
func (t *TelegramClient) BotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":        t.botName,
		"archive_channel": t.archiveChannel,
		"alerts_channel":  t.alertsChannel,
		"hostname":        t.hostname,
	}
}
