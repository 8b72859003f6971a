// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/bookrisk/internal/format"
	"github.com/rewired-gh/bookrisk/internal/logger"
	"github.com/rewired-gh/bookrisk/internal/models"
)

// DigestSource returns the most recent stored digest, for the /top command.
type DigestSource interface {
	LatestDigest(ctx context.Context) ([]models.RiskAlert, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, digests DigestSource) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(ctx, update.Message, digests)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(ctx context.Context, msg *tgbotapi.Message, digests DigestSource) {
	var reply tgbotapi.MessageConfig
	switch msg.Command() {
	case "ping":
		reply = tgbotapi.NewMessage(msg.Chat.ID, "Pong")
	case "top":
		reply = tgbotapi.NewMessage(msg.Chat.ID, topReply(ctx, digests))
		reply.ParseMode = "MarkdownV2"
	default:
		return
	}
	if _, err := c.bot.Send(reply); err != nil {
		logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
	}
}

func topReply(ctx context.Context, digests DigestSource) string {
	if digests == nil {
		return escapeMarkdownV2("No digest available.")
	}
	alerts, err := digests.LatestDigest(ctx)
	if err != nil {
		logger.Warn("Failed to load latest digest: %v", err)
		return escapeMarkdownV2("Failed to load the latest digest.")
	}
	if len(alerts) == 0 {
		return escapeMarkdownV2("No digest yet.")
	}
	return formatMessage("📋 *Latest Book Risk digest*", alerts)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendError sends a monitoring error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Digest error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Digest recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendDigest sends the ranked events selected this cycle.
func (c *Client) SendDigest(alerts []models.RiskAlert) error {
	return c.sendMarkdownV2(formatMessage("🚨 *Book Risk digest*", alerts))
}

var fieldLabels = map[models.SortField]string{
	models.SortBookRiskHome: "Book Risk (home)",
	models.SortBookRiskAway: "Book Risk (away)",
	models.SortBookRiskDraw: "Book Risk (draw)",
	models.SortVolume:       "volume",
}

// formatMessage formats alerts into a Telegram MarkdownV2 message.
func formatMessage(title string, alerts []models.RiskAlert) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")

	if len(alerts) > 0 {
		first := alerts[0]
		dateStr := escapeMarkdownV2(first.DetectedAt.UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 Detected: %s UTC\n", dateStr)
		if label, ok := fieldLabels[first.Field]; ok {
			fmt.Fprintf(&b, "📊 Ranked by %s\n", escapeMarkdownV2(label))
		}
		b.WriteString("\n")
	}

	for _, alert := range alerts {
		fmt.Fprintf(&b, "%d\\. *%s*\n", alert.Rank, escapeMarkdownV2(alert.EventName))

		var meta []string
		if alert.CompetitionName != "" {
			meta = append(meta, alert.CompetitionName)
		}
		if t, err := time.Parse(time.RFC3339, alert.EventOpenDate); err == nil {
			meta = append(meta, t.UTC().Format("Jan 2 15:04"))
		}
		if len(meta) > 0 {
			fmt.Fprintf(&b, "   🏟 %s\n", escapeMarkdownV2(strings.Join(meta, " · ")))
		}

		br := format.Triplet(alert.BookRisk)
		fmt.Fprintf(&b, "   %s BR H/A/D: %s\n", directionEmoji(alert.Value),
			escapeMarkdownV2(strings.Join(br[:], " / ")))
		fmt.Fprintf(&b, "   💰 Vol: %s\n", escapeMarkdownV2(format.Volume(alert.Volume)))
	}

	return b.String()
}

func directionEmoji(v *float64) string {
	if v != nil && *v < 0 {
		return "📉"
	}
	return "📈"
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
