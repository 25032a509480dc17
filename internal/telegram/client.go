// Package telegram provides a client for sending notifications via Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/fleaprice/internal/logger"
	"github.com/rewired-gh/fleaprice/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	topN           int
	maxRetries     int
	retryDelayBase time.Duration

	mu   sync.RWMutex
	last *models.RunReport
}

// NewClient creates a new Telegram client. topN bounds the items listed in run summaries.
func NewClient(botToken, chatID string, topN, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
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
		topN:           topN,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
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
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	case "status":
		c.mu.RLock()
		last := c.last
		c.mu.RUnlock()

		text := escapeMarkdownV2("No run completed yet")
		if last != nil {
			text = formatSummary(last, c.topN)
		}
		reply := tgbotapi.NewMessage(msg.Chat.ID, text)
		reply.ParseMode = "MarkdownV2"
		if _, err := c.bot.Send(reply); err != nil {
			logger.Warn("Failed to answer /status: %v", err)
		}
	}
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

// SendError sends a run error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(runErr error) error {
	text := fmt.Sprintf("⚠️ *Price update failed*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Price updates recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

func (c *Client) Name() string { return "telegram" }

// Publish sends the run summary and remembers it for /status.
func (c *Client) Publish(_ context.Context, report *models.RunReport) error {
	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	return c.sendMarkdownV2(formatSummary(report, c.topN))
}

// formatSummary formats a run report into a Telegram MarkdownV2 message listing the
// topN items by history average.
func formatSummary(report *models.RunReport, topN int) string {
	var b strings.Builder
	b.WriteString("📊 *Price update*\n\n")

	if !report.FinishedAt.IsZero() {
		dateStr := escapeMarkdownV2(report.FinishedAt.UTC().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "📅 %s UTC\n", dateStr)
	}
	fmt.Fprintf(&b, "🗂 Slot %d of %d\n", report.Slot+1, report.Periods)
	fmt.Fprintf(&b, "✅ %d priced, ⏭ %d skipped, ❌ %d failed\n",
		report.Priced, report.Skipped, len(report.Failed))

	ids := make([]string, 0, len(report.Averages))
	for id := range report.Averages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ai, aj := report.Averages[ids[i]], report.Averages[ids[j]]
		if ai != aj {
			return ai > aj
		}
		return ids[i] < ids[j]
	})
	if topN >= 0 && len(ids) > topN {
		ids = ids[:topN]
	}
	if len(ids) == 0 {
		return b.String()
	}

	b.WriteString("\n*Top items by average*\n")
	for i, id := range ids {
		line := fmt.Sprintf("%d\\. %s: %s", i+1, escapeMarkdownV2(id),
			escapeMarkdownV2(humanize.Comma(report.Averages[id])))
		if latest, ok := report.Snapshot.Prices[id]; ok {
			line += fmt.Sprintf(" \\(latest %s\\)", escapeMarkdownV2(humanize.Comma(latest)))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
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
