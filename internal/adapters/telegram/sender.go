package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// Sender доставляет посты в каналы и личные уведомления через Bot API.
// Канал задаётся как "@username" либо числовым идентификатором чата.
type Sender struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

var (
	_ domain.ChannelSender = (*Sender)(nil)
	_ domain.Notifier      = (*Sender)(nil)
)

// NewSender создаёт адаптер Bot API.
func NewSender(bot *tgbotapi.BotAPI, logger zerolog.Logger) *Sender {
	return &Sender{bot: bot, log: logger}
}

// SendToChannel публикует HTML-текст в канал, разбивая длинные сообщения.
func (s *Sender) SendToChannel(ctx context.Context, channelID, html string) error {
	for _, part := range SplitMessage(html) {
		msg, err := buildChannelMessage(channelID, part)
		if err != nil {
			return err
		}
		msg.ParseMode = tgbotapi.ModeHTML

		start := time.Now()
		_, err = s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "send_channel", channelID, start, err)
		if err != nil {
			return mapSendError(err)
		}
	}
	return nil
}

// CheckChannelAccess проверяет существование канала и права бота в нём.
func (s *Sender) CheckChannelAccess(ctx context.Context, channelID string) (domain.ChannelAccess, error) {
	chatCfg, err := chatConfig(channelID)
	if err != nil {
		return domain.ChannelAccess{}, err
	}

	start := time.Now()
	chat, err := s.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: chatCfg})
	metrics.ObserveNetworkRequest("telegram", "get_chat", channelID, start, err)
	if err != nil {
		return domain.ChannelAccess{}, mapSendError(err)
	}

	access := domain.ChannelAccess{Title: chat.Title, Type: chat.Type}

	start = time.Now()
	member, err := s.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID:             chatCfg.ChatID,
			SuperGroupUsername: chatCfg.SuperGroupUsername,
			UserID:             s.bot.Self.ID,
		},
	})
	metrics.ObserveNetworkRequest("telegram", "get_chat_member", channelID, start, err)
	if err != nil {
		return access, mapSendError(err)
	}

	access.IsAdmin = member.Status == "administrator" || member.Status == "creator"
	access.CanPost = member.Status == "creator" || member.CanPostMessages
	return access, nil
}

// Notify отправляет личное сообщение пользователю.
func (s *Sender) Notify(ctx context.Context, tgUserID int64, text string) error {
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(tgUserID, part)
		msg.ParseMode = tgbotapi.ModeHTML

		start := time.Now()
		_, err := s.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram", "notify", "user", start, err)
		if err != nil {
			return fmt.Errorf("notify user %d: %w", tgUserID, err)
		}
	}
	return nil
}

func buildChannelMessage(channelID, text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(channelID, "@") {
		return tgbotapi.NewMessageToChannel(channelID, text), nil
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
	}
	return tgbotapi.NewMessage(id, text), nil
}

func chatConfig(channelID string) (tgbotapi.ChatConfig, error) {
	if strings.HasPrefix(channelID, "@") {
		return tgbotapi.ChatConfig{SuperGroupUsername: channelID}, nil
	}
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return tgbotapi.ChatConfig{}, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
	}
	return tgbotapi.ChatConfig{ChatID: id}, nil
}

// mapSendError переводит ответы Bot API в доменные ошибки.
func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "chat not found") || strings.Contains(text, "username not found"):
		return fmt.Errorf("%w: %v", domain.ErrChannelNotFound, err)
	case strings.Contains(text, "not enough rights") ||
		strings.Contains(text, "have no rights") ||
		strings.Contains(text, "bot was kicked") ||
		strings.Contains(text, "forbidden"):
		return fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	default:
		return err
	}
}
