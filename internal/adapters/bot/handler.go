package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/adapters/render"
	"news-autopost-bot/internal/adapters/telegram"
	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
	"news-autopost-bot/internal/usecase/autopost"
	"news-autopost-bot/internal/usecase/schedule"
	"news-autopost-bot/internal/usecase/subscription"
	"news-autopost-bot/internal/usecase/testpost"
)

// Handler обслуживает апдейты бота.
type Handler struct {
	bot        *tgbotapi.BotAPI
	log        zerolog.Logger
	users      domain.UserRepo
	subsUC     *subscription.Service
	autopostUC *autopost.Service
	oneshotUC  *schedule.OneShot
	testpostUC *testpost.Service
	jobs       domain.PostJobQueue
}

// NewHandler создаёт обработчик.
func NewHandler(
	botAPI *tgbotapi.BotAPI,
	log zerolog.Logger,
	users domain.UserRepo,
	subsUC *subscription.Service,
	autopostUC *autopost.Service,
	oneshotUC *schedule.OneShot,
	testpostUC *testpost.Service,
	jobs domain.PostJobQueue,
) *Handler {
	return &Handler{
		bot:        botAPI,
		log:        log,
		users:      users,
		subsUC:     subsUC,
		autopostUC: autopostUC,
		oneshotUC:  oneshotUC,
		testpostUC: testpostUC,
		jobs:       jobs,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(msg)
	case strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, helpText)
	case strings.HasPrefix(text, "/subscribe"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/subscribe"))
		h.handleSubscribe(msg, payload)
	case strings.HasPrefix(text, "/profile"):
		h.handleProfile(msg)
	case strings.HasPrefix(text, "/autopost_off"):
		h.handleAutopostOff(msg)
	case strings.HasPrefix(text, "/autopost"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/autopost"))
		h.handleAutopost(ctx, msg, payload)
	case strings.HasPrefix(text, "/sendnow"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/sendnow"))
		h.handleSendNow(ctx, msg, payload)
	case strings.HasPrefix(text, "/schedule"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/schedule"))
		h.handleSchedule(ctx, msg, payload)
	case strings.HasPrefix(text, "/testpost"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/testpost"))
		h.handleTestPost(ctx, msg, payload)
	case strings.HasPrefix(text, "/check"):
		payload := strings.TrimSpace(strings.TrimPrefix(text, "/check"))
		h.handleCheck(ctx, msg, payload)
	default:
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /help")
	}
}

var helpText = `Доступные команды:
/subscribe — тарифы и оформление подписки
/profile — подписка и настройки автопостинга
/autopost @канал1,@канал2 категория1,категория2 стиль частота [будни] — настроить автопостинг
/autopost_off — выключить автопостинг
/sendnow @канал категория стиль — опубликовать пост сейчас
/schedule ЧЧ:ММ @канал категория стиль — разовая публикация на время
/testpost @канал категория стиль — тестовый пост (раз в сутки без подписки)
/check @канал — проверить права бота в канале

Категории: ` + strings.Join(render.Categories(), ", ") + `
Стили: ` + strings.Join(render.Styles(), ", ") + `
Частота: 1 (09:00), 2 (09:00, 21:00), 3 (09:00, 15:00, 21:00)`

func (h *Handler) handleStart(msg *tgbotapi.Message) {
	user, err := h.users.UpsertByTGID(msg.From.ID, msg.From.UserName, msg.From.LanguageCode)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось сохранить пользователя")
		h.reply(msg.Chat.ID, "Произошла ошибка, попробуйте позже")
		return
	}
	h.log.Info().Int64("user_id", user.ID).Msg("bot: пользователь запустил бота")
	h.reply(msg.Chat.ID, "👋 Привет! Я публикую новости в ваши каналы по расписанию.\n\n"+helpText)
}

func (h *Handler) handleSubscribe(msg *tgbotapi.Message, payload string) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}
	if payload == "" {
		var b strings.Builder
		b.WriteString("💫 Тарифы подписки:\n")
		for _, days := range []int{7, 14, 30} {
			b.WriteString(fmt.Sprintf("• %d дней — %d ⭐\n", days, domain.PlanPrices[days]))
		}
		b.WriteString("\nДля оформления: /subscribe <дней>")
		h.reply(msg.Chat.ID, b.String())
		return
	}
	days, err := strconv.Atoi(payload)
	if err != nil {
		h.reply(msg.Chat.ID, "Укажите число дней: /subscribe 7")
		return
	}
	sub, err := h.subsUC.Grant(user.ID, days)
	if errors.Is(err, subscription.ErrUnknownPlan) {
		h.reply(msg.Chat.ID, "Доступны тарифы на 7, 14 и 30 дней")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось выдать подписку")
		h.reply(msg.Chat.ID, "Произошла ошибка, попробуйте позже")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Подписка на %d дней активна до %s", sub.PlanDays, sub.ExpiresAt.Format("02.01.2006 15:04")))
}

func (h *Handler) handleProfile(msg *tgbotapi.Message) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}

	var b strings.Builder
	b.WriteString("👤 Профиль\n\n")
	sub, err := h.subsUC.Active(user.ID)
	if err == nil {
		b.WriteString(fmt.Sprintf("Подписка: активна до %s\n", sub.ExpiresAt.Format("02.01.2006 15:04")))
	} else {
		b.WriteString("Подписка: не активна\n")
	}

	stats, err := h.autopostUC.Stats(user.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось получить статистику")
	} else if stats.TotalConfigs == 0 {
		b.WriteString("Автопостинг: не настроен")
	} else {
		b.WriteString(fmt.Sprintf("Автопостинг: %d настроек, %d каналов, %d категорий, %d постов в день",
			stats.TotalConfigs, stats.UniqueChannels, stats.UniqueCategories, stats.TotalPostsPerDay))
	}
	h.reply(msg.Chat.ID, b.String())
}

// handleAutopost разбирает "@ch1,@ch2 tech,business formal 2 [будни]".
func (h *Handler) handleAutopost(ctx context.Context, msg *tgbotapi.Message, payload string) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}
	fields := strings.Fields(payload)
	if len(fields) < 4 {
		h.reply(msg.Chat.ID, "Формат: /autopost @канал1,@канал2 категория1,категория2 стиль частота [будни]")
		return
	}
	channels := splitList(fields[0])
	categories := splitList(fields[1])
	style := fields[2]
	postsPerDay, err := strconv.Atoi(fields[3])
	if err != nil {
		h.reply(msg.Chat.ID, "Частота публикаций должна быть числом от 1 до 3")
		return
	}
	weekdaysOnly := len(fields) > 4 && (fields[4] == "будни" || fields[4] == "weekdays")

	times, err := domain.SlotsForFrequency(postsPerDay)
	if err != nil {
		h.reply(msg.Chat.ID, "Частота публикаций должна быть от 1 до 3")
		return
	}

	for _, channel := range channels {
		if _, err := h.autopostUC.ValidateChannel(ctx, channel); err != nil {
			h.replyChannelError(msg.Chat.ID, channel, err)
			return
		}
	}

	if err := h.autopostUC.SaveConfigs(user.ID, channels, categories, style, postsPerDay, times, weekdaysOnly); err != nil {
		h.reply(msg.Chat.ID, "Не удалось сохранить настройки: "+err.Error())
		return
	}
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, render.CategoryName(category))
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Автопостинг настроен: %d каналов, категории %s, стиль %s, публикации в %s",
		len(channels), strings.Join(names, ", "), render.StyleName(style), strings.Join(times, ", ")))
}

func (h *Handler) handleAutopostOff(msg *tgbotapi.Message) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}
	if err := h.autopostUC.Disable(user.ID); err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось выключить автопостинг")
		h.reply(msg.Chat.ID, "Произошла ошибка, попробуйте позже")
		return
	}
	h.reply(msg.Chat.ID, "⏸ Автопостинг выключен")
}

func (h *Handler) handleSendNow(ctx context.Context, msg *tgbotapi.Message, payload string) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		h.reply(msg.Chat.ID, "Формат: /sendnow @канал категория стиль")
		return
	}
	job := domain.PostJob{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		ChannelID:   fields[0],
		Category:    fields[1],
		Style:       fields[2],
		Cause:       domain.PostCauseManual,
		RequestedAt: time.Now(),
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось поставить задачу в очередь")
		h.reply(msg.Chat.ID, "Произошла ошибка, попробуйте позже")
		return
	}
	h.reply(msg.Chat.ID, "📤 Пост поставлен в очередь, результат придёт отдельным сообщением")
}

func (h *Handler) handleSchedule(ctx context.Context, msg *tgbotapi.Message, payload string) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}
	fields := strings.Fields(payload)
	if len(fields) != 4 {
		h.reply(msg.Chat.ID, "Формат: /schedule ЧЧ:ММ @канал категория стиль")
		return
	}
	fireAt, countdown, err := h.oneshotUC.Schedule(ctx, user.ID, fields[1], fields[2], fields[3], fields[0])
	var badTime *schedule.ErrBadTime
	if errors.As(err, &badTime) {
		h.reply(msg.Chat.ID, "Время указывается в формате ЧЧ:ММ, например 18:30")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось запланировать публикацию")
		h.reply(msg.Chat.ID, "Произошла ошибка, попробуйте позже")
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("⏰ Публикация запланирована на %s (через %s)",
		fireAt.Format("02.01.2006 15:04"), formatCountdown(countdown)))
}

func (h *Handler) handleTestPost(ctx context.Context, msg *tgbotapi.Message, payload string) {
	user, err := h.users.GetByTGID(msg.From.ID)
	if err != nil {
		h.reply(msg.Chat.ID, "Сначала запустите бота командой /start")
		return
	}
	fields := strings.Fields(payload)
	if len(fields) != 3 {
		h.reply(msg.Chat.ID, "Формат: /testpost @канал категория стиль")
		return
	}
	err = h.testpostUC.SendTest(ctx, user.ID, fields[0], fields[1], fields[2])
	var rateErr *testpost.RateLimitedError
	switch {
	case errors.As(err, &rateErr):
		h.reply(msg.Chat.ID, "⏳ "+rateErr.Error())
	case err != nil:
		h.replyChannelError(msg.Chat.ID, fields[0], err)
	default:
		h.reply(msg.Chat.ID, "✅ Тестовый пост отправлен в "+fields[0])
	}
}

func (h *Handler) handleCheck(ctx context.Context, msg *tgbotapi.Message, payload string) {
	if payload == "" {
		h.reply(msg.Chat.ID, "Формат: /check @канал")
		return
	}
	access, err := h.autopostUC.ValidateChannel(ctx, payload)
	if err != nil {
		h.replyChannelError(msg.Chat.ID, payload, err)
		return
	}
	h.reply(msg.Chat.ID, fmt.Sprintf("✅ Канал «%s» доступен, бот может публиковать посты", access.Title))
}

func (h *Handler) replyChannelError(chatID int64, channel string, err error) {
	switch {
	case errors.Is(err, domain.ErrChannelNotFound):
		h.reply(chatID, "❌ Канал "+channel+" не найден. Проверьте имя канала.")
	case errors.Is(err, domain.ErrForbidden):
		h.reply(chatID, "❌ У бота нет прав на публикацию в "+channel+". Добавьте бота администратором с правом публикации.")
	case errors.Is(err, domain.ErrNoNews):
		h.reply(chatID, "⚠️ Не удалось подобрать новость, попробуйте позже или смените категорию.")
	default:
		h.log.Error().Err(err).Str("channel", channel).Msg("bot: ошибка операции с каналом")
		h.reply(chatID, "Произошла ошибка, попробуйте позже")
	}
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func formatCountdown(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dч %dм", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dм", minutes)
	}
	return fmt.Sprintf("%dс", seconds)
}
