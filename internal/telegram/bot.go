package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"meal-plan-assistant/internal/app"
	"meal-plan-assistant/internal/command"
	"meal-plan-assistant/internal/config"
	"meal-plan-assistant/internal/metrics"
	"meal-plan-assistant/internal/planner"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `Tell me how to change your meal plan, for example "move the eggs to lunch" or "replace the rice with something lighter".

/plan - show the plan for the current day
/day YYYY-MM-DD - switch to another day
/undo - revert the last change`

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Service is the plan engine the bot talks to.
type Service interface {
	Plan(ctx context.Context, owner, date string) (planner.DayPlan, error)
	Chat(ctx context.Context, owner, date, text string) (app.Result, error)
	Run(ctx context.Context, owner, date string, action command.Action) app.Result
	Undo(ctx context.Context, owner string) (app.Result, error)
	DiscardSwap(ctx context.Context, owner string) (app.Result, error)
}

// MetricsReader reports assistant usage.
type MetricsReader interface {
	GetDailyUsage(ctx context.Context, days int) ([]metrics.DailyUsage, error)
}

// Bot is the Telegram chat front end of the plan assistant.
type Bot struct {
	api          Sender
	service      Service
	metricsStore MetricsReader
	cfg          *config.Config
	now          func() time.Time

	mu   sync.Mutex
	days map[string]string
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, service Service, metricsStore MetricsReader) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return NewBotWithAPI(bot, cfg, service, metricsStore), nil
}

// NewBotWithAPI creates a Bot over an existing API client.
func NewBotWithAPI(api Sender, cfg *config.Config, service Service, metricsStore MetricsReader) *Bot {
	return &Bot{
		api:          api,
		service:      service,
		metricsStore: metricsStore,
		cfg:          cfg,
		now:          time.Now,
		days:         make(map[string]string),
	}
}

// Webhook returns the handler for Telegram updates. Updates are processed in
// the background so Telegram gets its answer right away.
func (b *Bot) Webhook() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			log.Printf("Error parsing update: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		go b.HandleUpdate(context.Background(), update)
	})
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var from *tgbotapi.User
	switch {
	case update.CallbackQuery != nil:
		from = update.CallbackQuery.From
	case update.Message != nil:
		from = update.Message.From
	}
	if from == nil {
		return
	}

	if !b.cfg.IsAllowedUser(from.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", from.ID, from.UserName)
		return
	}

	if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}
	b.processMessage(ctx, update.Message)
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	owner := ownerID(msg.From.ID)
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start", "help":
		b.send(tgbotapi.NewMessage(chatID, helpText))
		return
	case "metrics":
		b.handleMetricsRequest(ctx, msg)
		return
	case "undo":
		res, err := b.service.Undo(ctx, owner)
		text := res.Text
		if err != nil {
			text = app.UserMessage(err)
		}
		b.send(tgbotapi.NewMessage(chatID, "↩️ "+text))
		return
	case "day":
		date := strings.TrimSpace(msg.CommandArguments())
		if err := planner.ValidateDate(date); err != nil {
			b.send(tgbotapi.NewMessage(chatID, app.UserMessage(err)))
			return
		}
		b.setDay(owner, date)
		b.sendPlan(ctx, chatID, owner, date)
		return
	case "plan":
		b.sendPlan(ctx, chatID, owner, b.day(owner))
		return
	}

	if msg.Text == "" {
		return
	}
	b.handleChatRequest(ctx, msg)
}

func (b *Bot) handleChatRequest(ctx context.Context, msg *tgbotapi.Message) {
	owner := ownerID(msg.From.ID)
	date := b.day(owner)

	sentMsg, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "🧑‍🍳 Thinking..."))
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	log.Printf("Chat request from %s for %s: %s", owner, date, msg.Text)
	res, err := b.service.Chat(ctx, owner, date, msg.Text)
	if err != nil {
		log.Printf("Error handling chat for %s: %v", owner, err)
	}

	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, sentMsg.MessageID, resultText(res))
	if len(res.Options) > 0 {
		keyboard := optionsKeyboard(res)
		edit.ReplyMarkup = &keyboard
	}
	b.send(edit)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	owner := ownerID(query.From.ID)

	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		log.Printf("Failed to answer callback: %v", err)
	}

	action, arg, ok := strings.Cut(query.Data, "|")
	if !ok || query.Message == nil {
		return
	}

	var res app.Result
	switch action {
	case "pick":
		ordinal, err := strconv.Atoi(arg)
		if err != nil {
			return
		}
		res = b.service.Run(ctx, owner, b.day(owner), command.ApplySwapOption{Option: ordinal})
	case "cancel":
		var err error
		res, err = b.service.DiscardSwap(ctx, owner)
		if err != nil {
			res = app.Result{Text: app.UserMessage(err), Declined: true}
		}
	default:
		return
	}
	b.send(tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, resultText(res)))
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "⛔ Access Denied: Admin only."))
		return
	}
	if b.metricsStore == nil {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Metrics are not enabled."))
		return
	}

	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		log.Printf("Error fetching metrics: %v", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error fetching metrics."))
		return
	}
	health := metrics.GetSysHealth(filepath.Dir(b.cfg.DatabasePath))
	b.send(tgbotapi.NewMessage(msg.Chat.ID, "📊 "+metrics.Report(usage, health)))
}

func (b *Bot) sendPlan(ctx context.Context, chatID int64, owner, date string) {
	plan, err := b.service.Plan(ctx, owner, date)
	if err != nil {
		log.Printf("Error loading plan for %s/%s: %v", owner, date, err)
		b.send(tgbotapi.NewMessage(chatID, app.UserMessage(err)))
		return
	}
	msg := tgbotapi.NewMessage(chatID, formatPlanMarkdown(plan))
	msg.ParseMode = "Markdown"
	b.send(msg)
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		log.Printf("Failed to send telegram message: %v", err)
	}
}

func (b *Bot) day(owner string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.days[owner]; ok {
		return d
	}
	return b.now().Format(planner.DateLayout)
}

func (b *Bot) setDay(owner, date string) {
	b.mu.Lock()
	b.days[owner] = date
	b.mu.Unlock()
}

func ownerID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func resultText(res app.Result) string {
	text := res.Text
	if text == "" {
		text = "Done."
	}
	switch {
	case res.Declined:
		return "⚠️ " + text
	case len(res.Plans) > 0:
		return "✅ " + text
	}
	return text
}

// optionsKeyboard renders one button per substitute and a cancel button.
// Callback data is limited to 64 bytes so only the ordinal is carried.
func optionsKeyboard(res app.Result) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, opt := range res.Options {
		label := fmt.Sprintf("%d. %s", i+1, opt.Label)
		if len([]rune(label)) > 60 {
			label = string([]rune(label)[:59]) + "…"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("pick|%d", i+1)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Cancel", "cancel|"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func formatPlanMarkdown(plan planner.DayPlan) string {
	var pb strings.Builder
	pb.WriteString(fmt.Sprintf("📅 *Meal Plan for %s*\n", plan.Date))

	for _, mt := range planner.MealTypes {
		pb.WriteString(fmt.Sprintf("\n*%s*\n", strings.ToUpper(string(mt[:1]))+string(mt[1:])))
		items := plan.Meal(mt)
		if len(items) == 0 {
			pb.WriteString("_Nothing planned_\n")
			continue
		}
		for i, item := range items {
			pb.WriteString(fmt.Sprintf("%d. %s", i+1, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, item.Food.Name)))
			if item.Quantity > 0 {
				pb.WriteString(fmt.Sprintf(" (%s %s)", strconv.FormatFloat(item.Quantity, 'f', -1, 64),
					tgbotapi.EscapeText(tgbotapi.ModeMarkdown, item.Unit)))
			}
			pb.WriteString("\n")
		}
	}
	return pb.String()
}
