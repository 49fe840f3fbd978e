package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/soraai/credits-bot/internal/config"
	"github.com/soraai/credits-bot/internal/payment"
	"github.com/soraai/credits-bot/internal/storage"
)

// Submitter starts an asynchronous payment verification task
type Submitter interface {
	Submit(ctx context.Context, userID int64, walletAddress, txnHash string) (*storage.PendingTransaction, error)
}

// Generator produces media artifacts from prompts
type Generator interface {
	TextToImage(ctx context.Context, prompt string) ([]byte, error)
	ImageToVideo(ctx context.Context, image []byte) (string, error)
	FetchVideo(ctx context.Context, generationID string) ([]byte, error)
}

// Bot wraps the telegram bot with handlers
type Bot struct {
	bot     *bot.Bot
	cfg     *config.Config
	storage *storage.Storage
	monitor Submitter
	media   Generator
	states  *StateManager
	log     *slog.Logger
}

// New creates a new telegram bot
func New(cfg *config.Config, store *storage.Storage, monitor Submitter, media Generator, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:     cfg,
		storage: store,
		monitor: monitor,
		media:   media,
		states:  NewStateManager(),
		log:     log,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/balance", bot.MatchTypeExact, b.balanceHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, b.helpHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/prompts", bot.MatchTypeExact, b.promptsHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/buy", bot.MatchTypeExact, b.buyHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, b.cancelHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/txt_to_img", bot.MatchTypeExact, b.imageModeHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/txt_to_vid", bot.MatchTypeExact, b.videoModeHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// --- Command handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	created := false
	if _, err := b.storage.GetAccount(userID); err == storage.ErrNotFound {
		created = true
	}

	_, err := b.storage.CreateAccount(userID, update.Message.From.FirstName, update.Message.From.Username)
	if err != nil {
		b.log.Error("create account", "error", err, "user_id", userID)
		b.sendMessage(ctx, update.Message.Chat.ID, "Something went wrong, please try again.", nil)
		return
	}

	if created {
		b.sendMessage(ctx, update.Message.Chat.ID, "✅ Account created successfully.", nil)
	}

	text := fmt.Sprintf(
		"<b>Sora AI bot</b> is powered by token $SORAAI\n\n"+
			"Sora AI transforms descriptive text prompts into realistic video scenes and images.\n\n"+
			"Steps to generate:\n"+
			"1. Enter your prompt or pick one using /prompts\n"+
			"2. Choose txt-to-vid or txt-to-img\n"+
			"3. Let the magic begin 🪄\n\n"+
			"Initial credits: %d\n"+
			"txt-to-vid consumes %d credits\n"+
			"txt-to-img consumes %d credit\n\n"+
			"Credit points can be purchased with $SORAAI (use /buy for instructions)",
		b.cfg.InitialCredits, b.cfg.VideoCost, b.cfg.ImageCost,
	)
	b.sendMessage(ctx, update.Message.Chat.ID, text, ModeKeyboard())
}

func (b *Bot) balanceHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	account, err := b.storage.GetAccount(update.Message.From.ID)
	if err != nil {
		b.sendMessage(ctx, update.Message.Chat.ID, "Please use /start to create an account first.", nil)
		return
	}

	if account.CreditBalance > 0 {
		b.sendMessage(ctx, update.Message.Chat.ID,
			fmt.Sprintf("Your current balance is <b>%d</b>.", account.CreditBalance), nil)
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		"Your free credit points have exhausted, please use /buy to buy more credits.", nil)
}

func (b *Bot) helpHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	text := fmt.Sprintf(
		"Steps to generate video scenes/images:\n\n"+
			"1. Choose \"txt-to-vid\" or \"txt-to-img\"\n"+
			"2. Enter the text prompt (/prompts for examples)\n"+
			"3. Let the magic begin 🪄\n\n"+
			"Processing time:\n"+
			"txt-to-vid: 2-3 min\n"+
			"txt-to-img: 20-30 sec\n\n"+
			"Initial free credits: %d\n"+
			"txt-to-vid: %d credit pts\n"+
			"txt-to-img: %d credit pt",
		b.cfg.InitialCredits, b.cfg.VideoCost, b.cfg.ImageCost,
	)
	b.sendMessage(ctx, update.Message.Chat.ID, text, nil)
}

func (b *Bot) promptsHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        "Here are some prompts for you to try:",
		ReplyMarkup: PromptsKeyboard(),
	})
	if err != nil {
		b.log.Error("send prompts keyboard", "error", err)
	}
}

func (b *Bot) cancelHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	b.states.Clear(update.Message.From.ID)

	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      update.Message.Chat.ID,
		Text:        "The operation has been cancelled.",
		ReplyMarkup: &models.ReplyKeyboardRemove{RemoveKeyboard: true},
	})
	if err != nil {
		b.log.Error("send cancel message", "error", err)
	}
}

func (b *Bot) imageModeHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.enterMode(ctx, update.Message.From.ID, update.Message.Chat.ID, ModeImage)
}

func (b *Bot) videoModeHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.enterMode(ctx, update.Message.From.ID, update.Message.Chat.ID, ModeVideo)
}

// --- Buy flow ---

func (b *Bot) buyHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	userID := update.Message.From.ID
	account, err := b.storage.GetAccount(userID)
	if err != nil {
		b.sendMessage(ctx, update.Message.Chat.ID, "Please use /start to create an account first.", nil)
		return
	}

	tiers := "Purchase credit points with $SORAAI:\n" +
		"10 pts - 1000 $SORAAI\n" +
		"21 pts - 2000 $SORAAI\n" +
		"55 pts - 5000 $SORAAI\n" +
		"120 pts - 10000 $SORAAI\n" +
		"500 pts - 25000 $SORAAI"
	b.sendMessage(ctx, update.Message.Chat.ID, tiers, nil)

	b.states.Set(userID, StateWaitWalletAddr, nil)

	if account.WalletAddress != "" {
		b.sendMessage(ctx, update.Message.Chat.ID,
			fmt.Sprintf("Current wallet address: <code>%s</code>\n"+
				"Reply with <b>yes</b> to keep it, or send a new address to update.\n"+
				"Or use /cancel to cancel the operation.", account.WalletAddress),
			nil,
		)
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID,
		"Please send your wallet address to bond with your account.\nOr use /cancel to cancel the operation.", nil)
}

func (b *Bot) handleWaitWalletAddr(ctx context.Context, msg *models.Message, text string) {
	userID := msg.From.ID

	account, err := b.storage.GetAccount(userID)
	if err != nil {
		b.states.Clear(userID)
		b.sendMessage(ctx, msg.Chat.ID, "Please use /start to create an account first.", nil)
		return
	}

	walletAddress := account.WalletAddress
	if !strings.EqualFold(text, "yes") {
		if !common.IsHexAddress(text) {
			b.sendMessage(ctx, msg.Chat.ID,
				"❌ That does not look like a wallet address. Try again or use /cancel.", nil)
			return
		}

		walletAddress = common.HexToAddress(text).Hex()
		if err := b.storage.SetWalletAddress(userID, walletAddress); err != nil {
			b.log.Error("set wallet address", "error", err, "user_id", userID)
			b.sendMessage(ctx, msg.Chat.ID, "Something went wrong, please try again.", nil)
			return
		}
		b.sendMessage(ctx, msg.Chat.ID,
			fmt.Sprintf("Updated wallet address to <code>%s</code>", walletAddress), nil)
	} else if walletAddress == "" {
		b.sendMessage(ctx, msg.Chat.ID,
			"No wallet address on record yet, please send one.", nil)
		return
	}

	b.states.Set(userID, StateWaitTxnHash, map[string]interface{}{
		"wallet_address": walletAddress,
	})

	b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("Send the tokens to this address: <code>%s</code>\n"+
			"Then send your transaction's txn hash to confirm the deposit.\n"+
			"Credit will be released once the confirmation is done.\n"+
			"Or use /cancel to cancel the operation.", b.cfg.CollectionAddr),
		nil,
	)
}

func (b *Bot) handleWaitTxnHash(ctx context.Context, msg *models.Message, text string, state *UserState) {
	userID := msg.From.ID

	walletAddress, _ := state.Data["wallet_address"].(string)
	if walletAddress == "" {
		b.states.Clear(userID)
		b.sendMessage(ctx, msg.Chat.ID,
			"Wallet address not found. Please start over with /buy.", nil)
		return
	}

	_, err := b.monitor.Submit(ctx, userID, walletAddress, text)
	switch err {
	case nil:
	case payment.ErrInvalidTxnHash:
		b.sendMessage(ctx, msg.Chat.ID,
			"❌ That does not look like a transaction hash (expected 0x + 64 hex characters). Try again or use /cancel.", nil)
		return
	case payment.ErrQueueFull:
		b.sendMessage(ctx, msg.Chat.ID,
			"We are busy verifying other transactions right now, please resubmit in a minute.", nil)
		return
	default:
		b.log.Error("submit transaction", "error", err, "user_id", userID)
		b.sendMessage(ctx, msg.Chat.ID, "Something went wrong, please try again.", nil)
		return
	}

	b.states.Clear(userID)
	b.sendMessage(ctx, msg.Chat.ID,
		"Transaction hash received.\nWe are now verifying your transaction.\n"+
			"You will be notified once the verification is complete.", nil)
}

// --- Default and callback handlers ---

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	userID := update.Message.From.ID
	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(userID)
	if state != nil {
		switch state.State {
		case StateWaitWalletAddr:
			b.handleWaitWalletAddr(ctx, update.Message, text)
			return
		case StateWaitTxnHash:
			b.handleWaitTxnHash(ctx, update.Message, text, state)
			return
		case StateWaitPrompt:
			mode, _ := state.Data["mode"].(string)
			b.states.Clear(userID)
			b.startGeneration(ctx, update.Message.Chat.ID, userID, text, mode)
			return
		}
	}

	// Free-form text is a generation prompt; ask which artifact to render.
	b.states.Set(userID, "", map[string]interface{}{"prompt": text})
	b.sendMessage(ctx, update.Message.Chat.ID,
		fmt.Sprintf("Prompt received:\n\n<i>%s</i>\n\nChoose txt-to-img or txt-to-vid", text),
		GenerationChoiceKeyboard(),
	)
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	userID := cb.From.ID

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	chatID := userID
	if cb.Message.Message != nil {
		chatID = cb.Message.Message.Chat.ID
	}

	switch cb.Data {
	case "txt_to_img":
		b.enterMode(ctx, userID, chatID, ModeImage)
	case "txt_to_vid":
		b.enterMode(ctx, userID, chatID, ModeVideo)
	case "prompt_img", "prompt_vid":
		mode := ModeImage
		if cb.Data == "prompt_vid" {
			mode = ModeVideo
		}

		state := b.states.Get(userID)
		prompt := ""
		if state != nil {
			prompt, _ = state.Data["prompt"].(string)
		}
		if prompt == "" {
			b.sendMessage(ctx, chatID, "Please send a text prompt first.", nil)
			return
		}

		b.states.Clear(userID)
		b.startGeneration(ctx, chatID, userID, prompt, mode)
	default:
		b.log.Warn("unknown callback", "data", cb.Data, "user_id", userID)
	}
}

// enterMode checks the credit balance for a generation mode and asks for a
// prompt
func (b *Bot) enterMode(ctx context.Context, userID, chatID int64, mode string) {
	account, err := b.storage.GetAccount(userID)
	if err != nil {
		b.sendMessage(ctx, chatID, "Please use /start to create an account first.", nil)
		return
	}

	cost := b.cfg.ImageCost
	artifact := "an image"
	if mode == ModeVideo {
		cost = b.cfg.VideoCost
		artifact = "a video"
	}

	if account.CreditBalance < cost {
		b.sendMessage(ctx, chatID,
			fmt.Sprintf("You don't have enough credit to generate %s. Use /buy to top up.", artifact), nil)
		return
	}

	b.states.Set(userID, StateWaitPrompt, map[string]interface{}{"mode": mode})
	b.sendMessage(ctx, chatID,
		fmt.Sprintf("Please enter a text prompt to generate %s.\nOr use /cancel to cancel the operation.", artifact), nil)
}

// --- Helpers ---

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

// SendNotification sends a notification message to a user
func (b *Bot) SendNotification(ctx context.Context, userID int64, text string) error {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    userID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}
