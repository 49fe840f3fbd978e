package telegram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// startGeneration kicks off a media generation in its own goroutine and
// returns immediately. Credits are deducted only after the artifact is
// delivered.
func (b *Bot) startGeneration(ctx context.Context, chatID, userID int64, prompt, mode string) {
	b.sendMessage(ctx, chatID,
		fmt.Sprintf("Generating:\n\n<i>%s</i>\n\nLet the magic begin 🪄", prompt), nil)

	// Detached from the update's lifecycle; generation outlives the handler.
	go b.generate(context.Background(), chatID, userID, prompt, mode)
}

func (b *Bot) generate(ctx context.Context, chatID, userID int64, prompt, mode string) {
	b.log.Info("generation started", "user_id", userID, "mode", mode)

	image, err := b.media.TextToImage(ctx, prompt)
	if err != nil {
		b.log.Error("text to image", "error", err, "user_id", userID)
		b.sendMessage(ctx, chatID, "An error occurred during generation, please try again.", nil)
		return
	}

	if mode == ModeVideo {
		b.deliverVideo(ctx, chatID, userID, image)
		return
	}

	b.sendMessage(ctx, chatID, "Sending image, please wait a few secs...", nil)
	_, err = b.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID: chatID,
		Photo: &models.InputFileUpload{
			Filename: "image.jpg",
			Data:     bytes.NewReader(image),
		},
	})
	if err != nil {
		b.log.Error("send photo", "error", err, "user_id", userID)
		return
	}

	b.deduct(userID, b.cfg.ImageCost)
	b.log.Info("generation complete", "user_id", userID, "mode", mode)
}

func (b *Bot) deliverVideo(ctx context.Context, chatID, userID int64, image []byte) {
	b.sendMessage(ctx, chatID, "Generating video, please wait a few minutes...", nil)

	generationID, err := b.media.ImageToVideo(ctx, image)
	if err != nil {
		b.log.Error("image to video", "error", err, "user_id", userID)
		b.sendMessage(ctx, chatID, "An error occurred during generation, please try again.", nil)
		return
	}

	video, err := b.media.FetchVideo(ctx, generationID)
	if err != nil {
		b.log.Error("fetch video", "error", err, "user_id", userID)
		b.sendMessage(ctx, chatID, "An error occurred during generation, please try again.", nil)
		return
	}

	_, err = b.bot.SendVideo(ctx, &bot.SendVideoParams{
		ChatID: chatID,
		Video: &models.InputFileUpload{
			Filename: "video.mp4",
			Data:     bytes.NewReader(video),
		},
	})
	if err != nil {
		b.log.Error("send video", "error", err, "user_id", userID)
		return
	}

	b.deduct(userID, b.cfg.VideoCost)
	b.log.Info("generation complete", "user_id", userID, "mode", ModeVideo)
}

func (b *Bot) deduct(userID int64, credits int) {
	if err := b.storage.DeductCredits(userID, credits); err != nil {
		b.log.Error("deduct credits", "error", err, "user_id", userID, "credits", credits)
	}
}
