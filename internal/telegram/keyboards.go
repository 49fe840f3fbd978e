package telegram

import "github.com/go-telegram/bot/models"

// GenerationChoiceKeyboard lets the user pick what to render from a prompt
func GenerationChoiceKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "txt-to-vid", CallbackData: "prompt_vid"},
				{Text: "txt-to-img", CallbackData: "prompt_img"},
			},
		},
	}
}

// ModeKeyboard offers the two generation entry points
func ModeKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "txt-to-vid", CallbackData: "txt_to_vid"},
				{Text: "txt-to-img", CallbackData: "txt_to_img"},
			},
		},
	}
}

// Sample prompts offered by /prompts
var samplePrompts = []string{
	"a futuristic drone race at sunset on the planet mars",
	"two golden retrievers podcasting on top of a mountain",
	"a man BASE jumping over tropical hawaii waters. His pet macaw flies alongside him",
	"an adorable happy otter confidently stands on a surfboard wearing a yellow lifejacket, riding along turquoise tropical waters near lush tropical islands, 3D digital render art style.",
	"a flock of paper airplanes flutters through a dense jungle, weaving around trees as if they were migrating birds.",
	"a beautiful silhouette animation shows a wolf howling at the moon, feeling lonely, until it finds its pack.",
	"a corgi vlogging itself in tropical Maui.",
	"A super car driving through city streets at night with heavy rain everywhere, shot from behind the car as it drives",
	"a tortoise whose body is made of glass, with cracks that have been repaired using kintsugi, is walking on a black sand beach at sunset",
	"F1 Race Through San Francisco",
	"A timelapse closeup of a 3D printer printing a small red cube in an office with dim lighting",
	"A scuba diver discovers a hidden futuristic shipwreck, with cybernetic marine life and advanced alien technology",
	"new York City submerged like Atlantis. Fish, whales, sea turtles and sharks swim through the streets of New York.",
	"tour of an art gallery with many beautiful works of art in different styles.",
	"a Chinese Lunar New Year celebration video with Chinese Dragon.",
	"a Samoyed and a Golden Retriever dog are playfully romping through a futuristic neon city at night. The neon lights emitted from the nearby buildings glistens off of their fur.",
}

// PromptsKeyboard returns a one-time reply keyboard with sample prompts
func PromptsKeyboard() *models.ReplyKeyboardMarkup {
	rows := make([][]models.KeyboardButton, 0, len(samplePrompts))
	for _, p := range samplePrompts {
		rows = append(rows, []models.KeyboardButton{{Text: p}})
	}

	return &models.ReplyKeyboardMarkup{
		Keyboard:        rows,
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}
