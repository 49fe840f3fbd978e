// Package media is a client for the Stability generation API: text-to-image,
// image-to-video submission, and the result poll/download loop.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	textToImagePath  = "/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image"
	imageToVideoPath = "/v2alpha/generation/image-to-video"

	videoPollInterval = 5 * time.Second
	videoMaxPolls     = 120
)

// The negative prompt weeds out the usual SDXL anatomy artifacts
const negativePrompt = "bad anatomy, bad hands, three hands, three legs, " +
	"bad arms, missing legs, missing arms, poorly drawn face, bad face, " +
	"fused face, cloned face, worst face, extra fingers, ugly fingers, " +
	"long fingers, extra eyes, huge eyes, amputation, disconnected limbs, " +
	"cartoon, cg, 3d, unreal, animate, ((cameras))"

// SleepFunc is the poll-delay suspension point, injectable for tests
type SleepFunc func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Client is a Stability API HTTP client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sleep      SleepFunc
}

// NewClient creates a new Stability client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		sleep: defaultSleep,
	}
}

// SetSleep replaces the poll delay used while waiting for video results
func (c *Client) SetSleep(sleep SleepFunc) {
	c.sleep = sleep
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type textToImageRequest struct {
	Steps       int          `json:"steps"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Sampler     string       `json:"sampler"`
	Seed        int          `json:"seed"`
	CfgScale    float64      `json:"cfg_scale"`
	Samples     int          `json:"samples"`
	StylePreset string       `json:"style_preset"`
	TextPrompts []textPrompt `json:"text_prompts"`
}

type textToImageResponse struct {
	Artifacts []struct {
		Base64 string `json:"base64"`
	} `json:"artifacts"`
}

// TextToImage generates one image for a prompt and returns it as JPEG,
// scaled to the 768x768 the video endpoint accepts.
func (c *Client) TextToImage(ctx context.Context, prompt string) ([]byte, error) {
	reqBody := textToImageRequest{
		Steps:       40,
		Width:       1024,
		Height:      1024,
		Sampler:     "K_DPM_2_ANCESTRAL",
		CfgScale:    6,
		Samples:     1,
		StylePreset: "cinematic",
		TextPrompts: []textPrompt{
			{Text: prompt, Weight: 1},
			{Text: negativePrompt, Weight: -1},
		},
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+textToImagePath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation API error %d: %s", resp.StatusCode, string(body))
	}

	var parsed textToImageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(parsed.Artifacts) == 0 {
		return nil, fmt.Errorf("generation API returned no artifacts")
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Artifacts[0].Base64)
	if err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}

	return ResizeJPEG(raw, 768, 768)
}

type imageToVideoResponse struct {
	ID string `json:"id"`
}

// ImageToVideo submits an image for video generation and returns the
// generation id to poll
func (c *Client) ImageToVideo(ctx context.Context, image []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "image.jpg")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	fields := map[string]string{
		"seed":             "0",
		"cfg_scale":        "2.9",
		"motion_bucket_id": "156",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+imageToVideoPath, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation API error %d: %s", resp.StatusCode, string(body))
	}

	var parsed imageToVideoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("generation API returned no id")
	}

	return parsed.ID, nil
}

// FetchVideo polls the result endpoint until the generation finishes and
// returns the video bytes. 202 means still rendering; a generation that
// never finishes runs out of the poll budget.
func (c *Client) FetchVideo(ctx context.Context, generationID string) ([]byte, error) {
	url := fmt.Sprintf("%s%s/result/%s", c.baseURL, imageToVideoPath, generationID)

	for attempt := 1; attempt <= videoMaxPolls; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "video/*")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusAccepted:
			c.sleep(ctx, videoPollInterval)
		case http.StatusOK:
			return body, nil
		default:
			return nil, fmt.Errorf("generation API error %d: %s", resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("video generation %s not finished after %d polls", generationID, videoMaxPolls)
}
