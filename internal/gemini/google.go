package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// EmbeddingModel and dimension match the message table's vector column.
const (
	EmbeddingModel     = "gemini-embedding-001"
	EmbeddingDimension = 1536
)

// GoogleFactory builds chats against the Gemini API.
type GoogleFactory struct {
	client *genai.Client
}

var _ ChatFactory = (*GoogleFactory)(nil)

// NewGoogleFactory dials the Gemini API with the given key.
func NewGoogleFactory(ctx context.Context, apiKey string) (*GoogleFactory, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GoogleFactory{client: client}, nil
}

// NewChat starts a stateful chat with the given history and parameters.
func (f *GoogleFactory) NewChat(ctx context.Context, model string, cfg GenerationConfig, history []Turn) (RemoteChat, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}

	chat, err := f.client.Chats.Create(ctx, model, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		TopP:            genai.Ptr(cfg.TopP),
		TopK:            genai.Ptr(float32(cfg.TopK)),
		MaxOutputTokens: cfg.MaxOutputTokens,
		SafetySettings:  blockNoneSafety(),
	}, contents)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	return &googleChat{chat: chat}, nil
}

// Embed produces an embedding vector sized for the message table.
// Used best-effort when saving message records.
func (f *GoogleFactory) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := f.client.Models.EmbedContent(ctx, EmbeddingModel, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr[int32](EmbeddingDimension),
	})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embed content: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

// blockNoneSafety disables all four harm-category filters, matching the
// guild's own moderation taking precedence over the service's.
func blockNoneSafety() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}

	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}

// googleChat adapts *genai.Chat to RemoteChat.
type googleChat struct {
	chat *genai.Chat
}

func (c *googleChat) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	out := resp.Text()
	if out == "" {
		return "", fmt.Errorf("empty completion")
	}
	return out, nil
}
