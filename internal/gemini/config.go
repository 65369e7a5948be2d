// Package gemini maintains the bot's single ongoing conversation with the
// Gemini API: history, generation parameters, and a bounded-retry send.
package gemini

import (
	"fmt"
	"time"
)

// Turn roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role string
	Text string
}

// GenerationConfig holds the tunable generation parameters.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
}

// Parameter bounds and defaults.
const (
	MaxTemperature = 1.0
	MaxTopP        = 1.0
	MaxTopK        = 64
	MaxOutput      = 8192

	// MinWindow and MaxWindow bound how many recent channel messages are
	// folded into a prompt.
	MinWindow = 1
	MaxWindow = 50

	// DefaultModel is used until an operator picks another one.
	DefaultModel = "gemini-2.0-flash"

	// DefaultTimeout bounds a single remote attempt.
	DefaultTimeout = 30 * time.Second

	// sendAttempts and retryDelay define the retry policy for a turn:
	// up to three attempts with a fixed one-second pause between them.
	sendAttempts = 3
	retryDelay   = time.Second
)

// DefaultGenerationConfig mirrors the service-side defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.9,
		TopP:            1.0,
		TopK:            32,
		MaxOutputTokens: 2048,
	}
}

// allowedModels is the model identifier allow-list. Reconfiguration to
// anything outside it is rejected before touching the remote service.
var allowedModels = map[string]bool{
	"gemini-2.0-flash":      true,
	"gemini-2.0-flash-lite": true,
	"gemini-1.5-pro":        true,
	"gemini-1.5-flash":      true,
}

// AllowedModel reports whether name is a recognized model identifier.
func AllowedModel(name string) bool {
	return allowedModels[name]
}

// Validate checks every parameter against its documented range.
func (c GenerationConfig) Validate() error {
	if c.Temperature < 0 || c.Temperature > MaxTemperature {
		return fmt.Errorf("temperature %.2f out of range [0, %.0f]", c.Temperature, MaxTemperature)
	}
	if c.TopP < 0 || c.TopP > MaxTopP {
		return fmt.Errorf("top_p %.2f out of range [0, %.0f]", c.TopP, MaxTopP)
	}
	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("top_k %d out of range [1, %d]", c.TopK, MaxTopK)
	}
	if c.MaxOutputTokens < 1 || c.MaxOutputTokens > MaxOutput {
		return fmt.Errorf("max output tokens %d out of range [1, %d]", c.MaxOutputTokens, MaxOutput)
	}
	return nil
}

// ClampWindow forces a history window into [MinWindow, MaxWindow].
func ClampWindow(n int) int {
	if n < MinWindow {
		return MinWindow
	}
	if n > MaxWindow {
		return MaxWindow
	}
	return n
}

// DefaultSeed is the fixed opening turn pair that teaches the model its
// role. Operators may replace it at runtime.
func DefaultSeed() []Turn {
	return []Turn{
		{
			Role: RoleUser,
			Text: "As a chatbot operating within Discord, your responsibility is to receive and keep track " +
				"of messages from various users. For instance, a user's message may appear as " +
				"'John: Hello, there!' indicating that a user named John is reaching out. " +
				"Now, let's begin. Chi-chan: 'Hi, who am I?'",
		},
		{
			Role: RoleModel,
			Text: "Hi you are Chi-chan, nice to meet you too. What can I do for you today?",
		},
	}
}
