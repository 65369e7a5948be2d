package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemoteChat is one stateful dialogue with the generative service.
type RemoteChat interface {
	Send(ctx context.Context, text string) (string, error)
}

// ChatFactory builds remote chats. The production implementation wraps the
// Gemini SDK; tests inject scripted fakes.
type ChatFactory interface {
	NewChat(ctx context.Context, model string, cfg GenerationConfig, history []Turn) (RemoteChat, error)
}

// Session owns the process-wide conversation. All mutation goes through
// its mutex: commands may be dispatched from concurrent handler
// goroutines even though the gateway delivers events in order.
type Session struct {
	factory ChatFactory
	logger  *zap.Logger

	mu     sync.Mutex
	model  string
	cfg    GenerationConfig
	seed   []Turn
	turns  []Turn
	chat   RemoteChat
	window int

	// sleep is swapped out in tests to avoid real delays.
	sleep func(time.Duration)
}

// NewSession creates a session seeded with the default prompt.
func NewSession(factory ChatFactory, logger *zap.Logger) *Session {
	return &Session{
		factory: factory,
		logger:  logger,
		model:   DefaultModel,
		cfg:     DefaultGenerationConfig(),
		seed:    DefaultSeed(),
		window:  MaxWindow,
		sleep:   time.Sleep,
	}
}

// SendTurn sends one speaker-labelled turn, optionally preceded by
// rendered recent channel lines (oldest first). It retries transient
// failures up to three times with a fixed delay; the final failure is
// returned as an error for the caller to present, never as response text.
func (s *Session) SendTurn(ctx context.Context, speaker, text string, recent []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty message")
	}

	prompt := s.buildPrompt(speaker, text, recent)

	if err := s.ensureChatLocked(ctx); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		attemptCtx, cancel := attemptContext(ctx)
		reply, err := s.chat.Send(attemptCtx, prompt)
		cancel()

		if err == nil {
			s.turns = append(s.turns, Turn{Role: RoleUser, Text: prompt}, Turn{Role: RoleModel, Text: reply})
			return reply, nil
		}

		lastErr = err
		s.logger.Warn("gemini send failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < sendAttempts {
			s.sleep(retryDelay)
		}
	}

	return "", fmt.Errorf("gemini unavailable after %d attempts: %w", sendAttempts, lastErr)
}

// buildPrompt renders the recent-channel context block followed by the
// speaker-prefixed message.
func (s *Session) buildPrompt(speaker, text string, recent []string) string {
	labelled := fmt.Sprintf("%s: %s", speaker, text)
	if len(recent) == 0 {
		return labelled
	}

	window := recent
	if len(window) > s.window {
		window = window[len(window)-s.window:]
	}

	var b strings.Builder
	for _, line := range window {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(labelled)
	return b.String()
}

// Reset restores the seed history and drops the remote chat so the next
// turn starts fresh. No remote call is made.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.turns = nil
	s.chat = nil
}

// SetModel switches the model identifier. A model change also resets the
// conversation history; parameter changes do not. That asymmetry is
// deliberate and load-bearing.
func (s *Session) SetModel(name string) error {
	if !AllowedModel(name) {
		return fmt.Errorf("unknown model %q", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = name
	s.resetLocked()
	return nil
}

// SetTemperature updates sampling temperature, keeping history.
func (s *Session) SetTemperature(v float32) error {
	return s.updateConfig(func(c *GenerationConfig) { c.Temperature = v })
}

// SetTopP updates nucleus sampling, keeping history.
func (s *Session) SetTopP(v float32) error {
	return s.updateConfig(func(c *GenerationConfig) { c.TopP = v })
}

// SetTopK updates top-k sampling, keeping history.
func (s *Session) SetTopK(v int32) error {
	return s.updateConfig(func(c *GenerationConfig) { c.TopK = v })
}

// SetMaxTokens updates the output token cap, keeping history.
func (s *Session) SetMaxTokens(v int32) error {
	return s.updateConfig(func(c *GenerationConfig) { c.MaxOutputTokens = v })
}

// updateConfig validates the mutated config and rebuilds the remote chat
// with the existing history carried over.
func (s *Session) updateConfig(mutate func(*GenerationConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	mutate(&next)
	if err := next.Validate(); err != nil {
		return err
	}

	s.cfg = next
	// Force a rebuild on next send; history stays.
	s.chat = nil
	return nil
}

// SetWindow clamps and stores the history window.
func (s *Session) SetWindow(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = ClampWindow(n)
	return s.window
}

// Window returns the current history window.
func (s *Session) Window() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// SetSeed replaces the seed turn pair and resets the conversation.
func (s *Session) SetSeed(seed []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = seed
	s.resetLocked()
}

// Seed returns a copy of the current seed turns.
func (s *Session) Seed() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.seed))
	copy(out, s.seed)
	return out
}

// ResetSeed restores the built-in seed prompt and resets the conversation.
func (s *Session) ResetSeed() {
	s.SetSeed(DefaultSeed())
}

// Describe reports the current model and parameters for show-config.
func (s *Session) Describe() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf(
		"model=%s temperature=%.2f top_p=%.2f top_k=%d max_tokens=%d window=%d turns=%d",
		s.model, s.cfg.Temperature, s.cfg.TopP, s.cfg.TopK, s.cfg.MaxOutputTokens,
		s.window, len(s.turns))
}

// ensureChatLocked lazily builds the remote chat from seed plus
// accumulated turns. Callers hold s.mu.
func (s *Session) ensureChatLocked(ctx context.Context) error {
	if s.chat != nil {
		return nil
	}

	history := make([]Turn, 0, len(s.seed)+len(s.turns))
	history = append(history, s.seed...)
	history = append(history, s.turns...)

	chat, err := s.factory.NewChat(ctx, s.model, s.cfg, history)
	if err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	s.chat = chat
	return nil
}

// attemptContext bounds one remote attempt unless the caller already set
// a deadline.
func attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}
