package image

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatkit/core"
)

const NoNarrationNotice = "No narration yet. Send a message first."

var ErrNoNarration = errors.New("image: no narration to illustrate")

// ImageClient requests an image for a prompt.
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt, size string) (core.Image, error)
}

// Generator illustrates the current session's last narration.
type Generator struct {
	mu       sync.RWMutex
	size     string
	session  *core.SessionContext
	client   ImageClient
	renderer core.Renderer
	logger   *core.Logger
}

func NewGenerator(session *core.SessionContext, client ImageClient, renderer core.Renderer, config ImageConfig, logger *core.Logger) *Generator {
	if logger == nil {
		logger = core.GetLogger()
	}
	if renderer == nil {
		renderer = core.NopRenderer{}
	}
	return &Generator{
		size:     SanitizeSize(config.Size),
		session:  session,
		client:   client,
		renderer: renderer,
		logger:   logger.With(map[string]interface{}{"component": "image"}),
	}
}

func (g *Generator) Size() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.size
}

// SetSize stores the sanitized size and returns it.
func (g *Generator) SetSize(size string) string {
	size = SanitizeSize(size)
	g.mu.Lock()
	g.size = size
	g.mu.Unlock()
	return size
}

// Generate builds a prompt from the last narration, requests the image and
// hands it to the renderer. Failures are surfaced as notifications.
func (g *Generator) Generate(ctx context.Context) (core.Image, error) {
	utterance := g.session.Snapshot().LastAssistantUtterance
	if utterance == "" {
		g.renderer.Notify(NoNarrationNotice)
		return core.Image{}, ErrNoNarration
	}

	prompt := BuildPrompt(utterance)
	size := g.Size()
	g.logger.With(map[string]interface{}{"size": size, "prompt_chars": len([]rune(prompt))}).Info("requesting scene image")

	img, err := g.client.GenerateImage(ctx, prompt, size)
	if err != nil {
		g.logger.With(map[string]interface{}{"error": err}).Warn("image generation failed")
		g.renderer.Notify(fmt.Sprintf("Image generation failed: %v", err))
		return core.Image{}, err
	}
	g.renderer.ShowImage(img)
	return img, nil
}
