package speech

import (
	"context"
	"runtime"
	"sync"

	"chatkit/core"
)

// EngineConfig holds configuration for the local synthesis engine
type EngineConfig struct {
	Command string   `json:"command"` // Synthesis binary; the utterance is passed as the last argument.
	Args    []string `json:"args"`    // Arguments placed before the utterance.
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults
func DefaultEngineConfig() EngineConfig {
	if runtime.GOOS == "darwin" {
		return EngineConfig{Command: "say"}
	}
	return EngineConfig{Command: "espeak-ng"}
}

// Engine speaks utterances with the local synthesis binary.
type Engine struct {
	mu     sync.Mutex
	active map[*Process]struct{}
	config EngineConfig
	logger *core.Logger
}

func NewEngine(config EngineConfig, logger *core.Logger) *Engine {
	if logger == nil {
		logger = core.GetLogger()
	}
	if config.Command == "" {
		config = DefaultEngineConfig()
	}
	return &Engine{
		active: make(map[*Process]struct{}),
		config: config,
		logger: logger.With(map[string]interface{}{"component": "speech_engine", "command": config.Command}),
	}
}

// Say starts speaking text.
func (e *Engine) Say(ctx context.Context, text string) (core.PlaybackHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := append(append([]string(nil), e.config.Args...), text)
	p, err := startProcess(e.config.Command, args...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.active[p] = struct{}{}
	e.mu.Unlock()
	go func() {
		<-p.Done()
		e.mu.Lock()
		delete(e.active, p)
		e.mu.Unlock()
	}()
	return p, nil
}

// CancelAll silences every utterance still running.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	running := make([]*Process, 0, len(e.active))
	for p := range e.active {
		running = append(running, p)
	}
	e.mu.Unlock()

	for _, p := range running {
		p.Stop()
	}
	if len(running) > 0 {
		e.logger.With(map[string]interface{}{"cancelled": len(running)}).Debug("cancelled utterances")
	}
}

// PlayerConfig holds configuration for the audio file player
type PlayerConfig struct {
	Command string   `json:"command"` // Player binary; the file path is passed as the last argument.
	Args    []string `json:"args"`    // Arguments placed before the file path.
}

// DefaultPlayerConfig returns a PlayerConfig with sensible defaults
func DefaultPlayerConfig() PlayerConfig {
	if runtime.GOOS == "darwin" {
		return PlayerConfig{Command: "afplay"}
	}
	return PlayerConfig{Command: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}}
}

// Player plays audio files with the configured binary.
type Player struct {
	config PlayerConfig
}

func NewPlayer(config PlayerConfig) *Player {
	if config.Command == "" {
		config = DefaultPlayerConfig()
	}
	return &Player{config: config}
}

func (p *Player) Play(ctx context.Context, path string) (core.PlaybackHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	args := append(append([]string(nil), p.config.Args...), path)
	return startProcess(p.config.Command, args...)
}
