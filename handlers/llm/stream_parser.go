package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"

	"chatkit/core"
)

const (
	// DataPrefix marks a line as a data frame.
	DataPrefix = "data:"
	// DoneSentinel is the frame payload that ends a stream.
	DoneSentinel = "[DONE]"

	readChunkSize = 4096
	// maxLoggedPayload bounds the malformed payload echoed into logs.
	maxLoggedPayload = 200
)

// utf8Decoder holds back an incomplete trailing rune until the next chunk
// completes it.
type utf8Decoder struct {
	pending []byte
}

func (d *utf8Decoder) decode(chunk []byte) string {
	d.pending = append(d.pending, chunk...)
	cut := len(d.pending)
	for i := len(d.pending) - 1; i >= 0 && i >= len(d.pending)-utf8.UTFMax; i-- {
		if utf8.RuneStart(d.pending[i]) {
			if !utf8.FullRune(d.pending[i:]) {
				cut = i
			}
			break
		}
	}
	out := string(d.pending[:cut])
	d.pending = append(d.pending[:0], d.pending[cut:]...)
	return out
}

func (d *utf8Decoder) flush() string {
	out := string(d.pending)
	d.pending = d.pending[:0]
	return out
}

// StreamParser rebuilds an assistant reply from a newline-delimited stream of
// data frames delivered in arbitrary byte chunks. onDelta receives the whole
// reply so far after every appended fragment; onCommit fires exactly once,
// on the sentinel or when the stream ends without one.
type StreamParser struct {
	decoder  utf8Decoder
	line     string
	reply    strings.Builder
	done     bool
	onDelta  func(reply string)
	onCommit func(reply string)
	logger   *core.Logger
}

func NewStreamParser(onDelta, onCommit func(reply string), logger *core.Logger) *StreamParser {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &StreamParser{
		onDelta:  onDelta,
		onCommit: onCommit,
		logger:   logger.With(map[string]interface{}{"component": "stream_parser"}),
	}
}

// Text returns the reply accumulated so far.
func (p *StreamParser) Text() string {
	return p.reply.String()
}

// Done reports whether the reply has been committed.
func (p *StreamParser) Done() bool {
	return p.done
}

// Feed processes one chunk and reports whether the reply is now committed.
// Chunks fed after the commit are ignored.
func (p *StreamParser) Feed(chunk []byte) bool {
	if p.done {
		return true
	}
	p.line += p.decoder.decode(chunk)
	for !p.done {
		i := strings.IndexByte(p.line, '\n')
		if i < 0 {
			break
		}
		line := p.line[:i]
		p.line = p.line[i+1:]
		p.processLine(line)
	}
	return p.done
}

// Finish handles end of stream: a final unterminated line is processed, and
// whatever text accumulated is committed if the sentinel never arrived.
func (p *StreamParser) Finish() string {
	if !p.done {
		rest := p.line + p.decoder.flush()
		p.line = ""
		if rest != "" {
			p.processLine(rest)
		}
	}
	if !p.done {
		p.logger.With(map[string]interface{}{"chars": p.reply.Len()}).Warn("stream ended without completion sentinel")
		p.commit()
	}
	return p.reply.String()
}

func (p *StreamParser) processLine(line string) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return
	}
	payload := strings.TrimSpace(line[len(DataPrefix):])
	if payload == "" {
		return
	}
	if payload == DoneSentinel {
		p.commit()
		return
	}

	var frame openai.ChatCompletionStreamResponse
	if err := sonic.UnmarshalString(payload, &frame); err != nil {
		p.logger.With(map[string]interface{}{"error": err, "payload": truncate(payload, maxLoggedPayload)}).Warn("skipping malformed stream frame")
		return
	}
	if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == "" {
		return
	}
	p.reply.WriteString(frame.Choices[0].Delta.Content)
	if p.onDelta != nil {
		p.onDelta(p.reply.String())
	}
}

func (p *StreamParser) commit() {
	if p.done {
		return
	}
	p.done = true
	if p.onCommit != nil {
		p.onCommit(p.reply.String())
	}
}

// Run reads r in arrival order until the sentinel, end of stream or a read
// error. The reply is committed exactly once on every path; a read error is
// returned after the commit.
func (p *StreamParser) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			p.Finish()
			return err
		}
		n, err := r.Read(buf)
		if n > 0 && p.Feed(buf[:n]) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			p.Finish()
			return nil
		}
		if err != nil {
			p.Finish()
			return err
		}
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}
