package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/oculus/internal/observe"
	"github.com/MrWong99/oculus/internal/resilience"
	"github.com/MrWong99/oculus/pkg/frame"
	"github.com/MrWong99/oculus/pkg/provider/llm"
	"github.com/MrWong99/oculus/pkg/provider/tts"
)

// ErrNoFrame is returned by [Pipeline.Handle] when no camera frame is
// available for the question.
var ErrNoFrame = errors.New("conversation: no frame captured")

// Utterance outcomes recorded on the utterance counter.
const (
	OutcomeAnswered = "answered"
	OutcomeEmpty    = "empty"
	OutcomeNoFrame  = "no_frame"
	OutcomeDropped  = "dropped"
	OutcomeFailed   = "failed"
)

// Speaker plays an answer. Speak blocks until the whole answer was played.
type Speaker interface {
	Speak(ctx context.Context, text string, voice tts.Voice) error
}

// Option is a functional option for [NewPipeline].
type Option func(*Pipeline)

// WithRetry sets the retry policy for model calls. Default: one attempt.
func WithRetry(p resilience.Policy) Option {
	return func(pl *Pipeline) { pl.retry = p }
}

// WithImageQuality sets the JPEG quality for raw frames. Default:
// [frame.DefaultJPEGQuality].
func WithImageQuality(q int) Option {
	return func(pl *Pipeline) { pl.quality = q }
}

// WithSampling sets temperature and the answer token cap. Zero values leave
// the provider defaults.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(pl *Pipeline) {
		pl.temperature = temperature
		pl.maxTokens = maxTokens
	}
}

// WithMetrics records latencies and utterance outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// Pipeline answers one question at a time. It is safe for concurrent use,
// but concurrent calls may append their turns to the history in either
// order; use a [Worker] to keep questions ordered.
type Pipeline struct {
	model   llm.Provider
	speaker Speaker
	session *Session

	retry       resilience.Policy
	quality     int
	temperature float64
	maxTokens   int
	metrics     *observe.Metrics
}

// NewPipeline returns a pipeline that asks model, records turns in session
// and speaks through speaker.
func NewPipeline(model llm.Provider, speaker Speaker, session *Session, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:   model,
		speaker: speaker,
		session: session,
		retry:   resilience.Policy{MaxAttempts: 1},
		quality: frame.DefaultJPEGQuality,
	}
	for _, o := range opts {
		o(p)
	}
	if caps := model.Capabilities(); caps.ContextWindow > 0 && !caps.SupportsVision {
		observe.Logger(context.Background()).Warn("conversation: model does not accept images, answers will ignore the camera")
	}
	return p
}

// Session returns the session the pipeline writes to.
func (p *Pipeline) Session() *Session { return p.session }

// Handle answers text about f.
//
// Blank text is ignored. A nil frame skips the question and returns
// [ErrNoFrame] without touching the history. An empty answer is ignored as
// well. Otherwise the question and the answer are appended to the history
// and the answer is spoken before Handle returns.
func (p *Pipeline) Handle(ctx context.Context, text string, f *frame.Frame) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "conversation.handle")
	defer span.End()
	log := observe.Logger(ctx).With("session_id", p.session.ID)
	start := time.Now()

	if f == nil {
		log.Warn("no frame captured, skipping question", "question", text)
		p.recordOutcome(ctx, OutcomeNoFrame)
		return ErrNoFrame
	}
	span.SetAttributes(attribute.Int64("frame.seq", int64(f.Seq)))

	img, err := frame.DataURL(f, p.quality)
	if err != nil {
		p.recordOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("conversation: encode frame: %w", err)
	}

	req := llm.CompletionRequest{
		SystemPrompt: p.session.SystemPrompt(),
		Messages: append(p.session.History.Messages(), llm.Message{
			Role:    llm.RoleUser,
			Content: text,
			Images:  []string{img},
		}),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}

	log.Info("question", "text", text, "frame_seq", f.Seq)
	llmStart := time.Now()
	resp, err := resilience.RetryValue(ctx, p.retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return p.model.Complete(ctx, req)
	})
	if p.metrics != nil {
		p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		p.recordOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("conversation: complete: %w", err)
	}

	var answer string
	if resp != nil {
		answer = strings.TrimSpace(resp.Content)
	}
	if answer == "" {
		log.Info("model returned an empty answer")
		p.recordOutcome(ctx, OutcomeEmpty)
		return nil
	}
	p.session.History.AppendPair(text, answer)
	log.Info("answer", "text", answer)

	if err := p.speaker.Speak(ctx, answer, p.session.Voice()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "speech failed")
		p.recordOutcome(ctx, OutcomeFailed)
		return fmt.Errorf("conversation: speak: %w", err)
	}

	p.recordOutcome(ctx, OutcomeAnswered)
	if p.metrics != nil {
		p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

func (p *Pipeline) recordOutcome(ctx context.Context, outcome string) {
	if p.metrics != nil {
		p.metrics.RecordUtterance(ctx, outcome)
	}
}
