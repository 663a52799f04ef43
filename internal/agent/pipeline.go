package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supportd/internal/collections"
)

var tracer = otel.Tracer("supportd.agent")

// Sentinel errors for pipeline runs.
var (
	// ErrRetrievalFailed indicates the context lookup failed.
	ErrRetrievalFailed = errors.New("context retrieval failed")

	// ErrGenerationFailed indicates the model call failed.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrInvalidConfig indicates invalid pipeline configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyQuestion indicates a blank question.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// systemPromptPrefix grounds the model in the retrieved passages.
const systemPromptPrefix = "You are a helpful assistant. Use this context:\n"

// Message roles in chat history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior exchange turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContextRetriever supplies context passages for a question.
// *collections.Retriever satisfies this.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string) ([]collections.Passage, error)
}

// Config holds pipeline settings.
type Config struct {
	// Temperature for answer generation. Nil means the 0.3 default;
	// an explicit 0 stays 0 for deterministic output.
	Temperature *float64 `koanf:"temperature"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Temperature == nil {
		temp := 0.3
		c.Temperature = &temp
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be in [0, 2], got %v", ErrInvalidConfig, *c.Temperature)
	}
	return nil
}

// Result is the outcome of a blocking pipeline run.
type Result struct {
	// Answer is the full generated answer.
	Answer string

	// Passages are the context passages the answer was grounded in.
	Passages []collections.Passage
}

// Pipeline runs the two-stage retrieve-then-generate flow. It first fetches
// the passages nearest to the question, then streams a model answer grounded
// in them, carrying the prior chat history into the prompt.
type Pipeline struct {
	config    Config
	model     llms.Model
	retriever ContextRetriever
	graph     *stageGraph
	logger    *zap.Logger
}

// pipelineRun is the mutable state of one pipeline execution.
type pipelineRun struct {
	question string
	history  []Message
	passages []collections.Passage
	stream   *Stream
}

// NewPipeline creates a Pipeline over the given model and retriever.
func NewPipeline(config Config, model llms.Model, retriever ContextRetriever, logger *zap.Logger) (*Pipeline, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if retriever == nil {
		return nil, fmt.Errorf("%w: retriever is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	p := &Pipeline{
		config:    config,
		model:     model,
		retriever: retriever,
		logger:    logger,
	}

	graph, err := newGraphBuilder().
		addStage(StageRetrieve, p.retrieveStage).
		addStage(StageGenerate, p.generateStage).
		addStage(StageDone, nil).
		addEdge(StageRetrieve, StageGenerate).
		addEdge(StageGenerate, StageDone).
		setEntry(StageRetrieve).
		compile()
	if err != nil {
		return nil, err
	}
	p.graph = graph

	return p, nil
}

// retrieveStage fetches the context passages for the question.
func (p *Pipeline) retrieveStage(ctx context.Context, run *pipelineRun) error {
	ctx, span := tracer.Start(ctx, "Pipeline.Retrieve")
	defer span.End()

	passages, err := p.retriever.Retrieve(ctx, run.question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Keep the cause in the chain so callers can map, for example, a
		// deleted collection to the right status.
		return fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	run.passages = passages

	span.SetAttributes(attribute.Int("passages", len(passages)))
	span.SetStatus(codes.Ok, "success")

	p.logger.Debug("retrieved context",
		zap.Int("passages", len(passages)),
	)

	return nil
}

// generateStage streams the model's answer, emitting each delta on the run's
// stream as it arrives.
func (p *Pipeline) generateStage(ctx context.Context, run *pipelineRun) error {
	ctx, span := tracer.Start(ctx, "Pipeline.Generate")
	defer span.End()

	messages := buildMessages(run.question, run.history, run.passages)

	_, err := p.model.GenerateContent(ctx, messages,
		llms.WithTemperature(*p.config.Temperature),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			return run.stream.send(ctx, Event{Stage: StageGenerate, Delta: string(chunk)})
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// buildMessages assembles the prompt: the grounding system message, the chat
// history in order, then the question as the final human turn.
func buildMessages(question string, history []Message, passages []collections.Passage) []llms.MessageContent {
	texts := make([]string, len(passages))
	for i, passage := range passages {
		texts[i] = passage.Text
	}
	contextText := strings.Join(texts, "\n")

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPromptPrefix+contextText))

	for _, msg := range history {
		role := llms.ChatMessageTypeAI
		if msg.Role == RoleUser {
			role = llms.ChatMessageTypeHuman
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))
	return messages
}

// Stream runs retrieval to completion, then returns a Stream over the
// generation stage. Retrieval is a bounded single lookup, so its failure is
// returned here directly; the stream carries only the generation stage's
// transitions and answer deltas, advancing as far as the consumer pulls
// through Stream.Next.
//
// The caller must Close the stream when done with it.
func (p *Pipeline) Stream(ctx context.Context, question string, history []Message) (*Stream, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	run := &pipelineRun{
		question: question,
		history:  history,
	}
	if err := p.retrieveStage(ctx, run); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream := newStream(cancel)
	run.stream = stream

	go func() {
		emit := func(stage Stage) {
			ev := Event{Stage: stage}
			if stage != StageRetrieve {
				ev.Passages = run.passages
			}
			_ = stream.send(runCtx, ev)
		}
		// Retrieval already completed; replay its transition so consumers
		// see the full stage sequence.
		emit(StageRetrieve)
		err := p.graph.runFrom(runCtx, StageGenerate, run, emit)
		stream.finish(err)
	}()

	return stream, nil
}

// Run executes the pipeline to completion, collecting the streamed deltas
// into the final answer.
func (p *Pipeline) Run(ctx context.Context, question string, history []Message) (*Result, error) {
	stream, err := p.Stream(ctx, question, history)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var answer strings.Builder
	var passages []collections.Passage

	for {
		ev, ok := stream.Next()
		if !ok {
			break
		}
		if ev.Passages != nil {
			passages = ev.Passages
		}
		answer.WriteString(ev.Delta)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Answer:   answer.String(),
		Passages: passages,
	}, nil
}
