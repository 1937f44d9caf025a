// Package engine implements the query pipeline of the signal memory engine:
// retrieve similar memories, normalize and score them, ask the LLM to answer
// with the retrieved context, and emit a trace record per decision.
//
// The engine holds no mutable state; every dependency is injected at
// construction and every method is safe for concurrent use.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/sme-labs/sme-go/internal/budget"
	"github.com/sme-labs/sme-go/internal/logging"
	"github.com/sme-labs/sme-go/internal/memory"
	"github.com/sme-labs/sme-go/internal/notify"
	"github.com/sme-labs/sme-go/internal/provider"
	"github.com/sme-labs/sme-go/internal/rag"
	"github.com/sme-labs/sme-go/internal/scoring"
	"github.com/sme-labs/sme-go/internal/trace"
)

// systemPrompt frames every answer around the retrieved memory context.
const systemPrompt = `You are the Signal Memory Engine, an assistant that answers questions using
the retrieved memory fragments below. Ground your answer in the fragments when
they are relevant; say so plainly when they are not. Do not invent memories.`

// degradedAnswer is returned for an agent whose LLM backend is rate limited
// during a multi-agent fan-out.
const degradedAnswer = "(LLM temporarily unavailable)"

// singleAgentRole labels trace records produced by the single-agent path.
const singleAgentRole = "single-agent"

// AgentStore pairs a named agent with the retriever over its memory store.
type AgentStore struct {
	// Role is the agent's name as exposed by /agents and /multi_query.
	Role string
	// Retriever searches this agent's memory collection.
	Retriever rag.Retriever
	// Enabled gates the agent in and out of fan-outs without rewiring.
	Enabled bool
}

// Result is the outcome of one agent's query: the generated answer, the
// normalized memory hits, and the aggregate trust classification.
type Result struct {
	// Answer is the LLM's response, or a degraded placeholder.
	Answer string
	// Events are the normalized memory hits backing the answer.
	Events []memory.Event
	// Flag classifies TrustScore.
	Flag scoring.Flag
	// Suggestion is the action text for Flag.
	Suggestion string
	// TrustScore is the representative (max) similarity score.
	TrustScore float64
}

// Config carries the engine's injected dependencies.
type Config struct {
	// Chat generates answers. Required for Query and MultiQuery.
	Chat provider.ChatModel
	// Backend names the chat backend for error classification.
	Backend provider.Backend
	// Retriever is the default memory retriever used by Query and Score.
	Retriever rag.Retriever
	// Agents are the per-agent stores used by MultiQuery.
	Agents []AgentStore
	// Trace receives one record per scoring decision. Optional.
	Trace *trace.Log
	// Notifier receives escalation handoffs. Defaults to notify.Noop.
	Notifier notify.Notifier
	// MaxContextTokens bounds the retrieved context injected into the
	// prompt. Zero selects budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Engine is the query pipeline. Construct with New.
type Engine struct {
	chat             provider.ChatModel
	backend          provider.Backend
	retriever        rag.Retriever
	agents           []AgentStore
	traceLog         *trace.Log
	notifier         notify.Notifier
	maxContextTokens int
}

// New constructs an Engine from cfg.
func New(cfg *Config) (*Engine, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("engine: retriever must not be nil")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{
		chat:             cfg.Chat,
		backend:          cfg.Backend,
		retriever:        cfg.Retriever,
		agents:           cfg.Agents,
		traceLog:         cfg.Trace,
		notifier:         notifier,
		maxContextTokens: cfg.MaxContextTokens,
	}, nil
}

// Agents returns the configured agent stores.
func (e *Engine) Agents() []AgentStore { return e.agents }

// Score retrieves the top-k memories for query and returns the normalized
// events with their representative trust score and flag. No LLM call is made.
func (e *Engine) Score(ctx context.Context, query string, k int) ([]memory.Event, float64, scoring.Flag, error) {
	hits, err := e.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, 0, "", fmt.Errorf("engine: retrieval failed: %w", err)
	}

	events := memory.MapToMemory(toHits(hits), "")
	top := scoring.TopScore(memory.Scores(events))
	return events, top, scoring.FlagForScore(top), nil
}

// Search retrieves the top-k memories for query and returns them as
// normalized events without scoring aggregation or an LLM call.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]memory.Event, error) {
	hits, err := e.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("engine: retrieval failed: %w", err)
	}
	return memory.MapToMemory(toHits(hits), ""), nil
}

// Query runs the full single-agent pipeline: retrieve, score, answer with
// the LLM, trace. requestID correlates the trace record with the HTTP
// request.
func (e *Engine) Query(ctx context.Context, requestID, query string, k int) (*Result, error) {
	if e.chat == nil {
		return nil, fmt.Errorf("engine: no chat model configured")
	}

	hits, err := e.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("engine: retrieval failed: %w", err)
	}
	events := memory.MapToMemory(toHits(hits), "")

	answer, err := e.generate(ctx, query, events)
	if err != nil {
		return nil, err
	}

	res := e.buildResult(answer, events)
	e.traceDecision(ctx, requestID, singleAgentRole, query, res)
	return res, nil
}

// MultiQuery fans the query out across every enabled agent store. An agent
// whose LLM backend reports a rate limit degrades to a neutral stable result
// instead of failing the whole request; any other provider failure aborts.
// When any agent's flag reaches concern, an escalation handoff fires in the
// background; its failure is logged and never surfaces.
func (e *Engine) MultiQuery(ctx context.Context, requestID, query string, k int) (map[string]*Result, error) {
	if e.chat == nil {
		return nil, fmt.Errorf("engine: no chat model configured")
	}

	out := make(map[string]*Result, len(e.agents))
	var concerned []string

	for _, agent := range e.agents {
		if !agent.Enabled {
			continue
		}

		hits, err := agent.Retriever.Retrieve(ctx, query, k)
		if err != nil {
			return nil, fmt.Errorf("engine: retrieval failed for agent %s: %w", agent.Role, err)
		}
		events := memory.MapToMemory(toHits(hits), agent.Role)

		answer, err := e.generate(ctx, query, events)
		if err != nil {
			if provider.IsRateLimited(err) {
				// Degrade this agent and keep the fan-out going.
				res := &Result{
					Answer:     degradedAnswer,
					Events:     []memory.Event{},
					Flag:       scoring.FlagStable,
					Suggestion: scoring.FlagStable.Suggestion(),
					TrustScore: 0.0,
				}
				out[agent.Role] = res
				e.traceDecision(ctx, requestID, agent.Role, query, res)
				continue
			}
			return nil, err
		}

		res := e.buildResult(answer, events)
		out[agent.Role] = res
		e.traceDecision(ctx, requestID, agent.Role, query, res)

		if res.Flag == scoring.FlagConcern {
			concerned = append(concerned, agent.Role)
		}
	}

	if len(concerned) > 0 {
		e.escalate(ctx, query, concerned)
	}

	return out, nil
}

// buildResult assembles a Result from the generated answer and events.
func (e *Engine) buildResult(answer string, events []memory.Event) *Result {
	top := scoring.TopScore(memory.Scores(events))
	flag := scoring.FlagForScore(top)
	return &Result{
		Answer:     answer,
		Events:     events,
		Flag:       flag,
		Suggestion: flag.Suggestion(),
		TrustScore: top,
	}
}

// generate asks the chat model to answer query grounded in the retrieved
// events, trimming the injected context to the token budget. Provider
// failures come back classified.
func (e *Engine) generate(ctx context.Context, query string, events []memory.Event) (string, error) {
	chunks := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Content != "" {
			chunks = append(chunks, ev.Content)
		}
	}
	chunks = budget.TrimContext(systemPrompt+query, chunks, e.maxContextTokens)

	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if len(chunks) > 0 {
		sb.WriteString("\n\nMemory fragments:\n")
		for _, c := range chunks {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}

	msgs := []*schema.Message{
		schema.SystemMessage(sb.String()),
		schema.UserMessage(query),
	}

	resp, err := e.chat.Generate(ctx, msgs)
	if err != nil {
		return "", provider.Classify(e.backend, err)
	}
	if resp == nil {
		return "", provider.Classify(e.backend, fmt.Errorf("model returned nil response"))
	}
	return resp.Content, nil
}

// traceDecision appends a trace record for one scoring decision. Trace
// failures are logged and swallowed; the trace is advisory.
func (e *Engine) traceDecision(ctx context.Context, requestID, agent, query string, res *Result) {
	if e.traceLog == nil {
		return
	}
	err := e.traceLog.Append(trace.Record{
		RequestID:  requestID,
		Agent:      agent,
		Query:      query,
		Flag:       res.Flag.String(),
		TrustScore: res.TrustScore,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("trace append failed", slog.Any("error", err))
	}
}

// escalate fires the human-in-the-loop handoff in the background. The
// response already computed must not wait on it, so it detaches from the
// request context; failures are logged and dropped.
func (e *Engine) escalate(ctx context.Context, query string, agents []string) {
	log := logging.FromContext(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.notifier.Notify(nctx, notify.Escalation{Query: query, Agents: agents}); err != nil {
			log.Warn("escalation handoff failed",
				slog.Any("error", err),
				slog.Any("agents", agents),
			)
		}
	}()
}

// toHits converts retrieved memories into the mapper's raw hit shape.
func toHits(memories []rag.Memory) []memory.Hit {
	hits := make([]memory.Hit, len(memories))
	for i, m := range memories {
		hits[i] = memory.Hit{
			Content:  m.Content,
			Score:    m.Score,
			Metadata: m.Metadata,
		}
	}
	return hits
}
