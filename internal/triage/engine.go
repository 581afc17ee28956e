package triage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/courier/internal/tools"
)

const tracerName = "courier/triage"

// Budgets for a single response agent run.
const (
	MaxToolRounds  = 15
	MaxTokens      = 50000
	ResponseTokens = 4096
)

// EngineHooks receive engine events for metrics instrumentation. Nil fields
// are skipped.
type EngineHooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, duration float64)
	OnToolCall func(name string, duration float64, inputBytes, outputBytes int, isError bool)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarizes a finished engine run.
type CompleteEvent struct {
	Status    Status
	Model     string
	Duration  float64
	LLMTime   float64
	ToolTime  float64
	TokensIn  int
	TokensOut int
	ToolCalls int
}

// RunResult is the engine's output for one response agent run.
type RunResult struct {
	Status       Status
	Reply        string
	Conversation *Conversation
	ToolsUsed    []string
	Model        string
	Duration     float64
	LLMTime      float64
	ToolTime     float64
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	Error        string
}

// Engine drives the response agent: a pure LLM tool loop with no store
// dependency. It sends the conversation plus tool definitions, executes
// requested tools, and feeds results back until the model stops or a budget
// runs out.
type Engine struct {
	provider Provider
	logger   log.Logger
	hooks    EngineHooks
}

// NewEngine creates a new engine with the given dependencies.
func NewEngine(provider Provider, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{provider: provider, logger: logger, hooks: hooks}
}

// Run executes the response agent for one email. registry holds the tools for
// this run (action stubs plus the user-bound memory tools); initial is the
// synthetic instruction conversation seeded by the service.
func (e *Engine) Run(ctx context.Context, runID string, registry *tools.Registry, system string, initial []Message) *RunResult {
	start := time.Now()
	L := e.logger.With("run_id", runID)

	rr := &RunResult{
		Status:       StatusComplete,
		Conversation: &Conversation{},
	}
	messages := append([]Message(nil), initial...)
	for _, m := range initial {
		rr.Conversation.Turns = append(rr.Conversation.Turns, Turn{Role: m.Role, Content: m.Content})
	}

	var toolDefs []tools.ToolDef
	if registry != nil {
		toolDefs = registry.ToToolDefs()
	}

	var totalIn, totalOut, toolCalls int
	var llmTime, toolTime float64
	tracer := otel.Tracer(tracerName)
	chatSeq := 0

	for {
		if toolCalls >= MaxToolRounds {
			L.Warn(ctx, "run hit tool call limit", "limit", MaxToolRounds)
			rr.Reply = "Run terminated: tool call budget exhausted"
			break
		}
		if totalIn+totalOut >= MaxTokens {
			L.Warn(ctx, "run hit token limit", "limit", MaxTokens)
			rr.Reply = "Run terminated: token budget exhausted"
			break
		}

		llmCtx, llmSpan := tracer.Start(ctx, "llm.call", trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "llm.call"),
			attribute.String("courier.run.id", runID),
			attribute.Int("courier.chat.seq", chatSeq),
		))
		chatSeq++
		llmSpan.AddEvent("llm.request")

		llmStart := time.Now()
		resp, err := e.provider.Send(llmCtx, &LLMRequest{
			MaxTokens: ResponseTokens,
			System:    system,
			Messages:  messages,
			Tools:     toolDefs,
		})
		llmDur := time.Since(llmStart).Seconds()
		llmTime += llmDur
		if err != nil {
			llmSpan.RecordError(err)
			llmSpan.End()
			L.Error(ctx, err, "llm call failed")
			rr.Status = StatusFailed
			rr.Error = fmt.Sprintf("LLM error: %v", err)
			break
		}

		llmSpan.SetAttributes(
			attribute.String("gen_ai.response.model", resp.Model),
			attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
			attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
		)
		llmSpan.AddEvent("llm.response")
		llmSpan.End()

		totalIn += resp.Usage.InputTokens
		totalOut += resp.Usage.OutputTokens
		rr.Model = resp.Model
		if e.hooks.OnLLMCall != nil {
			e.hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, llmDur)
		}

		L.Info(ctx, "llm response",
			"stop_reason", resp.StopReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"total_tokens", totalIn+totalOut,
		)

		usage := resp.Usage
		messages = append(messages, Message{Role: "assistant", Content: resp.Content})
		rr.Conversation.Turns = append(rr.Conversation.Turns, Turn{
			Role:       "assistant",
			Content:    resp.Content,
			StopReason: string(resp.StopReason),
			Usage:      &usage,
			Duration:   llmDur,
		})

		// done - extract the final reply text
		if resp.StopReason != StopToolUse {
			for _, block := range resp.Content {
				if block.Type == "text" {
					rr.Reply = block.Text
				}
			}
			break
		}

		// handle tool calls
		var toolResults []ContentBlock
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}

			toolCalls++
			L.Info(ctx, "executing tool", "tool", block.Name, "call_number", toolCalls)

			var tool tools.Tool
			var ok bool
			if registry != nil {
				tool, ok = registry.Get(block.Name)
			}
			if !ok {
				toolResults = append(toolResults, ContentBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   fmt.Sprintf("unknown tool: %s", block.Name),
					IsError:   true,
				})
				continue
			}

			toolCtx, toolSpan := tracer.Start(ctx, "tool.execute", trace.WithAttributes(
				attribute.String("gen_ai.operation.name", "tool.execute"),
				attribute.String("gen_ai.tool.name", block.Name),
				attribute.String("courier.run.id", runID),
				attribute.String("courier.tool.input", string(block.Input)),
			))
			toolSpan.AddEvent("tool.request", trace.WithAttributes(
				attribute.String("tool.request.body", string(block.Input)),
			))

			toolStart := time.Now()
			output, err := tool.Execute(toolCtx, block.Input)
			toolDur := time.Since(toolStart).Seconds()
			toolTime += toolDur
			if e.hooks.OnToolCall != nil {
				e.hooks.OnToolCall(block.Name, toolDur, len(block.Input), len(output), err != nil)
			}
			if err != nil {
				toolSpan.RecordError(err)
				toolSpan.SetAttributes(attribute.Bool("courier.tool.is_error", true))
				toolSpan.End()
				L.Error(ctx, err, "tool execution failed", "tool", block.Name)
				toolResults = append(toolResults, ContentBlock{
					Type:      "tool_result",
					ToolUseID: block.ID,
					Content:   fmt.Sprintf("tool error: %v", err),
					IsError:   true,
				})
				continue
			}

			toolSpan.SetAttributes(attribute.Bool("courier.tool.is_error", false))
			toolSpan.AddEvent("tool.result", trace.WithAttributes(
				attribute.String("tool.result.body", string(output)),
			))
			toolSpan.End()

			toolResults = append(toolResults, ContentBlock{
				Type:      "tool_result",
				ToolUseID: block.ID,
				Content:   string(output),
			})
		}

		messages = append(messages, Message{Role: "user", Content: toolResults})
		rr.Conversation.Turns = append(rr.Conversation.Turns, Turn{Role: "user", Content: toolResults})
	}

	rr.ToolsUsed = collectToolsUsed(rr.Conversation)
	rr.Duration = time.Since(start).Seconds()
	rr.LLMTime = llmTime
	rr.ToolTime = toolTime
	rr.InputTokens = totalIn
	rr.OutputTokens = totalOut
	rr.ToolCalls = toolCalls

	if e.hooks.OnComplete != nil {
		e.hooks.OnComplete(&CompleteEvent{
			Status:    rr.Status,
			Model:     rr.Model,
			Duration:  rr.Duration,
			LLMTime:   llmTime,
			ToolTime:  toolTime,
			TokensIn:  totalIn,
			TokensOut: totalOut,
			ToolCalls: toolCalls,
		})
	}

	L.Info(ctx, "response run finished",
		"status", rr.Status,
		"duration", rr.Duration,
		"tokens", totalIn+totalOut,
		"tool_calls", toolCalls,
		"tools_used", rr.ToolsUsed,
	)
	return rr
}

// collectToolsUsed extracts the distinct tool names invoked during the run,
// in first-use order. Best effort: malformed turns are skipped.
func collectToolsUsed(conv *Conversation) []string {
	if conv == nil {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	for _, turn := range conv.Turns {
		if turn.Role != "assistant" {
			continue
		}
		for _, block := range turn.Content {
			if block.Type != "tool_use" || block.Name == "" || seen[block.Name] {
				continue
			}
			seen[block.Name] = true
			names = append(names, block.Name)
		}
	}
	return names
}
