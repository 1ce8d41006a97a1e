// Package openai adapts llm.Provider to the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowmind/agentrt/internal/llm"
)

// ChatClient captures the subset of the OpenAI SDK client this adapter
// drives, so tests can substitute a fake.
type ChatClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Client implements llm.Provider via the OpenAI Chat Completions API.
type Client struct {
	chat  ChatClient
	model string
}

// New builds a Client from the given options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{chat: opts.Client, model: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP
// transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	sdkClient := openai.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: chatCompletionsAdapter{&sdkClient}, DefaultModel: defaultModel})
}

type chatCompletionsAdapter struct {
	client *openai.Client
}

func (a chatCompletionsAdapter) New(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return a.client.Chat.Completions.New(ctx, params)
}

// Complete renders a single non-streaming completion.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return llm.Response{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
		Tools:    tools,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return llm.Response{}, err
	}
	return translateResponse(resp), nil
}

// Stream is not implemented by this adapter; callers fall back to Complete.
func (c *Client) Stream(context.Context, llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func encodeTools(defs []llm.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(d.InputSchema),
			},
		})
	}
	return out, nil
}

func translateResponse(resp *openai.ChatCompletion) llm.Response {
	var content []llm.Message
	var calls []llm.ToolCall
	var usage llm.TokenUsage
	var stop string
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if strings.TrimSpace(choice.Message.Content) != "" {
			content = append(content, llm.Message{Role: "assistant", Content: choice.Message.Content})
		}
		for _, call := range choice.Message.ToolCalls {
			calls = append(calls, llm.ToolCall{
				ID:      call.ID,
				Name:    call.Function.Name,
				Payload: parseArguments(call.Function.Arguments),
			})
		}
		stop = string(choice.FinishReason)
	}
	usage = llm.TokenUsage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	return llm.Response{Content: content, ToolCalls: calls, Usage: usage, StopReason: stop}
}

func parseArguments(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return map[string]any{"raw": raw}
	}
	return payload
}
