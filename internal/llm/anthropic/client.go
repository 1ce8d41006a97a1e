// Package anthropic adapts llm.Provider to the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowmind/agentrt/internal/llm"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// adapter drives, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// Options configures the adapter.
type Options struct {
	Client       MessagesClient
	DefaultModel string
}

// Client implements llm.Provider via the Anthropic Messages API.
type Client struct {
	messages MessagesClient
	model    string
}

// New builds a Client from the given options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("anthropic client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{messages: opts.Client, model: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// transport.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	sdkClient := anthropic.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: sdkMessagesAdapter{&sdkClient}, DefaultModel: defaultModel})
}

type sdkMessagesAdapter struct {
	client *anthropic.Client
}

func (a sdkMessagesAdapter) New(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return a.client.Messages.New(ctx, params)
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
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	var system string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if tools, err := encodeTools(req.Tools); err != nil {
		return llm.Response{}, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, err
	}
	return translateResponse(resp), nil
}

// Stream is not implemented by this adapter; callers fall back to Complete.
func (c *Client) Stream(context.Context, llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func encodeTools(defs []llm.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schema, err := toInputSchema(d.InputSchema)
		if err != nil {
			return nil, err
		}
		out = append(out, anthropic.ToolUnionParamOfTool(schema, d.Name))
	}
	return out, nil
}

func toInputSchema(raw map[string]any) (anthropic.ToolInputSchemaParam, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(b, &schema); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	return schema, nil
}

func translateResponse(resp *anthropic.Message) llm.Response {
	var content []llm.Message
	var calls []llm.ToolCall
	var text strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			var payload any
			_ = json.Unmarshal(b.Input, &payload)
			calls = append(calls, llm.ToolCall{ID: b.ID, Name: b.Name, Payload: payload})
		}
	}
	if text.Len() > 0 {
		content = append(content, llm.Message{Role: "assistant", Content: text.String()})
	}
	return llm.Response{
		Content:   content,
		ToolCalls: calls,
		Usage: llm.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		StopReason: string(resp.StopReason),
	}
}
