// Package bedrock adapts llm.Provider to the AWS Bedrock Runtime Converse
// API, giving the registry a third provider family alongside anthropic and
// openai for assistants configured with a "bedrock:<model-id>" model spec.
package bedrock

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/flowmind/agentrt/internal/llm"
)

// ConverseClient captures the subset of the Bedrock runtime client this
// adapter drives.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter.
type Options struct {
	Client       ConverseClient
	DefaultModel string
}

// Client implements llm.Provider via Bedrock's Converse API.
type Client struct {
	runtime ConverseClient
	model   string
}

// New builds a Client from the given options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("bedrock client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("default model is required")
	}
	return &Client{runtime: opts.Client, model: opts.DefaultModel}, nil
}

// Complete renders a single non-streaming completion via Converse.
func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) == 0 {
		return llm.Response{}, errors.New("messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	var system []types.SystemContentBlock
	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		System:   system,
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		cfg := &types.InferenceConfiguration{}
		if req.MaxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
		}
		if req.Temperature > 0 {
			cfg.Temperature = aws.Float32(float32(req.Temperature))
		}
		input.InferenceConfig = cfg
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return llm.Response{}, err
	}
	return translateOutput(out), nil
}

// Stream is not implemented by this adapter; callers fall back to Complete.
func (c *Client) Stream(context.Context, llm.Request) (llm.Streamer, error) {
	return nil, llm.ErrStreamingUnsupported
}

func translateOutput(out *bedrockruntime.ConverseOutput) llm.Response {
	var content []llm.Message
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if ok {
		var text strings.Builder
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*types.ContentBlockMemberText); ok {
				text.WriteString(tb.Value)
			}
		}
		if text.Len() > 0 {
			content = append(content, llm.Message{Role: "assistant", Content: text.String()})
		}
	}
	var usage llm.TokenUsage
	if out.Usage != nil {
		usage = llm.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return llm.Response{Content: content, Usage: usage, StopReason: string(out.StopReason)}
}
