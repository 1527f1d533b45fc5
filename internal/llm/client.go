package llm

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-agent/internal/model"
)

// Client defines the model API surface the orchestrator depends on. Tests
// substitute a scripted fake.
type Client interface {
	// StreamMessage runs one model turn, invoking onDelta for each text
	// fragment as it streams, and returns the accumulated result.
	StreamMessage(ctx context.Context, req StreamRequest, onDelta func(text string)) (*TurnResult, error)
}

// ToolDef describes one tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Turn is one conversational turn in model wire order.
type Turn struct {
	Role        model.Role
	Content     string
	ToolCalls   []model.ToolCall
	ToolResults []model.ToolResult
}

// StreamRequest is our own request type for StreamMessage.
type StreamRequest struct {
	Model     string
	MaxTokens int64
	System    string
	Turns     []Turn
	Tools     []ToolDef
}

// TokenUsage tracks token consumption for one turn.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// TurnResult is the accumulated outcome of one streamed model turn.
type TurnResult struct {
	Text       string
	ToolCalls  []model.ToolCall
	StopReason string
	Usage      TokenUsage
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a model client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) StreamMessage(ctx context.Context, req StreamRequest, onDelta func(string)) (*TurnResult, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Turns),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toSDKTools(req.Tools)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	message := sdk.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, eris.Wrap(err, "llm: accumulate event")
		}
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if onDelta != nil {
					onDelta(delta.Text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, eris.Wrap(err, "llm: stream message")
	}

	return fromSDKMessage(&message), nil
}

func toSDKMessages(turns []Turn) []sdk.MessageParam {
	msgs := make([]sdk.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case model.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(t.ToolCalls))
			if t.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(t.Content))
			}
			for _, tc := range t.ToolCalls {
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: json.RawMessage(tc.Input),
					},
				})
			}
			msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
		case model.RoleToolResult:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(t.ToolResults))
			for _, tr := range t.ToolResults {
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolResult: &sdk.ToolResultBlockParam{
						ToolUseID: tr.ToolUseID,
						IsError:   sdk.Bool(tr.IsError),
						Content: []sdk.ToolResultBlockParamContentUnion{
							{OfText: &sdk.TextBlockParam{Text: tr.Content}},
						},
					},
				})
			}
			msgs = append(msgs, sdk.NewUserMessage(blocks...))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(t.Content)))
		}
	}
	return msgs
}

func toSDKTools(tools []ToolDef) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: t.Properties,
					Required:   t.Required,
				},
			},
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *TurnResult {
	res := &TurnResult{
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			res.Text += variant.Text
		case sdk.ToolUseBlock:
			res.ToolCalls = append(res.ToolCalls, model.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.JSON.Input.Raw()),
			})
		}
	}
	return res
}
