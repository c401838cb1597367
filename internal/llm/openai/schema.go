package openai

import (
	sdk "github.com/openai/openai-go/v2"

	"ragorch/internal/llm"
)

// adaptSchemas converts the module's ToolSchema into OpenAI SDK tool params.
func adaptSchemas(schemas []llm.ToolSchema) []sdk.ChatCompletionToolUnionParam {
	out := make([]sdk.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        s.Name,
			Description: sdk.String(s.Description),
			Parameters:  s.Parameters,
		}))
	}
	return out
}

// adaptMessages converts the module's portable Message history into OpenAI
// SDK message params. Tool-call round-tripping is intentionally not
// supported: no component in this pipeline drives a dynamic tool registry
// through Provider.Chat, so assistant messages are always plain content.
func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "user":
			out = append(out, sdk.UserMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		case "tool":
			out = append(out, sdk.ToolMessage(m.Content, m.ToolID))
		}
	}
	return out
}
