package exec

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/provider"
)

// executeModel builds the effective message list, invokes the model
// provider, and appends the assistant reply (spec.md §4.6 "model / llm").
// It accepts both the "model" and "llm" node-kind spellings and both
// "system_message" and "system_prompt" config spellings, per spec.md §9's
// open question on naming inconsistency between the two workflow families.
func executeModel(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	cfg := node.Config

	providerName := configString(cfg, "provider", "openai")
	model, err := deps.model(providerName)
	if err != nil {
		return Result{}, err
	}

	messages := buildEffectiveMessages(cfg, ec)

	var tools []provider.ToolBinding
	enableTools := configBool(cfg, "enable_tools", false)
	if enableTools && deps.Tools != nil {
		tools = collectToolBindings(cfg, deps.Tools)
	}

	req := provider.CompletionRequest{
		Model:       configString(cfg, "model", "gpt-4"),
		Messages:    messages,
		Temperature: configFloat(cfg, "temperature", 0.7),
		MaxTokens:   configInt(cfg, "max_tokens", 1000),
		Tools:       tools,
	}

	resp, err := model.Complete(ctx, req)
	if err != nil {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
	}

	clone := ec.Clone()
	clone.Messages = append(clone.Messages, resp.Message)

	usage := clone.Metadata["usage_metadata"]
	usageMap, _ := usage.(map[string]any)
	if usageMap == nil {
		usageMap = make(map[string]any)
	}
	usageMap["prompt_tokens"] = addInt(usageMap["prompt_tokens"], resp.Usage.PromptTokens)
	usageMap["completion_tokens"] = addInt(usageMap["completion_tokens"], resp.Usage.CompletionTokens)
	usageMap["total_tokens"] = addInt(usageMap["total_tokens"], resp.Usage.TotalTokens)
	clone.Metadata["usage_metadata"] = usageMap

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")

	deps.publish(ctx, domain.EventTokenUsage, clone, exited, map[string]any{
		"node_id":           node.ID,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":      resp.Usage.TotalTokens,
	})
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok",
		"has_tool_calls": resp.Message.HasToolCalls(),
	})

	return Result{Context: clone}, nil
}

func addInt(existing any, delta int) int {
	n, _ := existing.(int)
	return n + delta
}

// buildEffectiveMessages assembles the message list passed to the provider:
// an optional system message, the conversation summary (if any), the
// retrieval context as a second system message (if non-empty), then the
// accumulated conversation messages.
func buildEffectiveMessages(cfg map[string]any, ec *domain.ExecutionContext) []domain.Message {
	var out []domain.Message

	systemMessage := configString(cfg, "system_prompt", "")
	if systemMessage == "" {
		systemMessage = configString(cfg, "system_message", "")
	}
	if systemMessage != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: systemMessage})
	}
	if ec.ConversationSummary != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: "Conversation summary: " + ec.ConversationSummary})
	}
	if ec.RetrievalContext != "" {
		out = append(out, domain.Message{Role: domain.RoleSystem, Content: "Retrieved context:\n" + ec.RetrievalContext})
	}
	out = append(out, ec.Messages...)
	return out
}

// collectToolBindings resolves the tool names listed in config
// ("tools": []string) through the tool registry, skipping names the registry
// does not know. Without a "tools" list it returns no bindings.
func collectToolBindings(cfg map[string]any, tools ToolHandler) []provider.ToolBinding {
	names := stringSliceParam(cfg, "tools")
	bindings := make([]provider.ToolBinding, 0, len(names))
	for _, name := range names {
		if b, ok := tools.Binding(name); ok {
			bindings = append(bindings, b)
		}
	}
	return bindings
}

func stringSliceParam(cfg map[string]any, key string) []string {
	raw, ok := cfg[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
