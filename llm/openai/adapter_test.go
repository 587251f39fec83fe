package openai

import (
	"encoding/json"
	"testing"

	"github.com/aschepis/backscratcher/gateway/llm"
	openai "github.com/sashabaranov/go-openai"
)

func TestToOpenAIMessageText(t *testing.T) {
	msgs, err := ToOpenAIMessage(llm.NewTextMessage(llm.RoleUser, "hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleUser {
		t.Errorf("Expected user role, got %q", msgs[0].Role)
	}
	if msgs[0].Content != "hello" {
		t.Errorf("Expected content 'hello', got %q", msgs[0].Content)
	}
}

func TestToOpenAIMessageToolUse(t *testing.T) {
	msg := llm.NewToolUseMessage([]llm.ToolUseBlock{
		{ID: "call-1", Name: "get_weather", Input: map[string]interface{}{"city": "Paris"}},
	})

	msgs, err := ToOpenAIMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	if len(msgs[0].ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(msgs[0].ToolCalls))
	}

	call := msgs[0].ToolCalls[0]
	if call.ID != "call-1" {
		t.Errorf("Expected tool call ID 'call-1', got %q", call.ID)
	}
	if call.Function.Name != "get_weather" {
		t.Errorf("Expected function name 'get_weather', got %q", call.Function.Name)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		t.Fatalf("Arguments are not valid JSON: %v", err)
	}
	if args["city"] != "Paris" {
		t.Errorf("Expected city 'Paris', got %v", args["city"])
	}
}

func TestToOpenAIMessageToolResultsExpand(t *testing.T) {
	msg := llm.NewToolResultMessage([]llm.ToolResultBlock{
		{ID: "call-1", Content: `{"temp": 18}`},
		{ID: "call-2", Content: `{"temp": 22}`},
	})

	msgs, err := ToOpenAIMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 tool messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Role != openai.ChatMessageRoleTool {
			t.Errorf("message %d: expected tool role, got %q", i, m.Role)
		}
	}
	if msgs[0].ToolCallID != "call-1" || msgs[1].ToolCallID != "call-2" {
		t.Errorf("Tool call IDs not preserved: %q, %q", msgs[0].ToolCallID, msgs[1].ToolCallID)
	}
}

func TestToOpenAITool(t *testing.T) {
	spec := llm.ToolSpec{
		Name:        "search",
		Description: "Search the web",
		Schema: llm.ToolSchema{
			Properties: map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			Required:   []string{"query"},
		},
	}

	tool, err := ToOpenAITool(&spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.Function.Name != "search" {
		t.Errorf("Expected function name 'search', got %q", tool.Function.Name)
	}

	params, ok := tool.Function.Parameters.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected parameters map, got %T", tool.Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("Expected empty schema type to default to 'object', got %v", params["type"])
	}
}

func TestToOpenAIToolMissingName(t *testing.T) {
	if _, err := ToOpenAITool(&llm.ToolSpec{}); err == nil {
		t.Error("Expected error for tool spec without a name")
	}
}

func TestFromOpenAIToolCallRoundTrip(t *testing.T) {
	original := llm.NewToolUseMessage([]llm.ToolUseBlock{
		{ID: "call-1", Name: "get_weather", Input: map[string]interface{}{"city": "Paris"}},
	})

	msgs, err := ToOpenAIMessage(original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	block, err := FromOpenAIToolCall(msgs[0].ToolCalls[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.ID != "call-1" {
		t.Errorf("Expected ID 'call-1', got %q", block.ID)
	}
	if block.Name != "get_weather" {
		t.Errorf("Expected name 'get_weather', got %q", block.Name)
	}
	if block.Input["city"] != "Paris" {
		t.Errorf("Expected input city 'Paris', got %v", block.Input["city"])
	}
}

func TestFromOpenAIToolCallMalformedArguments(t *testing.T) {
	block, err := FromOpenAIToolCall(openai.ToolCall{
		ID:       "call-1",
		Type:     openai.ToolTypeFunction,
		Function: openai.FunctionCall{Name: "search", Arguments: "{not json"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(block.Input) != 0 {
		t.Errorf("Expected empty input for malformed arguments, got %v", block.Input)
	}
}
