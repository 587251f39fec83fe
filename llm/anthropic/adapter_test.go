package anthropic

import (
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/aschepis/backscratcher/gateway/llm"
)

func TestToMessageParamRoles(t *testing.T) {
	userMsg, err := ToMessageParam(llm.NewTextMessage(llm.RoleUser, "hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userMsg.Role != anthropic.MessageParamRoleUser {
		t.Errorf("Expected user role, got %v", userMsg.Role)
	}

	assistantMsg, err := ToMessageParam(llm.NewTextMessage(llm.RoleAssistant, "hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assistantMsg.Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("Expected assistant role, got %v", assistantMsg.Role)
	}
}

func TestToMessageParamToolUse(t *testing.T) {
	msg := llm.NewToolUseMessage([]llm.ToolUseBlock{
		{ID: "tu-1", Name: "get_weather", Input: map[string]interface{}{"city": "Paris"}},
	})

	param, err := ToMessageParam(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(param.Content) != 1 {
		t.Fatalf("Expected 1 content block, got %d", len(param.Content))
	}
	toolUse := param.Content[0].OfToolUse
	if toolUse == nil {
		t.Fatal("Expected tool use block")
	}
	if toolUse.ID != "tu-1" {
		t.Errorf("Expected tool use ID 'tu-1', got %q", toolUse.ID)
	}
	if toolUse.Name != "get_weather" {
		t.Errorf("Expected tool name 'get_weather', got %q", toolUse.Name)
	}
}

func TestToToolUnionParam(t *testing.T) {
	spec := llm.ToolSpec{
		Name:        "search",
		Description: "Search the web",
		Schema: llm.ToolSchema{
			Type:       "object",
			Properties: map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
			Required:   []string{"query"},
		},
	}

	param := ToToolUnionParam(&spec)
	if param.OfTool == nil {
		t.Fatal("Expected OfTool to be set")
	}
	if param.OfTool.Name != "search" {
		t.Errorf("Expected tool name 'search', got %q", param.OfTool.Name)
	}
	if param.OfTool.InputSchema.Type != "object" {
		t.Errorf("Expected schema type 'object', got %q", param.OfTool.InputSchema.Type)
	}
	if len(param.OfTool.InputSchema.Required) != 1 || param.OfTool.InputSchema.Required[0] != "query" {
		t.Errorf("Expected required [query], got %v", param.OfTool.InputSchema.Required)
	}
}

func TestValidateToolSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    llm.ToolSpec
		wantErr bool
	}{
		{
			name:    "valid object schema",
			spec:    llm.ToolSpec{Name: "search", Schema: llm.ToolSchema{Type: "object"}},
			wantErr: false,
		},
		{
			name:    "empty schema type defaults to object",
			spec:    llm.ToolSpec{Name: "search"},
			wantErr: false,
		},
		{
			name:    "missing name",
			spec:    llm.ToolSpec{Schema: llm.ToolSchema{Type: "object"}},
			wantErr: true,
		},
		{
			name:    "non-object schema",
			spec:    llm.ToolSpec{Name: "search", Schema: llm.ToolSchema{Type: "array"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateToolSpec(&tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateToolSpec() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
