package gateway

import (
	"testing"

	"github.com/aschepis/backscratcher/gateway/llm"
)

func TestDetectTier(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int64
		toolCount int
		systemLen int
		want      Tier
	}{
		{"short and toolless", 100, 0, 0, TierFast},
		{"unset max tokens stays balanced", 0, 0, 0, TierBalanced},
		{"exactly at fast boundary", 200, 0, 500, TierFast},
		{"short but has tools", 100, 1, 0, TierBalanced},
		{"many tools", 4096, 20, 0, TierPowerful},
		{"tool count boundary stays balanced", 4096, 15, 0, TierBalanced},
		{"long system prompt", 4096, 0, 3001, TierPowerful},
		{"system length boundary stays balanced", 4096, 0, 3000, TierBalanced},
		{"default", 4096, 3, 1200, TierBalanced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectTier(tt.maxTokens, tt.toolCount, tt.systemLen)
			if got != tt.want {
				t.Errorf("DetectTier(%d, %d, %d) = %s, want %s",
					tt.maxTokens, tt.toolCount, tt.systemLen, got, tt.want)
			}
		})
	}
}

func TestSelectModelAutoMatchesExplicitTier(t *testing.T) {
	for _, provider := range []string{llm.ProviderAnthropic, llm.ProviderOpenAI} {
		auto := SelectModel(provider, TierAuto, 100, 0, 0)
		explicit := SelectModel(provider, TierFast, 0, 0, 0)
		if auto != explicit {
			t.Errorf("%s: auto-detected fast %q != explicit fast %q", provider, auto, explicit)
		}

		powerful := SelectModel(provider, TierAuto, 4096, 20, 0)
		if powerful != ModelForTier(provider, TierPowerful) {
			t.Errorf("%s: expected powerful model, got %q", provider, powerful)
		}
	}
}

func TestModelForTierDiffersPerProvider(t *testing.T) {
	anthropic := ModelForTier(llm.ProviderAnthropic, TierBalanced)
	openai := ModelForTier(llm.ProviderOpenAI, TierBalanced)
	if anthropic == openai {
		t.Errorf("expected distinct balanced models per provider, both %q", anthropic)
	}
}

func TestModelForTierUnknownProviderPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	ModelForTier("mystery", TierFast)
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in     string
		want   Tier
		wantOK bool
	}{
		{"auto", TierAuto, true},
		{"fast", TierFast, true},
		{"balanced", TierBalanced, true},
		{"powerful", TierPowerful, true},
		{"Powerful", TierPowerful, true},
		{"claude-sonnet-4-5", TierAuto, false},
		{"", TierAuto, false},
	}

	for _, tt := range tests {
		got, ok := ParseTier(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseTier(%q) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
