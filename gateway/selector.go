package gateway

import (
	"fmt"
	"strings"

	"github.com/aschepis/backscratcher/gateway/llm"
)

// Tier is a coarse cost/capability bucket mapped to a concrete model per
// provider.
type Tier string

const (
	// TierAuto means the tier should be detected from request signals.
	TierAuto Tier = ""
	// TierFast is the cheap, low-latency bucket.
	TierFast Tier = "fast"
	// TierBalanced is the default bucket.
	TierBalanced Tier = "balanced"
	// TierPowerful is the most capable (and expensive) bucket.
	TierPowerful Tier = "powerful"
)

// Auto-detection thresholds. Fixed policy constants, not learned.
const (
	fastMaxTokens     = 200
	powerfulToolCount = 15
	powerfulSystemLen = 3000
)

// tierModels maps (provider, tier) to a concrete model identifier.
// Immutable configuration data, exhaustive by construction: every provider
// the registry can produce has all three tiers.
var tierModels = map[string]map[Tier]string{
	llm.ProviderAnthropic: {
		TierFast:     "claude-haiku-4-5",
		TierBalanced: "claude-sonnet-4-5",
		TierPowerful: "claude-opus-4-1",
	},
	llm.ProviderOpenAI: {
		TierFast:     "gpt-4o-mini",
		TierBalanced: "gpt-4o",
		TierPowerful: "o3",
	},
	llm.ProviderOllama: {
		TierFast:     "llama3.2:3b",
		TierBalanced: "llama3.3",
		TierPowerful: "llama3.3:70b",
	},
}

// ParseTier interprets a model string as a tier shorthand. Returns TierAuto
// for "auto" and ok=false for anything that is not a tier name.
func ParseTier(s string) (Tier, bool) {
	switch strings.ToLower(s) {
	case "auto":
		return TierAuto, true
	case string(TierFast):
		return TierFast, true
	case string(TierBalanced):
		return TierBalanced, true
	case string(TierPowerful):
		return TierPowerful, true
	default:
		return TierAuto, false
	}
}

// DetectTier picks a tier from structural request signals: short tool-less
// requests go fast, tool-heavy or long-system-prompt requests go powerful,
// everything else is balanced.
func DetectTier(maxTokens int64, toolCount, systemLen int) Tier {
	if maxTokens > 0 && maxTokens <= fastMaxTokens && toolCount == 0 {
		return TierFast
	}
	if toolCount > powerfulToolCount || systemLen > powerfulSystemLen {
		return TierPowerful
	}
	return TierBalanced
}

// ModelForTier looks up the model id for a (provider, tier) pair. An
// undefined pair is a programming error, not a runtime condition: the table
// is exhaustive for every provider the registry constructs.
func ModelForTier(provider string, tier Tier) string {
	models, ok := tierModels[provider]
	if !ok {
		panic(fmt.Sprintf("no tier table for provider %q", provider))
	}
	model, ok := models[tier]
	if !ok {
		panic(fmt.Sprintf("no %s tier model for provider %q", tier, provider))
	}
	return model
}

// SelectModel resolves a model id for the provider. With an explicit tier it
// is a straight table lookup; with TierAuto the tier is detected from the
// request signals first.
func SelectModel(provider string, tier Tier, maxTokens int64, toolCount, systemLen int) string {
	if tier == TierAuto {
		tier = DetectTier(maxTokens, toolCount, systemLen)
	}
	return ModelForTier(provider, tier)
}
