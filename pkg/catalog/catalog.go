// Package catalog is the single source of truth for tool governance
// policy (spec §4.6): populated from static configuration for native
// tools at startup, and additively from MCP discovery at request time.
package catalog

import "strings"

// Cost is the coarse resource-cost band derived for a tool.
type Cost string

const (
	CostLow    Cost = "low"
	CostMedium Cost = "medium"
	CostHigh   Cost = "high"
)

// Sensitivity is the coarse data-sensitivity band derived for a tool.
type Sensitivity string

const (
	SensitivityPublic      Sensitivity = "public"
	SensitivityProprietary Sensitivity = "proprietary"
	SensitivitySensitive   Sensitivity = "sensitive"
)

// TrustLevel reflects how much an MCP server's own annotations are
// trusted, per McpServerConfig.trust_level.
type TrustLevel string

const (
	TrustUntrusted TrustLevel = "untrusted"
	TrustSandboxed TrustLevel = "sandboxed"
	TrustTrusted   TrustLevel = "trusted"
)

// Governance is the derived policy attached to a catalog entry.
type Governance struct {
	RequiresHITL    bool        `json:"requires_hitl"`
	Cost            Cost        `json:"cost"`
	DataSensitivity Sensitivity `json:"data_sensitivity"`
}

// Annotations mirrors the MCP tool annotation fields governance
// derivation reads.
type Annotations struct {
	ReadOnlyHint    bool
	DestructiveHint bool
}

// GovernanceOverride holds per-tool overrides from
// McpServerConfig.tool_governance_overrides; a nil field means "derive,
// don't override" (spec §4.6 step 4: "only provided fields replace the
// derived values").
type GovernanceOverride struct {
	RequiresHITL    *bool
	Cost            *Cost
	DataSensitivity *Sensitivity
}

// highRiskKeywords triggers escalation to requires_hitl regardless of
// annotations or trust level, per spec §4.6 step 2.
var highRiskKeywords = []string{"delete", "execute", "write", "payment", "drop", "remove", "transfer"}

func keywordEscalates(name, description string) bool {
	haystack := strings.ToLower(name + " " + description)
	for _, kw := range highRiskKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// DeriveGovernance implements spec §4.6's 4-step derivation: annotations
// → keyword escalation → trust-level clamp → per-tool override.
func DeriveGovernance(name, description string, ann Annotations, trust TrustLevel, override *GovernanceOverride) Governance {
	var g Governance
	switch {
	case ann.DestructiveHint:
		g = Governance{RequiresHITL: true, Cost: CostHigh, DataSensitivity: SensitivitySensitive}
	case ann.ReadOnlyHint:
		g = Governance{RequiresHITL: false, Cost: CostLow, DataSensitivity: SensitivityPublic}
	default:
		g = Governance{RequiresHITL: true, Cost: CostMedium, DataSensitivity: SensitivityProprietary}
	}

	keywordFloor := keywordEscalates(name, description)
	if keywordFloor {
		g.RequiresHITL = true
	}

	switch trust {
	case TrustTrusted:
		// annotation-derived value stands, but never below the
		// keyword-escalated floor.
		if keywordFloor {
			g.RequiresHITL = true
		}
	case TrustSandboxed, TrustUntrusted, "":
		// untrusted (the default) and sandboxed both force HITL; a
		// sandboxed server's per-tool override may still relax it below,
		// applied after this switch.
		g.RequiresHITL = true
	}

	if override != nil {
		if override.RequiresHITL != nil && trust != TrustUntrusted && trust != "" {
			g.RequiresHITL = *override.RequiresHITL
		}
		if override.Cost != nil {
			g.Cost = *override.Cost
		}
		if override.DataSensitivity != nil {
			g.DataSensitivity = *override.DataSensitivity
		}
	}

	return g
}

// PluginTool is one catalog entry.
type PluginTool struct {
	ToolID      string     `json:"tool_id"`
	PluginID    string     `json:"plugin_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Governance  Governance `json:"governance"`
	// AuthServer, when non-empty, names the OAuth2 authorization server
	// this tool's owning MCP server requires (pkg/oauth.ServerAuthConfig.AuthServer).
	AuthServer string   `json:"auth_server,omitempty"`
	Scopes     []string `json:"scopes,omitempty"`
}
