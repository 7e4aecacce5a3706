package governor

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/funnel-optimizer/internal/config"
	"github.com/sells-group/funnel-optimizer/internal/detect"
	"github.com/sells-group/funnel-optimizer/internal/model"
)

// StageVariantWeights labels weight-rebalancing proposals, which come from
// the rebalancer rather than the bottleneck detector.
const StageVariantWeights = "variant_weights"

// StageLeadAllocation labels monthly lead-source share shifts.
const StageLeadAllocation = "lead_allocation"

// Rule is one row of the governance policy table. Rules are matched in
// order; the first match wins. A rule with MinSeverityPct only matches when
// the proposal's metric snapshot meets the threshold.
type Rule struct {
	Stage          string               `yaml:"stage"`
	MinSeverityPct float64              `yaml:"min_severity_pct,omitempty"`
	Category       model.ChangeCategory `yaml:"category"`
	Note           string               `yaml:"note,omitempty"`
}

// DefaultRules is the built-in policy table. Rewriting a first-impression
// script carries reputational risk, so an early-hangup breach always
// escalates; question reordering against low discovery completion is routine.
// The early-hangup threshold comes from policy so operators can tune it
// without an override file.
func DefaultRules(policy config.PolicyConfig) []Rule {
	return []Rule{
		{
			Stage:          detect.StageEarlyHangup,
			MinSeverityPct: policy.EarlyHangupEscalationPct,
			Category:       model.ChangeCategoryApproval,
			Note:           "opening script rewrite needs a human eye",
		},
		{
			Stage:    detect.StageDiscovery,
			Category: model.ChangeCategorySafe,
			Note:     "question reordering is reversible and low risk",
		},
		{
			Stage:    StageVariantWeights,
			Category: model.ChangeCategorySafe,
			Note:     "weight rebalancing is gated by sample floors upstream",
		},
		{
			Stage:    StageLeadAllocation,
			Category: model.ChangeCategorySafe,
			Note:     "shifts are single steps clamped to per-source bands",
		},
		{
			Stage:    detect.StageFollowUp,
			Category: model.ChangeCategorySafe,
			Note:     "follow-up cadence tweaks are reversible",
		},
		{
			Stage:    detect.StageGatekeeper,
			Category: model.ChangeCategoryApproval,
			Note:     "gatekeeper handling scripts touch compliance language",
		},
	}
}

// policyFile is the YAML shape of an operator override file.
type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a policy override file. Changing policy is a deliberate
// operator action, never a learned parameter.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "governor: read policy file %s", path)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrapf(err, "governor: parse policy file %s", path)
	}
	if len(pf.Rules) == 0 {
		return nil, eris.Errorf("governor: policy file %s has no rules", path)
	}
	for i, r := range pf.Rules {
		if r.Stage == "" {
			return nil, eris.Errorf("governor: policy file %s rule %d missing stage", path, i)
		}
		if r.Category != model.ChangeCategorySafe && r.Category != model.ChangeCategoryApproval {
			return nil, eris.Errorf("governor: policy file %s rule %d has invalid category %q", path, i, r.Category)
		}
	}
	return pf.Rules, nil
}
