package ratelimit

import (
	"strings"

	"github.com/aiwf/engine/common/models"
)

// Tier buckets workflows by how much model inference a run will cost.
type Tier string

const (
	// TierBasic covers workflows with no AI nodes.
	TierBasic Tier = "basic"
	// TierStandard covers workflows with one or two AI nodes.
	TierStandard Tier = "standard"
	// TierHeavy covers workflows with three or more AI nodes.
	TierHeavy Tier = "heavy"
)

// TierConfig is the per-tier run-start budget.
type TierConfig struct {
	Limit         int64
	WindowSeconds int
}

var tierConfigs = map[Tier]TierConfig{
	TierBasic:    {Limit: 100, WindowSeconds: 60},
	TierStandard: {Limit: 20, WindowSeconds: 60},
	TierHeavy:    {Limit: 5, WindowSeconds: 60},
}

const (
	globalLimit         = 1000
	globalWindowSeconds = 60
)

// Config returns the tier's budget. Unknown tiers get the most
// restrictive budget.
func (t Tier) Config() TierConfig {
	if cfg, ok := tierConfigs[t]; ok {
		return cfg
	}
	return tierConfigs[TierHeavy]
}

// ClassifyWorkflow assigns a tier from the workflow's AI node count.
func ClassifyWorkflow(nodes []models.Node) Tier {
	aiNodes := 0
	for _, n := range nodes {
		if strings.HasPrefix(n.Type, "ai.") {
			aiNodes++
		}
	}
	switch {
	case aiNodes == 0:
		return TierBasic
	case aiNodes <= 2:
		return TierStandard
	default:
		return TierHeavy
	}
}
