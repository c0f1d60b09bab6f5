package contracts

import (
	"math"

	"github.com/kingrea/loom/internal/workflow"
)

// Metrics quantifies the structural quality of a workflow document.
// Completeness is the fraction of declared dependencies that resolve to a
// declared module. Connectivity is the fraction of modules touching at least
// one dependency edge. Balance measures how evenly modules spread across
// phases (1 means perfectly even). All three live in [0, 1].
type Metrics struct {
	Completeness float64 `json:"completeness"`
	Connectivity float64 `json:"connectivity"`
	Balance      float64 `json:"balance"`
}

// Overall averages the individual metrics.
func (m Metrics) Overall() float64 {
	return (m.Completeness + m.Connectivity + m.Balance) / 3
}

// Score computes structural metrics for a workflow document.
func Score(def workflow.Definition) Metrics {
	totalModules := 0
	totalDeps := 0
	resolvedDeps := 0
	connected := 0
	phaseSizes := make([]int, 0, len(def.Phases))

	for _, phase := range def.Phases {
		declared := map[string]struct{}{}
		size := 0
		for _, ref := range phase.Modules {
			if ref.ID == "" {
				continue
			}
			declared[ref.ID] = struct{}{}
			size++
		}
		phaseSizes = append(phaseSizes, size)
		totalModules += size

		touched := map[string]struct{}{}
		for _, ref := range phase.Modules {
			if ref.ID == "" {
				continue
			}
			for _, dep := range ref.DependsOn {
				totalDeps++
				if _, ok := declared[dep]; ok && dep != ref.ID {
					resolvedDeps++
					touched[ref.ID] = struct{}{}
					touched[dep] = struct{}{}
				}
			}
		}
		connected += len(touched)
	}

	metrics := Metrics{Completeness: 1, Connectivity: 0, Balance: 1}
	if totalDeps > 0 {
		metrics.Completeness = float64(resolvedDeps) / float64(totalDeps)
	}
	if totalModules > 0 {
		metrics.Connectivity = float64(connected) / float64(totalModules)
	}
	metrics.Balance = balance(phaseSizes)
	return metrics
}

// balance is 1 minus the normalized deviation of phase sizes from their mean.
func balance(sizes []int) float64 {
	if len(sizes) == 0 {
		return 0
	}
	if len(sizes) == 1 {
		return 1
	}
	total := 0
	for _, size := range sizes {
		total += size
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(sizes))
	var variance float64
	for _, size := range sizes {
		diff := float64(size) - mean
		variance += diff * diff
	}
	variance /= float64(len(sizes))
	deviation := math.Sqrt(variance) / mean
	if deviation > 1 {
		deviation = 1
	}
	return 1 - deviation
}
