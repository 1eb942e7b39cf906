package health

import "github.com/cliaimonitor/agentctl/internal/types"

// AgentMetrics is the rolling performance data the composite health
// score is computed from, following internal/metrics/collector.go's
// per-agent accumulator fields.
type AgentMetrics struct {
	TasksCompleted       int
	TasksFailed          int
	ConsecutiveRejects   int
	AvgResponseMillis    float64
	ExpectedResponseMillis float64
}

// Score computes the four composite-health components and their
// weighted overall, following the responsiveness/performance/
// reliability/resourceUsage breakdown the health monitor contract
// names.
func Score(m AgentMetrics, cpuPercent, memPercent float64) types.HealthSnapshot {
	responsiveness := responsivenessScore(m)
	performance := performanceScore(m)
	reliability := reliabilityScore(m)
	resourceUsage := resourceUsageScore(cpuPercent, memPercent)

	overall := 0.35*responsiveness + 0.25*performance + 0.25*reliability + 0.15*resourceUsage

	return types.HealthSnapshot{
		Responsiveness: responsiveness,
		Performance:    performance,
		Reliability:    reliability,
		ResourceUsage:  resourceUsage,
		Overall:        overall,
	}
}

func responsivenessScore(m AgentMetrics) float64 {
	if m.ExpectedResponseMillis <= 0 || m.AvgResponseMillis <= 0 {
		return 1
	}
	ratio := m.ExpectedResponseMillis / m.AvgResponseMillis
	return clamp01(ratio)
}

func performanceScore(m AgentMetrics) float64 {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 1
	}
	return clamp01(float64(m.TasksCompleted) / float64(total))
}

func reliabilityScore(m AgentMetrics) float64 {
	if m.ConsecutiveRejects == 0 {
		return 1
	}
	// Each consecutive reject erodes reliability by 20%, floor at 0.
	return clamp01(1 - 0.2*float64(m.ConsecutiveRejects))
}

func resourceUsageScore(cpuPercent, memPercent float64) float64 {
	usage := (cpuPercent + memPercent) / 2
	return clamp01(1 - usage/100)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// IsCritical reports whether snapshot warrants the critical-health
// restart rule.
func IsCritical(snap types.HealthSnapshot, threshold float64) bool {
	return snap.Overall < threshold
}
