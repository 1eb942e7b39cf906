package supervisor

import "github.com/cliaimonitor/agentctl/internal/types"

// decideOnExit chooses the next status and whether a restart should be
// attempted, given the exit was or wasn't requested by a caller and how
// many consecutive crashes have already occurred.
func decideOnExit(stopRequested bool, crashed bool, restartCount, maxRestarts int) (next types.AgentStatus, shouldRestart bool) {
	if stopRequested {
		return types.AgentStopped, false
	}
	if !crashed {
		return types.AgentStopped, false
	}
	if restartCount >= maxRestarts {
		return types.AgentError, false
	}
	return types.AgentCrashed, true
}

// validTransitions enumerates the lifecycle edges the supervisor allows,
// guarding against the manager or health monitor requesting an
// impossible move (e.g. restarting an agent that is already stopped).
var validTransitions = map[types.AgentStatus]map[types.AgentStatus]bool{
	types.AgentStarting: {types.AgentRunning: true, types.AgentError: true},
	types.AgentRunning:  {types.AgentStopping: true, types.AgentStopped: true, types.AgentCrashed: true, types.AgentError: true},
	types.AgentStopping: {types.AgentStopped: true},
	types.AgentStopped:  {types.AgentRemoved: true},
	types.AgentCrashed:  {types.AgentStarting: true, types.AgentRemoved: true},
	types.AgentError:    {types.AgentStarting: true, types.AgentRemoved: true},
	types.AgentRemoved:  {},
}

// isValidTransition reports whether moving from `from` to `to` is
// allowed by the lifecycle state machine.
func isValidTransition(from, to types.AgentStatus) bool {
	if from == to {
		return false // no-op guard, mirroring the teacher's same-state skip
	}
	edges, ok := validTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
