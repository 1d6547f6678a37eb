package simulation

import "github.com/nvandessel/viralsim/internal/trigger"

func triggerDecision(delight float64, action string) trigger.Decision {
	return trigger.Decision{
		PersonaID:     "p1",
		ShouldRefer:   true,
		HasSignal:     true,
		Delight:       delight,
		TriggerAction: action,
	}
}
