package conversation

// Treatment is the way an entry is presented to the user.
type Treatment int

const (
	TreatmentAssistantBubble Treatment = iota
	TreatmentUserBubble
	TreatmentChartPlot
	TreatmentLoadingIndicator
)

func (t Treatment) String() string {
	switch t {
	case TreatmentUserBubble:
		return "user-bubble"
	case TreatmentChartPlot:
		return "chart-plot"
	case TreatmentLoadingIndicator:
		return "loading-indicator"
	case TreatmentAssistantBubble:
		return "assistant-bubble"
	default:
		return "unknown"
	}
}

// Classify maps an entry to its treatment. Only the role is consulted.
func Classify(e Entry) Treatment {
	switch e.Role {
	case RoleUser:
		return TreatmentUserBubble
	case RoleChart:
		return TreatmentChartPlot
	case RoleLoading, RolePlaceholder:
		return TreatmentLoadingIndicator
	case RoleAssistant:
		return TreatmentAssistantBubble
	default:
		// Roles the client does not know about (system, tool, ...) still get shown.
		return TreatmentAssistantBubble
	}
}
