package permission

// RiskLevel grades how dangerous an operation is.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Action is what the engine does with a request at a given risk level.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionPrompt Action = "prompt"
	ActionBlock  Action = "block"
)

// Assessment is the outcome of classifying one tool request.
type Assessment struct {
	RiskLevel   RiskLevel `json:"risk_level"`
	Action      Action    `json:"action"`
	Reasons     []string  `json:"reasons,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Decision is the user's answer to a permission prompt.
type Decision string

const (
	DecisionAllowOnce   Decision = "allow_once"
	DecisionDenyOnce    Decision = "deny_once"
	DecisionAlwaysAllow Decision = "always_allow"
	DecisionAlwaysDeny  Decision = "always_deny"
)

// Preference is a persisted standing decision for one tool. The values
// are the on-disk format of permissions.json.
type Preference string

const (
	PreferenceAlwaysAllow Preference = "allow"
	PreferenceAlwaysDeny  Preference = "deny"
)

// Request is one permission question put to the user.
type Request struct {
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args"`
	Assessment Assessment     `json:"assessment"`
}
