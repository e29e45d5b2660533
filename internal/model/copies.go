package model

// EmailCopyConfig is the operator-editable blind-copy configuration.
// Values are comma-separated address lists.
type EmailCopyConfig struct {
	DefaultBcc  string            `json:"defaultBcc"`
	TemplateBcc map[string]string `json:"templateBcc"`
}

// RecipientOverrides is the resolved copy-recipient snapshot used for one dispatch
type RecipientOverrides struct {
	GlobalCc       []string
	GlobalBcc      []string
	PerTemplateBcc map[string][]string
}
