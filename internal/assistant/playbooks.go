package assistant

// Playbook is a predefined step sequence for a recurring investigation.
type Playbook struct {
	Name        string
	Description string
	Steps       []string
}

var playbooks = map[string]Playbook{
	"campaign_diagnosis": {
		Name:        "Campaign Not Sending Diagnosis",
		Description: "Step-by-step guide to diagnose why campaigns are not sending emails",
		Steps: []string{
			"Check campaign status and configuration",
			"Verify email accounts are active and healthy",
			"Check if campaign has sufficient email accounts",
			"Verify campaign scheduling and timing settings",
			"Check for rate limiting or delivery issues",
			"Identify specific bottleneck or failure point",
		},
	},
	"user_plan_diagnosis": {
		Name:        "User Plan and Access Issues",
		Description: "Diagnose user plan, workspace, and access problems",
		Steps: []string{
			"Get user account information and current plan",
			"Check workspace membership and permissions",
			"Verify plan limits and current usage",
			"Identify specific access limitation or issue",
		},
	},
	"email_health": {
		Name:        "Email Account Health Check",
		Description: "Comprehensive health check for email accounts",
		Steps: []string{
			"Get all email accounts for user/workspace",
			"Check account status and last activity",
			"Check sending limits and current usage",
			"Identify accounts needing attention",
		},
	},
}

// GetPlaybook returns a playbook by key.
func GetPlaybook(name string) (Playbook, bool) {
	pb, ok := playbooks[name]
	return pb, ok
}

// ListPlaybooks maps playbook keys to their descriptions.
func ListPlaybooks() map[string]string {
	out := make(map[string]string, len(playbooks))
	for name, pb := range playbooks {
		out[name] = pb.Description
	}
	return out
}
