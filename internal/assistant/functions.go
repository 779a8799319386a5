package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Data provides the read-only account lookups exposed to the assistant. All
// queries go through database/sql so handlers cannot write anything.
type Data struct {
	db *sql.DB
}

// NewData builds the assistant's data access layer.
func NewData(db *sql.DB) *Data {
	if db == nil {
		panic("assistant: database handle cannot be nil")
	}
	return &Data{db: db}
}

// WorkspacePlan is one workspace a user belongs to, with its plan details.
type WorkspacePlan struct {
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	RoleName      string `json:"role_name"`
	PlanName      string `json:"plan_name"`
	OwnerEmail    string `json:"owner_email"`
	Status        string `json:"status"`
}

// UserPlanReport is the full cross-workspace answer for one user.
type UserPlanReport struct {
	Email      string          `json:"email"`
	FirstName  string          `json:"first_name"`
	LastName   string          `json:"last_name"`
	Status     string          `json:"status"`
	Workspaces []WorkspacePlan `json:"workspaces"`
	Active     int             `json:"active_workspaces"`
	Inactive   int             `json:"inactive_workspaces"`
}

// UserPlan returns every workspace the user has access to with plan and
// owner details.
func (d *Data) UserPlan(ctx context.Context, email string) (*UserPlanReport, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("assistant: user email required")
	}

	report := &UserPlanReport{Email: email}
	err := d.db.QueryRowContext(ctx,
		`SELECT first_name, last_name, status FROM users WHERE lower(email) = $1`,
		email,
	).Scan(&report.FirstName, &report.LastName, &report.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assistant: user not found: %s", email)
	}
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to look up user: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT w.id, w.name, m.role_name, COALESCE(p.plan_name, 'N/A'),
		       COALESCE(o.email, 'N/A'), w.status
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		JOIN users u ON u.id = m.user_id
		LEFT JOIN plans p ON p.id = w.plan_id
		LEFT JOIN users o ON o.id = w.owner_id
		WHERE lower(u.email) = $1
		ORDER BY w.id`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to list workspaces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ws WorkspacePlan
		if err := rows.Scan(&ws.WorkspaceID, &ws.WorkspaceName, &ws.RoleName, &ws.PlanName, &ws.OwnerEmail, &ws.Status); err != nil {
			return nil, fmt.Errorf("assistant: failed to scan workspace: %w", err)
		}
		report.Workspaces = append(report.Workspaces, ws)
		switch ws.Status {
		case "ACTIVE":
			report.Active++
		case "INACTIVE":
			report.Inactive++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assistant: failed to iterate workspaces: %w", err)
	}
	return report, nil
}

// CampaignSummary is one campaign row for the assistant.
type CampaignSummary struct {
	CampaignID string `json:"campaign_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Contacts   int    `json:"total_contacts"`
	Sent       int    `json:"emails_sent"`
	Replied    int    `json:"emails_replied"`
}

// Campaigns lists a user's campaigns, optionally filtered by status.
func (d *Data) Campaigns(ctx context.Context, email, status string, limit int) ([]CampaignSummary, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("assistant: user email required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT c.id, c.name, c.status, c.total_contacts, c.emails_sent, c.emails_replied
		FROM campaigns c
		JOIN workspace_members m ON m.workspace_id = c.workspace_id
		JOIN users u ON u.id = m.user_id
		WHERE lower(u.email) = $1`
	args := []any{email}
	if status != "" {
		query += ` AND c.status = $2`
		args = append(args, strings.ToUpper(status))
	}
	query += fmt.Sprintf(` ORDER BY c.created_at DESC LIMIT %d`, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []CampaignSummary
	for rows.Next() {
		var c CampaignSummary
		if err := rows.Scan(&c.CampaignID, &c.Name, &c.Status, &c.Contacts, &c.Sent, &c.Replied); err != nil {
			return nil, fmt.Errorf("assistant: failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assistant: failed to iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// EmailAccount is one sending mailbox.
type EmailAccount struct {
	Address    string `json:"address"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	DailyLimit int    `json:"daily_limit"`
	SentToday  int    `json:"sent_today"`
}

// EmailAccounts lists the mailboxes connected by a user.
func (d *Data) EmailAccounts(ctx context.Context, email string) ([]EmailAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("assistant: user email required")
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT a.address, a.provider, a.status, a.daily_limit, a.sent_today
		FROM email_accounts a
		JOIN workspace_members m ON m.workspace_id = a.workspace_id
		JOIN users u ON u.id = m.user_id
		WHERE lower(u.email) = $1
		ORDER BY a.address`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("assistant: failed to list email accounts: %w", err)
	}
	defer rows.Close()

	var accounts []EmailAccount
	for rows.Next() {
		var a EmailAccount
		if err := rows.Scan(&a.Address, &a.Provider, &a.Status, &a.DailyLimit, &a.SentToday); err != nil {
			return nil, fmt.Errorf("assistant: failed to scan email account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assistant: failed to iterate email accounts: %w", err)
	}
	return accounts, nil
}

// AccountHealth summarizes mailbox health for one user.
type AccountHealth struct {
	TotalAccounts  int      `json:"total_accounts"`
	ActiveAccounts int      `json:"active_accounts"`
	ErrorAccounts  []string `json:"error_accounts"`
}

// Health aggregates mailbox status counts.
func (d *Data) Health(ctx context.Context, email string) (*AccountHealth, error) {
	accounts, err := d.EmailAccounts(ctx, email)
	if err != nil {
		return nil, err
	}

	health := &AccountHealth{TotalAccounts: len(accounts)}
	for _, a := range accounts {
		switch a.Status {
		case "ACTIVE":
			health.ActiveAccounts++
		case "ERROR", "DISCONNECTED":
			health.ErrorAccounts = append(health.ErrorAccounts, a.Address)
		}
	}
	return health, nil
}

// RegisterDataFunctions wires the account lookups into a registry.
func RegisterDataFunctions(reg *Registry, data *Data) {
	emailParam := Param{Name: "user_email", Type: "string", Description: "Email of the user to check", Required: true}

	reg.RegisterSection("user_plans", "User plan checking, workspace membership, and billing information")
	reg.Register(Definition{
		Name:        "check_user_plan",
		Description: "Get user plan information and workspace details for all workspaces the user has access to",
		Section:     "user_plans",
		Params:      []Param{emailParam},
		Examples:    []string{`check_user_plan with args {"user_email": "user@example.com"}`},
		Handler: func(ctx context.Context, args map[string]string) (any, error) {
			return data.UserPlan(ctx, args["user_email"])
		},
	})

	reg.RegisterSection("campaigns", "Campaign management and diagnostics")
	reg.Register(Definition{
		Name:        "get_campaigns",
		Description: "Get list of campaigns for a user, optionally filtered by status",
		Section:     "campaigns",
		Params: []Param{
			emailParam,
			{Name: "status", Type: "string", Description: "Filter by campaign status (ACTIVE, PAUSED, COMPLETED)"},
			{Name: "limit", Type: "integer", Description: "Maximum number of campaigns to return (default 20)"},
		},
		Handler: func(ctx context.Context, args map[string]string) (any, error) {
			limit := 0
			if raw := args["limit"]; raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil {
					return nil, fmt.Errorf("assistant: invalid limit %q", raw)
				}
				limit = parsed
			}
			return data.Campaigns(ctx, args["user_email"], args["status"], limit)
		},
	})

	reg.RegisterSection("email_accounts", "Connected mailbox inventory and health")
	reg.Register(Definition{
		Name:        "get_email_accounts",
		Description: "List the mailboxes a user has connected, with limits and usage",
		Section:     "email_accounts",
		Params:      []Param{emailParam},
		Handler: func(ctx context.Context, args map[string]string) (any, error) {
			return data.EmailAccounts(ctx, args["user_email"])
		},
	})
	reg.Register(Definition{
		Name:        "check_account_health",
		Description: "Summarize mailbox health for a user: active counts and accounts in error",
		Section:     "email_accounts",
		Params:      []Param{emailParam},
		Handler: func(ctx context.Context, args map[string]string) (any, error) {
			return data.Health(ctx, args["user_email"])
		},
	})
}
