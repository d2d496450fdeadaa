package model

import "time"

// Issue type, status and priority enumerations.  Values are stored verbatim
// in the `issues` table and exchanged verbatim over the API.
const (
	IssueTypeCloudSecurity    = "CLOUD_SECURITY"
	IssueTypeRedTeamAssesment = "RETEAM_ASSESSMENT"
	IssueTypeVAPT             = "VAPT"

	IssueStatusOpen       = "OPEN"
	IssueStatusInProgress = "IN_PROGRESS"
	IssueStatusResolved   = "RESOLVED"
	IssueStatusClosed     = "CLOSED"

	IssuePriorityLow      = "LOW"
	IssuePriorityMedium   = "MEDIUM"
	IssuePriorityHigh     = "HIGH"
	IssuePriorityCritical = "CRITICAL"
)

// ValidIssueType reports whether t is one of the known issue types.
func ValidIssueType(t string) bool {
	switch t {
	case IssueTypeCloudSecurity, IssueTypeRedTeamAssesment, IssueTypeVAPT:
		return true
	}
	return false
}

// ValidIssueStatus reports whether s is one of the known statuses.
func ValidIssueStatus(s string) bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved, IssueStatusClosed:
		return true
	}
	return false
}

// ValidIssuePriority reports whether p is one of the known priorities.
func ValidIssuePriority(p string) bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh, IssuePriorityCritical:
		return true
	}
	return false
}

// Issue mirrors the `issues` table.  Every issue is owned by exactly one
// user; all reads and writes are scoped by (id, user_id).
type Issue struct {
	ID          uint64    // issues.id
	UserID      uint64    // issues.user_id
	Type        string    // issues.type
	Title       string    // issues.title
	Description string    // issues.description
	Status      string    // issues.status
	Priority    string    // issues.priority
	CreatedAt   time.Time // issues.created_at
	UpdatedAt   time.Time // issues.updated_at
}
