// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into outbound email.
package queue

// Event kinds understood by the email consumer.
const (
	KindUserRegistered = "user.registered"
	KindIssueCreated   = "issue.created"
	KindProfileUpdated = "profile.updated"
)

// EmailEvent is published whenever the application wants a transactional
// email delivered.  It carries enough information for the consumer to render
// and send the message without querying the primary database.
type EmailEvent struct {
	Kind             string `json:"kind"`
	To               string `json:"to"`
	Name             string `json:"name,omitempty"`
	IssueType        string `json:"issue_type,omitempty"`
	IssueTitle       string `json:"issue_title,omitempty"`
	IssueDescription string `json:"issue_description,omitempty"`
	OccurredAt       string `json:"occurred_at"`
}
