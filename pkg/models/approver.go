package models

import "slices"

type ApproverKind string

const (
	ApproverKindUser  ApproverKind = "user"
	ApproverKindGroup ApproverKind = "group"
)

// ApproverIdentity is the concrete person or group resolved for a step.
type ApproverIdentity struct {
	ID      string       `json:"id"`
	Name    string       `json:"name,omitempty"`
	Kind    ApproverKind `json:"kind"`
	Members []string     `json:"members,omitempty"`
}

// Includes reports whether actorID is this approver or, for a group, one of its members.
func (a ApproverIdentity) Includes(actorID string) bool {
	if actorID == "" {
		return false
	}

	if a.ID == actorID {
		return true
	}

	return a.Kind == ApproverKindGroup && slices.Contains(a.Members, actorID)
}

// RequesterContext is the organizational context of the person submitting a request.
type RequesterContext struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department"`
	Company    string `json:"company"`
}
