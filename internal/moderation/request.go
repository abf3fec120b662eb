package moderation

import "time"

// OrgType is the kind of business an organization request registers.
type OrgType string

const (
	OrgShop    OrgType = "shop"
	OrgService OrgType = "service"
	OrgSchool  OrgType = "school"
)

// OrgTypes lists the supported organization types in display order.
var OrgTypes = []OrgType{OrgShop, OrgService, OrgSchool}

// Status is the moderation state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusArchived Status = "archived"
)

// Statuses lists every moderation state.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusArchived}

// Resolved reports whether a decision has been made.
func (s Status) Resolved() bool { return s == StatusApproved || s == StatusRejected }

// Metadata is the part of a request its submitter owns and may edit.
type Metadata struct {
	Name           string  `json:"organization_name" validate:"required,max=200"`
	Type           OrgType `json:"organization_type" validate:"required,oneof=shop service school"`
	Description    string  `json:"description" validate:"required,max=4000"`
	Address        string  `json:"address" validate:"required,max=500"`
	Phone          string  `json:"phone" validate:"required,max=32"`
	Email          string  `json:"email" validate:"required,email,max=254"`
	Website        string  `json:"website,omitempty" validate:"omitempty,url,max=500"`
	WorkingHours   string  `json:"working_hours,omitempty" validate:"max=200"`
	AdditionalInfo string  `json:"additional_info,omitempty" validate:"max=4000"`
}

// Submitter carries the display fields of the user who files a request.
type Submitter struct {
	ID    string `json:"user_id"`
	Name  string `json:"user_name"`
	Email string `json:"user_email"`
}

// Request is an application by a user to be listed as an organization.
type Request struct {
	ID string `json:"id"`
	Submitter
	Metadata
	Status        Status     `json:"status"`
	ReviewComment string     `json:"review_comment,omitempty"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (r Request) clone() Request {
	if r.ReviewedAt != nil {
		t := *r.ReviewedAt
		r.ReviewedAt = &t
	}
	return r
}
