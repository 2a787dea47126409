// Package asana models the upstream work-tracking API: typed resources,
// a Client interface consumed by the sync engine, and an HTTP
// implementation with cursor pagination and a Retry-After contract on 429.
//
// Rows are decoded explicitly at this boundary; interior code can assume
// a decoded resource is shaped correctly.
package asana

import "time"

// Ref is a minimal reference to another resource (gid + optional name).
type Ref struct {
	GID          string `json:"gid"`
	Name         string `json:"name,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
}

// User is a workspace user.
type User struct {
	GID   string  `json:"gid"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Photo *Photo  `json:"photo,omitempty"`
}

// Photo holds user avatar URLs at various sizes.
type Photo struct {
	Image60 *string `json:"image_60x60,omitempty"`
	Image128 *string `json:"image_128x128,omitempty"`
}

// Workspace is an Asana workspace.
type Workspace struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Project is a full project record.
type Project struct {
	GID          string  `json:"gid"`
	Name         string  `json:"name"`
	Owner        *Ref    `json:"owner,omitempty"`
	Team         *Ref    `json:"team,omitempty"`
	Workspace    *Ref    `json:"workspace,omitempty"`
	Archived     bool    `json:"archived"`
	IsTemplate   bool    `json:"is_template"`
	Color        *string `json:"color,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	HTMLNotes    *string `json:"html_notes,omitempty"`
	CreatedAt    *string `json:"created_at,omitempty"`
	ModifiedAt   *string `json:"modified_at,omitempty"`
	PermalinkURL *string `json:"permalink_url,omitempty"`
}

// ProjectRef is the light project row returned by team/portfolio listings.
type ProjectRef struct {
	GID      string `json:"gid"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Portfolio is a full portfolio record.
type Portfolio struct {
	GID          string  `json:"gid"`
	Name         string  `json:"name"`
	Owner        *Ref    `json:"owner,omitempty"`
	Workspace    *Ref    `json:"workspace,omitempty"`
	Public       bool    `json:"public"`
	Color        *string `json:"color,omitempty"`
	PermalinkURL *string `json:"permalink_url,omitempty"`
}

// PortfolioItem is an entry in a portfolio: a project or a sub-portfolio.
type PortfolioItem struct {
	GID          string `json:"gid"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// Team is a team record.
type Team struct {
	GID          string  `json:"gid"`
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	Organization *Ref    `json:"organization,omitempty"`
}

// TeamMember is the light user row returned by /teams/{gid}/users.
type TeamMember struct {
	GID   string  `json:"gid"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

// Section is a section within a project.
type Section struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

// Membership ties a task to a project, optionally within a section.
type Membership struct {
	Project Ref  `json:"project"`
	Section *Ref `json:"section,omitempty"`
}

// Tag is a task tag.
type Tag struct {
	GID  string  `json:"gid"`
	Name *string `json:"name,omitempty"`
}

// EnumOption is one choice of an enum custom field.
type EnumOption struct {
	GID     string  `json:"gid"`
	Name    string  `json:"name"`
	Color   *string `json:"color,omitempty"`
	Enabled bool    `json:"enabled"`
}

// DateValue is the structured value of a date custom field.
type DateValue struct {
	Date     *string `json:"date,omitempty"`
	DateTime *string `json:"date_time,omitempty"`
}

// CustomFieldValue is a custom field together with its value on a task.
type CustomFieldValue struct {
	GID             string       `json:"gid"`
	Name            *string      `json:"name,omitempty"`
	ResourceSubtype *string      `json:"resource_subtype,omitempty"`
	TextValue       *string      `json:"text_value,omitempty"`
	NumberValue     *float64     `json:"number_value,omitempty"`
	DateValue       *DateValue   `json:"date_value,omitempty"`
	EnumValue       *EnumOption  `json:"enum_value,omitempty"`
	MultiEnumValues []EnumOption `json:"multi_enum_values,omitempty"`
	People          []Ref        `json:"people_value,omitempty"`
	DisplayValue    *string      `json:"display_value,omitempty"`
}

// Task is a full task record.
type Task struct {
	GID          string             `json:"gid"`
	Name         *string            `json:"name,omitempty"`
	Notes        *string            `json:"notes,omitempty"`
	HTMLNotes    *string            `json:"html_notes,omitempty"`
	Assignee     *User              `json:"assignee,omitempty"`
	Completed    bool               `json:"completed"`
	CompletedAt  *string            `json:"completed_at,omitempty"`
	DueOn        *string            `json:"due_on,omitempty"`
	DueAt        *string            `json:"due_at,omitempty"`
	StartOn      *string            `json:"start_on,omitempty"`
	StartAt      *string            `json:"start_at,omitempty"`
	CreatedAt    *string            `json:"created_at,omitempty"`
	ModifiedAt   *string            `json:"modified_at,omitempty"`
	Parent       *Ref               `json:"parent,omitempty"`
	NumSubtasks  int                `json:"num_subtasks"`
	NumLikes     int                `json:"num_likes"`
	Memberships  []Membership       `json:"memberships,omitempty"`
	Tags         []Tag              `json:"tags,omitempty"`
	Followers    []Ref              `json:"followers,omitempty"`
	Dependencies []Ref              `json:"dependencies,omitempty"`
	CustomFields []CustomFieldValue `json:"custom_fields,omitempty"`
	PermalinkURL *string            `json:"permalink_url,omitempty"`
}

// Story is an activity entry on a task; comments are stories with
// resource_subtype "comment_added".
type Story struct {
	GID             string  `json:"gid"`
	ResourceSubtype *string `json:"resource_subtype,omitempty"`
	Text            *string `json:"text,omitempty"`
	HTMLText        *string `json:"html_text,omitempty"`
	CreatedAt       *string `json:"created_at,omitempty"`
	CreatedBy       *User   `json:"created_by,omitempty"`
}

// StatusUpdate is a project or portfolio status update.
type StatusUpdate struct {
	GID        string  `json:"gid"`
	Title      *string `json:"title,omitempty"`
	Text       *string `json:"text,omitempty"`
	HTMLText   *string `json:"html_text,omitempty"`
	StatusType *string `json:"status_type,omitempty"`
	CreatedAt  *string `json:"created_at,omitempty"`
	CreatedBy  *User   `json:"created_by,omitempty"`
}

// Favorite is an entry from the user's favorites list.
type Favorite struct {
	GID          string  `json:"gid"`
	Name         *string `json:"name,omitempty"`
	ResourceType string  `json:"resource_type"`
}

// Event is one entry from the events-delta endpoint.
type Event struct {
	Resource Ref    `json:"resource"`
	Action   string `json:"action"`
	Parent   *Ref   `json:"parent,omitempty"`
}

// EventsPage is the result of an events-delta poll: the changes since the
// supplied token plus the replacement token to store.
type EventsPage struct {
	Events    []Event
	NextToken string
	HasMore   bool
}

// TaskListOptions narrows a task listing.
type TaskListOptions struct {
	// ModifiedSince limits results to tasks modified at or after this time.
	ModifiedSince time.Time
	// CompletedSince excludes tasks completed before this time (project
	// task listings support this where modified_since is unavailable).
	CompletedSince time.Time
	// AssigneeGID restricts workspace task searches to one assignee.
	AssigneeGID string
}
