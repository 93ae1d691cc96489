package domain

import (
	"regexp"
	"strings"
)

// Status is a workflow column on the board. The backend stores it as a free
// string, so anything read from the wire goes through NormalizeStatus first.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses returns the fixed column set in display order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusDone}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeStatus folds casing and whitespace and maps anything unrecognized
// to OPEN so no task is ever dropped from the board.
func NormalizeStatus(raw string) Status {
	v := whitespaceRun.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "_")
	switch Status(v) {
	case StatusOpen, StatusInProgress, StatusDone:
		return Status(v)
	default:
		return StatusOpen
	}
}

// Label returns the human column header for a status.
func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "In Progress"
	case StatusDone:
		return "Done"
	default:
		return "To Do"
	}
}

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Assignee is the user object embedded in task responses.
type Assignee struct {
	ID        int64  `json:"id,omitempty"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
}

// DisplayName joins first/last name and falls back to the email.
func (a Assignee) DisplayName() string {
	return joinName(a.Firstname, a.Lastname, a.Email)
}

type Task struct {
	ID          int64  `json:"id,omitempty"`
	Key         string `json:"key,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Status is kept raw as received; board code normalizes on use.
	Status       string    `json:"status,omitempty"`
	Order        int       `json:"order"`
	Assignee     *Assignee `json:"assignee,omitempty"`
	AssigneeID   int64     `json:"assigneeId,omitempty"`
	AssigneeName string    `json:"assigneeName,omitempty"`
	DueDate      string    `json:"dueDate,omitempty"`
	IssueType    string    `json:"issueType,omitempty"`
	Priority     string    `json:"priority,omitempty"`
	StoryPoints  int       `json:"storyPoints,omitempty"`
	ProjectID    int64     `json:"projectId,omitempty"`
	CreatedAt    string    `json:"createdAt,omitempty"`
	UpdatedAt    string    `json:"updatedAt,omitempty"`

	// LocalID tags unsaved drafts so the board can track them before the
	// server assigns identity. Never serialized.
	LocalID string `json:"-"`
}

// Saved reports whether the task has server identity. Unsaved drafts are
// excluded from persistence entirely.
func (t Task) Saved() bool { return t.ID != 0 }

// Decorate derives AssigneeID and AssigneeName from the embedded assignee
// object, falling back to the contact email, then empty. Idempotent.
func Decorate(t Task) Task {
	if t.Assignee != nil {
		if t.Assignee.ID != 0 {
			t.AssigneeID = t.Assignee.ID
		}
		if name := t.Assignee.DisplayName(); name != "" {
			t.AssigneeName = name
		} else if t.Assignee.Name != "" {
			t.AssigneeName = t.Assignee.Name
		}
	}
	return t
}

type Project struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Member is a project membership row.
type Member struct {
	UserID int64  `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
}

// Membership is the accept-invite response shape.
type Membership struct {
	ID      int64    `json:"id,omitempty"`
	Role    Role     `json:"role,omitempty"`
	Project *Project `json:"project,omitempty"`
}

type User struct {
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// DisplayName joins first/last name, falling back to the email.
func (u User) DisplayName() string {
	return joinName(u.Firstname, u.Lastname, u.Email)
}

func joinName(first, last, fallback string) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{first, last} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if name := strings.Join(parts, " "); name != "" {
		return name
	}
	return fallback
}

var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail checks the rough address shape used before any invite is sent.
func ValidEmail(email string) bool {
	return emailShape.MatchString(strings.TrimSpace(email))
}
