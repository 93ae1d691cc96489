// Package invite implements the one-shot invite-acceptance decision flow: an
// invitation token plus the local session state resolve to exactly one
// navigation outcome. The flow never retries and is not restartable; a fresh
// page activation builds a fresh Flow.
package invite

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"tasklink/internal/api"
	"tasklink/internal/domain"
)

// State names the flow's position, in order. Every run walks the states
// forward exactly once and stops at the first terminal outcome.
type State int

const (
	StateStart State = iota
	StateTokenResolved
	StateInviteVerified
	StateUserChecked
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateTokenResolved:
		return "token-resolved"
	case StateInviteVerified:
		return "invite-verified"
	case StateUserChecked:
		return "user-checked"
	default:
		return "done"
	}
}

// Decision is the navigation target of a terminal outcome.
type Decision int

const (
	// DecisionBoard navigates to the joined project's board.
	DecisionBoard Decision = iota
	// DecisionLogin navigates to the login screen.
	DecisionLogin
	// DecisionRegister navigates to the registration screen.
	DecisionRegister
)

func (d Decision) String() string {
	switch d {
	case DecisionBoard:
		return "board"
	case DecisionLogin:
		return "login"
	default:
		return "register"
	}
}

// Outcome is the single navigation side effect the flow resolves to,
// including the query parameters the destination carries.
type Outcome struct {
	Decision  Decision `json:"decision"`
	ProjectID int64    `json:"projectId,omitempty"`

	Token          string `json:"token,omitempty"`
	InviteError    bool   `json:"inviteError,omitempty"`
	InviteAccepted bool   `json:"inviteAccepted,omitempty"`
	SwitchAccount  bool   `json:"switchAccount,omitempty"`

	// LoggedOut reports that the flow cleared the stored session.
	LoggedOut bool `json:"loggedOut,omitempty"`
}

// Verifier resolves an invite token to the invited email.
type Verifier interface {
	VerifyInvite(ctx context.Context, token string) (api.VerifyInviteResponse, error)
}

// UserChecker reports whether an account exists for an email.
type UserChecker interface {
	CheckUserExists(ctx context.Context, email string) (bool, error)
}

// Accepter claims an invite token for the current session.
type Accepter interface {
	AcceptInvite(ctx context.Context, token string) (domain.Membership, error)
}

// Session is the synchronously-readable local session state.
type Session interface {
	Current() (domain.User, bool)
	Clear() error
}

// Flow wires the collaborators for one run.
type Flow struct {
	Verifier Verifier
	Users    UserChecker
	Accepter Accepter
	Session  Session
	Log      *log.Logger
}

func (f *Flow) logger() *log.Logger {
	if f.Log != nil {
		return f.Log
	}
	return log.StandardLogger()
}

// branch is the pure decision over the resolved invite context.
type branch int

const (
	branchAccept branch = iota
	branchLogoutToLogin
	branchLogoutToRegister
	branchLogin
	branchRegister
)

// decide maps the resolved invite context to a branch. Email comparison is
// case-insensitive. Pure; all IO stays in Run.
func decide(loggedIn bool, sessionEmail, invitedEmail string, accountExists bool) branch {
	if loggedIn {
		if strings.EqualFold(sessionEmail, invitedEmail) {
			return branchAccept
		}
		if accountExists {
			return branchLogoutToLogin
		}
		return branchLogoutToRegister
	}
	if accountExists {
		return branchLogin
	}
	return branchRegister
}

// Run resolves the token into a single terminal outcome. An empty token is a
// valid, if useless, token and is passed through to the collaborators. Any
// remote failure terminates in a login redirect flagged with inviteError.
func (f *Flow) Run(ctx context.Context, token string) Outcome {
	logger := f.logger().WithField("state", StateTokenResolved)

	info, err := f.Verifier.VerifyInvite(ctx, token)
	if err != nil {
		logger.WithError(err).Debug("invite verification failed")
		return Outcome{Decision: DecisionLogin, InviteError: true}
	}
	invitedEmail := info.Email

	exists, err := f.Users.CheckUserExists(ctx, invitedEmail)
	if err != nil {
		f.logger().WithField("state", StateInviteVerified).WithError(err).Debug("user existence check failed")
		return Outcome{Decision: DecisionLogin, InviteError: true}
	}

	user, loggedIn := f.Session.Current()
	switch decide(loggedIn, user.Email, invitedEmail, exists) {
	case branchAccept:
		membership, err := f.Accepter.AcceptInvite(ctx, token)
		if err != nil {
			f.logger().WithField("state", StateUserChecked).WithError(err).Debug("accept failed")
			return Outcome{Decision: DecisionLogin, InviteError: true}
		}
		if membership.Project != nil && membership.Project.ID != 0 {
			return Outcome{Decision: DecisionBoard, ProjectID: membership.Project.ID}
		}
		return Outcome{Decision: DecisionLogin, InviteAccepted: true}
	case branchLogoutToLogin:
		f.clearSession()
		return Outcome{Decision: DecisionLogin, Token: token, SwitchAccount: true, LoggedOut: true}
	case branchLogoutToRegister:
		f.clearSession()
		return Outcome{Decision: DecisionRegister, Token: token, LoggedOut: true}
	case branchLogin:
		return Outcome{Decision: DecisionLogin, Token: token}
	default:
		return Outcome{Decision: DecisionRegister, Token: token}
	}
}

func (f *Flow) clearSession() {
	if err := f.Session.Clear(); err != nil {
		f.logger().WithError(err).Warn("failed to clear session")
	}
}
