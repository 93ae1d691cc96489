package invite

import (
	"context"
	"errors"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"

	"tasklink/internal/api"
	"tasklink/internal/domain"
)

type fakeRemote struct {
	invitedEmail string
	verifyErr    error

	exists   bool
	checkErr error

	membership domain.Membership
	acceptErr  error

	verifyCalls int
	acceptCalls int
	acceptToken string
}

func (f *fakeRemote) VerifyInvite(_ context.Context, token string) (api.VerifyInviteResponse, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return api.VerifyInviteResponse{}, f.verifyErr
	}
	return api.VerifyInviteResponse{Email: f.invitedEmail}, nil
}

func (f *fakeRemote) CheckUserExists(_ context.Context, email string) (bool, error) {
	return f.exists, f.checkErr
}

func (f *fakeRemote) AcceptInvite(_ context.Context, token string) (domain.Membership, error) {
	f.acceptCalls++
	f.acceptToken = token
	if f.acceptErr != nil {
		return domain.Membership{}, f.acceptErr
	}
	return f.membership, nil
}

type fakeSession struct {
	user     domain.User
	loggedIn bool
	cleared  bool
}

func (f *fakeSession) Current() (domain.User, bool) { return f.user, f.loggedIn }
func (f *fakeSession) Clear() error {
	f.cleared = true
	f.loggedIn = false
	return nil
}

func newFlow(remote *fakeRemote, sess *fakeSession) *Flow {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return &Flow{Verifier: remote, Users: remote, Accepter: remote, Session: sess, Log: logger}
}

func TestNotLoggedInExistingAccountGoesToLogin(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: true}
	sess := &fakeSession{}
	out := newFlow(remote, sess).Run(context.Background(), "abc")
	if out.Decision != DecisionLogin || out.Token != "abc" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.InviteError || out.SwitchAccount {
		t.Fatalf("unexpected flags: %+v", out)
	}
}

func TestNotLoggedInUnknownAccountGoesToRegister(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: false}
	out := newFlow(remote, &fakeSession{}).Run(context.Background(), "abc")
	if out.Decision != DecisionRegister || out.Token != "abc" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestMatchingSessionAcceptsCaseInsensitively(t *testing.T) {
	remote := &fakeRemote{
		invitedEmail: "A@X.com",
		exists:       true,
		membership:   domain.Membership{Project: &domain.Project{ID: 42}},
	}
	sess := &fakeSession{user: domain.User{Email: "a@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "tok")
	if remote.acceptCalls != 1 || remote.acceptToken != "tok" {
		t.Fatalf("accept calls = %d token = %q", remote.acceptCalls, remote.acceptToken)
	}
	if out.Decision != DecisionBoard || out.ProjectID != 42 {
		t.Fatalf("outcome = %+v", out)
	}
	if sess.cleared {
		t.Fatal("matching session must not be cleared")
	}
}

func TestAcceptWithoutProjectFallsBackToLogin(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: true, membership: domain.Membership{}}
	sess := &fakeSession{user: domain.User{Email: "a@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "tok")
	if out.Decision != DecisionLogin || !out.InviteAccepted {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestMismatchedSessionLogsOutToLogin(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: true}
	sess := &fakeSession{user: domain.User{Email: "b@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "tok")
	if !sess.cleared {
		t.Fatal("session not cleared")
	}
	if out.Decision != DecisionLogin || out.Token != "tok" || !out.SwitchAccount || !out.LoggedOut {
		t.Fatalf("outcome = %+v", out)
	}
	if remote.acceptCalls != 0 {
		t.Fatal("accept must not be called for a mismatched session")
	}
}

func TestMismatchedSessionLogsOutToRegister(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: false}
	sess := &fakeSession{user: domain.User{Email: "b@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "tok")
	if !sess.cleared {
		t.Fatal("session not cleared")
	}
	if out.Decision != DecisionRegister || out.Token != "tok" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestVerifyFailureRedirectsToLoginWithError(t *testing.T) {
	remote := &fakeRemote{verifyErr: errors.New("expired")}
	sess := &fakeSession{user: domain.User{Email: "a@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "tok")
	if out.Decision != DecisionLogin || !out.InviteError {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Token != "" {
		t.Fatalf("error redirect must not carry the token, got %q", out.Token)
	}
	if sess.cleared {
		t.Fatal("verify failure must leave the session alone")
	}
}

func TestCheckFailureRedirectsToLoginWithError(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", checkErr: errors.New("network")}
	out := newFlow(remote, &fakeSession{}).Run(context.Background(), "tok")
	if out.Decision != DecisionLogin || !out.InviteError {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestAcceptFailureRedirectsToLoginWithError(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: true, acceptErr: errors.New("conflict")}
	sess := &fakeSession{user: domain.User{Email: "a@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "tok")
	if out.Decision != DecisionLogin || !out.InviteError {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestEmptyTokenIsPassedThrough(t *testing.T) {
	remote := &fakeRemote{invitedEmail: "a@x.com", exists: true}
	sess := &fakeSession{user: domain.User{Email: "a@x.com"}, loggedIn: true}
	out := newFlow(remote, sess).Run(context.Background(), "")
	if remote.verifyCalls != 1 {
		t.Fatal("empty token must still be verified, not short-circuited")
	}
	if remote.acceptToken != "" {
		t.Fatalf("accept token = %q", remote.acceptToken)
	}
	if out.Decision != DecisionLogin || !out.InviteAccepted {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDecideBranches(t *testing.T) {
	cases := []struct {
		loggedIn         bool
		session, invited string
		exists           bool
		want             branch
	}{
		{true, "a@x.com", "A@X.com", true, branchAccept},
		{true, "b@x.com", "a@x.com", true, branchLogoutToLogin},
		{true, "b@x.com", "a@x.com", false, branchLogoutToRegister},
		{false, "", "a@x.com", true, branchLogin},
		{false, "", "a@x.com", false, branchRegister},
	}
	for i, c := range cases {
		if got := decide(c.loggedIn, c.session, c.invited, c.exists); got != c.want {
			t.Errorf("case %d: decide = %d, want %d", i, got, c.want)
		}
	}
}
