package stub

import (
	"testing"

	"tasklink/internal/domain"
)

func seededInvite(t *testing.T) (*Store, int64, string) {
	t.Helper()
	s := NewStore()
	if _, err := s.Register("mia@x.com", "secret", "Mia", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	p, err := s.CreateProject(domain.Project{Name: "Launch"}, "mia@x.com")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	token, err := s.CreateInvite(p.ID, "mia@x.com", domain.RoleMember)
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	return s, p.ID, token
}

func TestAcceptInviteReturnsDetachedProject(t *testing.T) {
	s, projectID, token := seededInvite(t)
	m, err := s.AcceptInvite(token, "Mia@X.com")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Project == nil || m.Project.ID != projectID {
		t.Fatalf("membership = %+v", m)
	}
	// mutating the returned record must not reach the store
	m.Project.Name = "scribbled"
	got, err := s.Project(projectID)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if got.Name != "Launch" {
		t.Fatalf("store project mutated through membership: %+v", got)
	}
}

func TestAcceptInviteIsSingleUse(t *testing.T) {
	s, _, token := seededInvite(t)
	if _, err := s.AcceptInvite(token, "mia@x.com"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := s.AcceptInvite(token, "mia@x.com"); err == nil {
		t.Fatal("claimed token must not be accepted twice")
	}
}
