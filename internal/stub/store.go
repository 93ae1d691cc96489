package stub

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tasklink/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrInvalidToken   = errors.New("invalid or expired invite token")
	ErrBadCredentials = errors.New("bad credentials")
)

type account struct {
	ID        int64
	Email     string
	Password  string
	Firstname string
	Lastname  string
}

type invite struct {
	Token     string
	Email     string
	ProjectID int64
	Role      domain.Role
	Claimed   bool
}

// Store is the stub backend's in-memory state. All access goes through the
// mutex; the stub trades throughput for being a faithful, deterministic
// stand-in for the remote collaborator.
type Store struct {
	mu     sync.Mutex
	nextID int64

	// accounts are keyed by lowercase email, invites by token, members by
	// project id.
	accounts map[string]*account
	projects map[int64]*domain.Project
	members  map[int64][]domain.Member
	tasks    map[int64]*domain.Task
	invites  map[string]*invite
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*account),
		projects: make(map[int64]*domain.Project),
		members:  make(map[int64][]domain.Member),
		tasks:    make(map[int64]*domain.Task),
		invites:  make(map[string]*invite),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func key(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Register creates an account. Email collisions conflict.
func (s *Store) Register(email, password, firstname, lastname string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(email)
	if _, ok := s.accounts[k]; ok {
		return domain.User{}, ErrConflict
	}
	a := &account{ID: s.id(), Email: strings.TrimSpace(email), Password: password, Firstname: firstname, Lastname: lastname}
	s.accounts[k] = a
	return domain.User{Email: a.Email, Firstname: a.Firstname, Lastname: a.Lastname}, nil
}

// Authenticate checks credentials and returns the stored user.
func (s *Store) Authenticate(email, password string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[key(email)]
	if !ok || a.Password != password {
		return domain.User{}, ErrBadCredentials
	}
	return domain.User{Email: a.Email, Firstname: a.Firstname, Lastname: a.Lastname}, nil
}

// UserExists reports whether an account exists for the email.
func (s *Store) UserExists(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[key(email)]
	return ok
}

func (s *Store) CreateProject(p domain.Project, ownerEmail string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.projects[p.ID] = &p
	if a, ok := s.accounts[key(ownerEmail)]; ok {
		s.members[p.ID] = append(s.members[p.ID], domain.Member{
			UserID: a.ID,
			Name:   domain.User{Email: a.Email, Firstname: a.Firstname, Lastname: a.Lastname}.DisplayName(),
			Email:  a.Email,
			Role:   domain.RoleOwner,
		})
	}
	return p, nil
}

func (s *Store) Project(id int64) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	return *p, nil
}

func (s *Store) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Members(projectID int64) ([]domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return nil, ErrNotFound
	}
	return append([]domain.Member(nil), s.members[projectID]...), nil
}

func (s *Store) CreateTask(t domain.Task) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ProjectID != 0 {
		if _, ok := s.projects[t.ProjectID]; !ok {
			return domain.Task{}, ErrNotFound
		}
	}
	t.ID = s.id()
	t.Key = fmt.Sprintf("TL-%d", t.ID)
	t.Status = string(domain.NormalizeStatus(t.Status))
	s.tasks[t.ID] = &t
	return t, nil
}

func (s *Store) Task(id int64) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	return *t, nil
}

// ReplaceTask applies the full-record update contract: title, description,
// status, and order are overwritten; everything else is kept.
func (s *Store) ReplaceTask(id int64, title, description, status string, order int) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	t.Title = title
	t.Description = description
	t.Status = string(domain.NormalizeStatus(status))
	t.Order = order
	return *t, nil
}

func (s *Store) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// AssignTask sets the assignee from a member's account.
func (s *Store) AssignTask(taskID, userID int64) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, ErrNotFound
	}
	for _, a := range s.accounts {
		if a.ID == userID {
			t.Assignee = &domain.Assignee{ID: a.ID, Firstname: a.Firstname, Lastname: a.Lastname, Email: a.Email}
			t.AssigneeID = a.ID
			return *t, nil
		}
	}
	return domain.Task{}, ErrNotFound
}

// Tasks returns tasks, optionally scoped to a project, sorted by id.
func (s *Store) Tasks(projectID int64) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if projectID == 0 || t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateInvite issues a single-use invite token for an email.
func (s *Store) CreateInvite(projectID int64, email string, role domain.Role) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return "", ErrNotFound
	}
	token := uuid.NewString()
	s.invites[token] = &invite{Token: token, Email: strings.TrimSpace(email), ProjectID: projectID, Role: role}
	return token, nil
}

// VerifyInvite resolves an unclaimed token to the invited email.
func (s *Store) VerifyInvite(token string) (email, projectName string, role domain.Role, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok || inv.Claimed {
		return "", "", "", ErrInvalidToken
	}
	name := ""
	if p, ok := s.projects[inv.ProjectID]; ok {
		name = p.Name
	}
	return inv.Email, name, inv.Role, nil
}

// AcceptInvite claims a token for the given session email. The invited email
// must match the session's, case-insensitively.
func (s *Store) AcceptInvite(token, sessionEmail string) (domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[token]
	if !ok || inv.Claimed {
		return domain.Membership{}, ErrInvalidToken
	}
	if !strings.EqualFold(inv.Email, sessionEmail) {
		return domain.Membership{}, ErrInvalidToken
	}
	a, ok := s.accounts[key(sessionEmail)]
	if !ok {
		return domain.Membership{}, ErrNotFound
	}
	p, ok := s.projects[inv.ProjectID]
	if !ok {
		return domain.Membership{}, ErrNotFound
	}
	inv.Claimed = true
	member := domain.Member{
		UserID: a.ID,
		Name:   domain.User{Email: a.Email, Firstname: a.Firstname, Lastname: a.Lastname}.DisplayName(),
		Email:  a.Email,
		Role:   inv.Role,
	}
	s.members[p.ID] = append(s.members[p.ID], member)
	// detach the project so callers never hold store-owned state
	proj := *p
	return domain.Membership{ID: s.id(), Role: inv.Role, Project: &proj}, nil
}
