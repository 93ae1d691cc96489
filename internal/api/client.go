package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tasklink/internal/domain"
)

// Client is the TaskLink HTTP API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// httpClient resolves the transport without mutating the client: requests may
// run concurrently (the reconciler fires one goroutine per update), so do must
// never write client state.
func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// VerifyInviteResponse is the payload returned for a valid invite token.
type VerifyInviteResponse struct {
	Email       string `json:"email"`
	ProjectName string `json:"projectName,omitempty"`
	Role        string `json:"role,omitempty"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

// LoginRequest carries credentials, optionally with a pending invite token.
type LoginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	InviteToken string `json:"inviteToken,omitempty"`
}

// RegisterRequest carries a new account, optionally with a pending invite token.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Firstname   string `json:"firstname,omitempty"`
	Lastname    string `json:"lastname,omitempty"`
	InviteToken string `json:"inviteToken,omitempty"`
}

// ListTasks returns every task visible to the caller.
func (c *Client) ListTasks(ctx context.Context) ([]domain.Task, error) {
	var resp []domain.Task
	err := c.do(ctx, http.MethodGet, "api/tasks", nil, &resp)
	return resp, err
}

// ListProjectTasks returns the tasks of one project. A zero project id falls
// back to the global listing.
func (c *Client) ListProjectTasks(ctx context.Context, projectID int64) ([]domain.Task, error) {
	if projectID == 0 {
		return c.ListTasks(ctx)
	}
	var resp []domain.Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("api/projects/%d/tasks", projectID), nil, &resp)
	return resp, err
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("api/tasks/%d", id), nil, &resp)
	return resp, err
}

// CreateTask creates a task. The project id always travels in the body.
func (c *Client) CreateTask(ctx context.Context, t domain.Task, projectID int64) (domain.Task, error) {
	if projectID != 0 {
		t.ProjectID = projectID
	}
	var resp domain.Task
	err := c.do(ctx, http.MethodPost, "api/tasks", t, &resp)
	return resp, err
}

// TaskUpdate is the full-record replace payload. The backend expects every
// display field on each update, even when only order or status changed.
type TaskUpdate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Order       int    `json:"order"`
}

// UpdateTask replaces a task's record.
func (c *Client) UpdateTask(ctx context.Context, id int64, u TaskUpdate) (domain.Task, error) {
	var resp domain.Task
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("api/tasks/%d", id), u, &resp)
	return resp, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("api/tasks/%d", id), nil, nil)
}

// AssignTask assigns a task to a project member. The API expects the user id
// as a query parameter and an empty body.
func (c *Client) AssignTask(ctx context.Context, taskID, userID int64) (domain.Task, error) {
	var resp domain.Task
	endpoint := fmt.Sprintf("api/tasks/%d/assign?userId=%d", taskID, userID)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ListProjects returns the caller's projects.
func (c *Client) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var resp []domain.Project
	err := c.do(ctx, http.MethodGet, "api/projects", nil, &resp)
	return resp, err
}

// GetProject fetches a single project.
func (c *Client) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("api/projects/%d", id), nil, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	var resp domain.Project
	err := c.do(ctx, http.MethodPost, "api/projects", p, &resp)
	return resp, err
}

// ListMembers returns the members of a project.
func (c *Client) ListMembers(ctx context.Context, projectID int64) ([]domain.Member, error) {
	var resp []domain.Member
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("api/projects/%d/members/list", projectID), nil, &resp)
	return resp, err
}

// InviteMember emails an invitation to join a project. Malformed addresses
// are rejected before any wire traffic.
func (c *Client) InviteMember(ctx context.Context, projectID int64, email string, role domain.Role) error {
	if !domain.ValidEmail(email) {
		return fmt.Errorf("invalid email address %q", email)
	}
	body := map[string]any{"email": email, "role": role}
	endpoint := fmt.Sprintf("api/projects/%d/members/invite", projectID)
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// VerifyInvite resolves an invite token to the invited email.
func (c *Client) VerifyInvite(ctx context.Context, token string) (VerifyInviteResponse, error) {
	var resp VerifyInviteResponse
	endpoint := "api/auth/verify?token=" + url.QueryEscape(token)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CheckUserExists reports whether an account exists for the email.
func (c *Client) CheckUserExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	endpoint := "api/auth/check-user?email=" + url.QueryEscape(email)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &exists)
	return exists, err
}

// AcceptInvite claims an invite token for the current session. The token
// travels as a query parameter with no body.
func (c *Client) AcceptInvite(ctx context.Context, token string) (domain.Membership, error) {
	var resp domain.Membership
	endpoint := "api/projects/invites/accept?token=" + url.QueryEscape(token)
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, "api/auth/login", req, &resp)
	return resp, err
}

// Register creates an account and returns a session token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, http.MethodPost, "api/auth/register", req, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
