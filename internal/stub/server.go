// Package stub is an in-process implementation of the TaskLink backend
// contract. It backs `tl stub` for offline development and lets integration
// tests exercise the real client against the real wire format.
package stub

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"tasklink/internal/domain"
)

// Config for the stub handler.
type Config struct {
	Store     *Store
	JWTSecret string
	TokenTTL  time.Duration
	Now       func() time.Time
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) ttl() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 24 * time.Hour
}

// New returns an HTTP handler exposing the TaskLink API surface.
func New(cfg Config) http.Handler {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	router := chi.NewRouter()
	router.Use(sessionMiddleware(cfg))
	api := humachi.New(router, huma.DefaultConfig("TaskLink API (stub)", "0.1.0"))
	group := huma.NewGroup(api, "/api")

	registerAuth(group, cfg)
	registerTasks(group, cfg)
	registerProjects(group, cfg)

	return router
}

type sessionKey struct{}

// sessionMiddleware resolves the bearer token to a session email. Handlers
// that need a caller reject requests without one.
func sessionMiddleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if email, ok := emailFromBearer(header, cfg.JWTSecret); ok {
				r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, email))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func emailFromBearer(header, secret string) (string, bool) {
	raw := strings.TrimSpace(header)
	if !strings.HasPrefix(raw, "Bearer ") {
		return "", false
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

func callerEmail(ctx context.Context) (string, error) {
	if email, ok := ctx.Value(sessionKey{}).(string); ok && email != "" {
		return email, nil
	}
	return "", huma.Error401Unauthorized("authentication required")
}

func (c Config) signToken(user domain.User) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"sub": user.Email,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl()).Unix(),
	}
	if user.Firstname != "" {
		claims["given_name"] = user.Firstname
	}
	if user.Lastname != "" {
		claims["family_name"] = user.Lastname
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.JWTSecret))
}

type authResponse struct {
	Token     string `json:"token"`
	Email     string `json:"email"`
	Firstname string `json:"firstname,omitempty"`
	Lastname  string `json:"lastname,omitempty"`
}

func registerAuth(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Create an account",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			Firstname   string `json:"firstname,omitempty"`
			Lastname    string `json:"lastname,omitempty"`
			InviteToken string `json:"inviteToken,omitempty"`
		}
	}) (*struct {
		Body authResponse `json:"body"`
	}, error) {
		if !domain.ValidEmail(input.Body.Email) {
			return nil, huma.Error400BadRequest("invalid email address")
		}
		if input.Body.Password == "" {
			return nil, huma.Error400BadRequest("password is required")
		}
		user, err := cfg.Store.Register(input.Body.Email, input.Body.Password, input.Body.Firstname, input.Body.Lastname)
		if errors.Is(err, ErrConflict) {
			return nil, huma.Error409Conflict("account already exists")
		}
		if err != nil {
			return nil, err
		}
		if input.Body.InviteToken != "" {
			// best effort, like the hosted backend: registration succeeds
			// even when the invite can no longer be claimed
			_, _ = cfg.Store.AcceptInvite(input.Body.InviteToken, user.Email)
		}
		token, err := cfg.signToken(user)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body authResponse `json:"body"`
		}{Body: authResponse{Token: token, Email: user.Email, Firstname: user.Firstname, Lastname: user.Lastname}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a session token",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			InviteToken string `json:"inviteToken,omitempty"`
		}
	}) (*struct {
		Body authResponse `json:"body"`
	}, error) {
		user, err := cfg.Store.Authenticate(input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, huma.Error401Unauthorized("bad credentials")
		}
		if input.Body.InviteToken != "" {
			_, _ = cfg.Store.AcceptInvite(input.Body.InviteToken, user.Email)
		}
		token, err := cfg.signToken(user)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body authResponse `json:"body"`
		}{Body: authResponse{Token: token, Email: user.Email, Firstname: user.Firstname, Lastname: user.Lastname}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-invite",
		Method:      http.MethodGet,
		Path:        "/auth/verify",
		Summary:     "Resolve an invite token",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Token string `query:"token"`
	}) (*struct {
		Body struct {
			Email       string `json:"email"`
			ProjectName string `json:"projectName,omitempty"`
			Role        string `json:"role,omitempty"`
		} `json:"body"`
	}, error) {
		email, projectName, role, err := cfg.Store.VerifyInvite(input.Token)
		if err != nil {
			return nil, huma.Error404NotFound("invalid or expired invite token")
		}
		out := &struct {
			Body struct {
				Email       string `json:"email"`
				ProjectName string `json:"projectName,omitempty"`
				Role        string `json:"role,omitempty"`
			} `json:"body"`
		}{}
		out.Body.Email = email
		out.Body.ProjectName = projectName
		out.Body.Role = string(role)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-user",
		Method:      http.MethodGet,
		Path:        "/auth/check-user",
		Summary:     "Check whether an account exists",
	}, func(ctx context.Context, input *struct {
		Email string `query:"email"`
	}) (*struct {
		Body bool `json:"body"`
	}, error) {
		return &struct {
			Body bool `json:"body"`
		}{Body: cfg.Store.UserExists(input.Email)}, nil
	})
}

func registerTasks(api huma.API, cfg Config) {
	type taskBody struct {
		Body domain.Task `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List all tasks",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: cfg.Store.Tasks(0)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body domain.Task `json:"body"`
	}) (*taskBody, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, huma.Error400BadRequest("title is required")
		}
		t, err := cfg.Store.CreateTask(input.Body)
		if errors.Is(err, ErrNotFound) {
			return nil, huma.Error404NotFound("project not found")
		}
		if err != nil {
			return nil, err
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*taskBody, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		t, err := cfg.Store.Task(input.ID)
		if err != nil {
			return nil, huma.Error404NotFound("task not found")
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Replace task record",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Status      string `json:"status"`
			Order       int    `json:"order"`
		}
	}) (*taskBody, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		t, err := cfg.Store.ReplaceTask(input.ID, input.Body.Title, input.Body.Description, input.Body.Status, input.Body.Order)
		if err != nil {
			return nil, huma.Error404NotFound("task not found")
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		if err := cfg.Store.DeleteTask(input.ID); err != nil {
			return nil, huma.Error404NotFound("task not found")
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/assign",
		Summary:     "Assign task to a member",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     int64 `path:"id"`
		UserID int64 `query:"userId"`
	}) (*taskBody, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		t, err := cfg.Store.AssignTask(input.ID, input.UserID)
		if err != nil {
			return nil, huma.Error404NotFound("task or user not found")
		}
		return &taskBody{Body: t}, nil
	})
}

func registerProjects(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: cfg.Store.Projects()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body domain.Project `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		email, err := callerEmail(ctx)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, huma.Error400BadRequest("name is required")
		}
		p, err := cfg.Store.CreateProject(input.Body, email)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		p, err := cfg.Store.Project(input.ID)
		if err != nil {
			return nil, huma.Error404NotFound("project not found")
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-project-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/tasks",
		Summary:     "List a project's tasks",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		if _, err := cfg.Store.Project(input.ID); err != nil {
			return nil, huma.Error404NotFound("project not found")
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: cfg.Store.Tasks(input.ID)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/members/list",
		Summary:     "List project members",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		members, err := cfg.Store.Members(input.ID)
		if err != nil {
			return nil, huma.Error404NotFound("project not found")
		}
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: members}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invite-member",
		Method:      http.MethodPost,
		Path:        "/projects/{id}/members/invite",
		Summary:     "Invite a member by email",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Email string `json:"email"`
			Role  string `json:"role,omitempty"`
		}
	}) (*struct {
		Body struct {
			Token string `json:"token"`
		} `json:"body"`
	}, error) {
		if _, err := callerEmail(ctx); err != nil {
			return nil, err
		}
		if !domain.ValidEmail(input.Body.Email) {
			return nil, huma.Error400BadRequest("invalid email address")
		}
		role := domain.Role(input.Body.Role)
		if role == "" {
			role = domain.RoleMember
		}
		token, err := cfg.Store.CreateInvite(input.ID, input.Body.Email, role)
		if err != nil {
			return nil, huma.Error404NotFound("project not found")
		}
		out := &struct {
			Body struct {
				Token string `json:"token"`
			} `json:"body"`
		}{}
		out.Body.Token = token
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-invite",
		Method:      http.MethodPost,
		Path:        "/projects/invites/accept",
		Summary:     "Claim an invite token",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Token string `query:"token"`
	}) (*struct {
		Body domain.Membership `json:"body"`
	}, error) {
		email, err := callerEmail(ctx)
		if err != nil {
			return nil, err
		}
		membership, err := cfg.Store.AcceptInvite(input.Token, email)
		if err != nil {
			return nil, huma.Error404NotFound("invalid or expired invite token")
		}
		return &struct {
			Body domain.Membership `json:"body"`
		}{Body: membership}, nil
	})
}
