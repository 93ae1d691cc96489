package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tasklink/internal/api"
	"tasklink/internal/app"
	"tasklink/internal/board"
	"tasklink/internal/config"
	"tasklink/internal/domain"
	"tasklink/internal/invite"
	"tasklink/internal/session"
	"tasklink/internal/stub"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "TaskLink CLI",
	Long: `TaskLink is a kanban task tracker client.
The board partitions a project's tasks into OPEN, IN_PROGRESS, and DONE
columns. Moves and drags apply locally first and are pushed to the backend
in the background; the backend is the source of truth on the next reload.
A workspace is a directory with a tasklink.yml config and a .tasklink/
database holding the login session.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("project", 0, "project id (overrides config)")
	rootCmd.PersistentFlags().String("base-url", "", "API base URL (overrides config)")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(stubCmd())
}

// --- auth ---

func loginCmd() *cobra.Command {
	var email, password, inviteToken string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				resp, err := a.Client.Login(ctx, api.LoginRequest{
					Email:       email,
					Password:    password,
					InviteToken: inviteToken,
				})
				if err != nil {
					return err
				}
				if err := saveSession(a, resp); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"email": resp.Email})
				}
				fmt.Printf("Logged in as %s\n", resp.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&inviteToken, "invite-token", "", "pending invite token to claim")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCmd() *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.ValidEmail(req.Email) {
				return fmt.Errorf("invalid email address %q", req.Email)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				resp, err := a.Client.Register(ctx, req)
				if err != nil {
					return err
				}
				if err := saveSession(a, resp); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"email": resp.Email})
				}
				fmt.Printf("Registered %s\n", resp.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.Firstname, "firstname", "", "first name")
	cmd.Flags().StringVar(&req.Lastname, "lastname", "", "last name")
	cmd.Flags().StringVar(&req.InviteToken, "invite-token", "", "pending invite token to claim")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Sessions.Clear(); err != nil {
					return err
				}
				fmt.Println("Logged out")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				sess, err := a.RequireSession()
				if err != nil {
					return err
				}
				user := sess.User()
				if viper.GetBool("json") {
					return printJSON(user)
				}
				fmt.Printf("%s <%s>\n", user.DisplayName(), user.Email)
				return nil
			})
		},
	}
}

func saveSession(a *app.App, resp api.AuthResponse) error {
	a.Client.Token = resp.Token
	return a.Sessions.Save(session.Session{
		Token:     resp.Token,
		Email:     resp.Email,
		Firstname: resp.Firstname,
		Lastname:  resp.Lastname,
	})
}

// --- board ---

func boardCmd() *cobra.Command {
	var filterText string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the project board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				e, err := loadBoard(ctx, a)
				if err != nil {
					return err
				}
				return renderBoard(e, board.TextFilter(filterText))
			})
		},
	}
	cmd.Flags().StringVar(&filterText, "filter", "", "show only tasks matching text")
	cmd.AddCommand(boardMoveCmd())
	return cmd
}

func boardMoveCmd() *cobra.Command {
	var toStatus, filterText string
	var to int
	cmd := &cobra.Command{
		Use:   "move <task-id>",
		Short: "Move a task within or across columns",
		Long: `Destination positions are 0-based row numbers as printed by 'tl board'
(with the same --filter). The board renumbers the touched columns and
pushes the changed tasks to the backend before exiting; a failed push
keeps the local view and is corrected on the next 'tl board'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireSession(); err != nil {
					return err
				}
				e, err := loadBoard(ctx, a)
				if err != nil {
					return err
				}
				t, src, ok := e.Find(taskID)
				if !ok {
					return fmt.Errorf("task %d not on the board", taskID)
				}
				f := board.TextFilter(filterText)
				from := -1
				for i, vt := range e.Visible(src, f) {
					if vt == t {
						from = i
						break
					}
				}
				if from < 0 {
					return fmt.Errorf("task %d is hidden by the filter", taskID)
				}
				dst := src
				if toStatus != "" {
					dst = domain.NormalizeStatus(toStatus)
				}
				change, err := e.Transfer(src, from, dst, to, f)
				if err != nil {
					return err
				}
				rec := board.NewReconciler(a.Client, a.Log)
				rec.Apply(ctx, e, change)
				rec.Wait()
				return renderBoard(e, f)
			})
		},
	}
	cmd.Flags().StringVar(&toStatus, "to-status", "", "destination column (defaults to the task's column)")
	cmd.Flags().IntVar(&to, "to", 0, "destination position")
	cmd.Flags().StringVar(&filterText, "filter", "", "positions address the filtered view")
	return cmd
}

func loadBoard(ctx context.Context, a *app.App) (*board.Engine, error) {
	tasks, err := a.Client.ListProjectTasks(ctx, a.ActiveProject())
	if err != nil {
		return nil, err
	}
	e := board.NewEngine()
	e.Load(tasks)
	return e, nil
}

func renderBoard(e *board.Engine, f board.Filter) error {
	if viper.GetBool("json") {
		out := map[string][]*domain.Task{}
		for _, s := range domain.Statuses() {
			out[string(s)] = e.Visible(s, f)
		}
		return printJSON(out)
	}
	cols := make([][]*domain.Task, 0, 3)
	rows := 0
	header := table.Row{"#"}
	for _, s := range domain.Statuses() {
		col := e.Visible(s, f)
		cols = append(cols, col)
		if len(col) > rows {
			rows = len(col)
		}
		header = append(header, s.Label())
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	for i := 0; i < rows; i++ {
		row := table.Row{i}
		for _, col := range cols {
			if i < len(col) {
				row = append(row, taskCell(col[i]))
			} else {
				row = append(row, "")
			}
		}
		tw.AppendRow(row)
	}
	tw.Render()
	return nil
}

func taskCell(t *domain.Task) string {
	label := t.Title
	if t.Key != "" {
		label = t.Key + " " + label
	}
	if t.AssigneeName != "" {
		label += " @" + t.AssigneeName
	}
	return label
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskAddCmd() *cobra.Command {
	var status, description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task at the bottom of a column",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireSession(); err != nil {
					return err
				}
				e, err := loadBoard(ctx, a)
				if err != nil {
					return err
				}
				draft, ok := e.CreateDraft(domain.NormalizeStatus(status), title)
				if !ok {
					return fmt.Errorf("task title must not be blank")
				}
				draft.Description = description
				created, err := a.Client.CreateTask(ctx, *draft, a.ActiveProject())
				if err != nil {
					return err
				}
				e.Confirm(draft.LocalID, created)
				if viper.GetBool("json") {
					return printJSON(created)
				}
				fmt.Printf("Created %s %s\n", created.Key, created.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "OPEN", "column to add to")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "assign <task-id>",
		Short: "Assign a task to a project member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireSession(); err != nil {
					return err
				}
				t, err := a.Client.AssignTask(ctx, taskID, userID)
				if err != nil {
					return err
				}
				t = domain.Decorate(t)
				if viper.GetBool("json") {
					return printJSON(t)
				}
				fmt.Printf("Assigned %s to %s\n", t.Key, t.AssigneeName)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "member user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireSession(); err != nil {
					return err
				}
				if err := a.Client.DeleteTask(ctx, taskID); err != nil {
					return err
				}
				fmt.Printf("Deleted task %d\n", taskID)
				return nil
			})
		},
	}
	return cmd
}

// --- projects ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectUseCmd())
	prj.AddCommand(projectMembersCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Client.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Description"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var p domain.Project
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(p.Name) == "" {
				return fmt.Errorf("--name required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireSession(); err != nil {
					return err
				}
				created, err := a.Client.CreateProject(ctx, p)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(created)
				}
				fmt.Printf("Created project %d %s\n", created.ID, created.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "project name")
	cmd.Flags().StringVar(&p.Description, "description", "", "description")
	return cmd
}

func projectUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Set the workspace's active project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			workspace := viper.GetString("workspace")
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			cfg.Project.ID = id
			if err := cfg.Save(workspace); err != nil {
				return err
			}
			fmt.Printf("Active project set to %d in %s\n", id, config.Path(workspace))
			return nil
		},
	}
}

func projectMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List the active project's members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				projectID := a.ActiveProject()
				if projectID == 0 {
					return fmt.Errorf("project not specified; use --project or `tl project use <id>`")
				}
				members, err := a.Client.ListMembers(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Name", "Email", "Role"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.UserID, m.Name, m.Email, m.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- invites ---

func inviteCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invite", Short: "Send and accept project invites"}
	inv.AddCommand(inviteSendCmd())
	inv.AddCommand(inviteAcceptCmd())
	return inv
}

func inviteSendCmd() *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Invite a member to the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !domain.ValidEmail(email) {
				return fmt.Errorf("invalid email address %q", email)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireSession(); err != nil {
					return err
				}
				projectID := a.ActiveProject()
				if projectID == 0 {
					return fmt.Errorf("project not specified; use --project or `tl project use <id>`")
				}
				if err := a.Client.InviteMember(ctx, projectID, email, domain.Role(role)); err != nil {
					return err
				}
				fmt.Printf("Invited %s to project %d\n", email, projectID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "invitee email")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleMember), "role for the invitee")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func inviteAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <token>",
		Short: "Resolve an invite token against the stored session",
		Long: `Runs the invite decision flow: verify the token, check whether the
invited email has an account, and either accept the invite or report
where to go next (login or registration, possibly after a logout when
the stored session belongs to someone else).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := args[0]
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				flow := &invite.Flow{
					Verifier: a.Client,
					Users:    a.Client,
					Accepter: a.Client,
					Session:  a.SessionProvider(),
					Log:      a.Log,
				}
				outcome := flow.Run(ctx, token)
				if viper.GetBool("json") {
					return printJSON(outcome)
				}
				printOutcome(outcome)
				return nil
			})
		},
	}
}

func printOutcome(o invite.Outcome) {
	switch o.Decision {
	case invite.DecisionBoard:
		fmt.Printf("Invite accepted; you joined project %d. Run `tl project use %d`.\n", o.ProjectID, o.ProjectID)
		return
	case invite.DecisionLogin:
		switch {
		case o.InviteError:
			fmt.Println("The invite could not be verified. Log in with `tl login` and ask for a new invite.")
		case o.InviteAccepted:
			fmt.Println("Invite accepted. Log in with `tl login` to continue.")
		case o.SwitchAccount:
			fmt.Printf("This invite belongs to another account; you were logged out. Run `tl login --invite-token %s` as the invited user.\n", o.Token)
		default:
			fmt.Printf("Run `tl login --invite-token %s` to claim the invite.\n", o.Token)
		}
	case invite.DecisionRegister:
		if o.LoggedOut {
			fmt.Printf("This invite belongs to a new account; you were logged out. Run `tl register --invite-token %s`.\n", o.Token)
		} else {
			fmt.Printf("Run `tl register --invite-token %s` to create the invited account.\n", o.Token)
		}
	}
}

// --- stub server ---

func stubCmd() *cobra.Command {
	var addr, secret string
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run an in-memory backend for offline development",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := stub.New(stub.Config{JWTSecret: secret})
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					log.WithError(err).Warn("stub server shutdown failed")
				}
			}()
			fmt.Printf("Serving TaskLink stub API on http://%s (point tl at it with --base-url)\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&secret, "secret", "tasklink-dev", "JWT signing secret")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(app.Options{
		Workspace: viper.GetString("workspace"),
		Project:   viper.GetInt64("project"),
		BaseURL:   viper.GetString("base-url"),
		Log:       log.StandardLogger(),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
