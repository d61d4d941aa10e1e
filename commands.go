package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pazami01/sptb/api"
	"github.com/pazami01/sptb/session"
)

func parseID(what, s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func (c *cli) loginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with username and password",
		Long: `Sign in and store the issued token pair for the current profile.

Missing credentials are read from SPTB_USERNAME and SPTB_PASSWORD, or asked
for interactively when running on a terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username = strings.TrimSpace(getConfig(username, "SPTB_USERNAME", ""))
			password = getConfig(password, "SPTB_PASSWORD", "")
			if username == "" || password == "" {
				if !c.isTTY() {
					return errors.New("username and password are required: use --username/--password or SPTB_USERNAME/SPTB_PASSWORD")
				}
				if err := promptCredentials(&username, &password); err != nil {
					return err
				}
			}

			return c.run(cmd, runAnonymous, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Banner()
				a.display.LoggingIn(username)

				tok, err := a.gateway.Login(ctx, username, password)
				if err != nil {
					a.display.LoginFailed(err)
					return "", err
				}
				id := session.StudentIDFromToken(tok.AccessToken)
				a.display.LoginOK(username, id)
				if a.file == nil {
					a.log.Warn().Msg("tokens come from the environment; this login is not persisted")
				}

				if !a.cfg.JSON {
					return "", nil
				}
				return "", writeJSON(out, struct {
					Username  string `json:"username"`
					StudentID int    `json:"student_id,omitempty"`
				}{username, id})
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer SPTB_PASSWORD or the prompt)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored tokens of the current profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runAnonymous, func(_ context.Context, a *app, _ io.Writer) (string, error) {
				if err := a.session.Logout(); err != nil {
					return "", err
				}
				a.display.LoggedOut()
				return "", nil
			})
		},
	}
}

type statusReport struct {
	APIURL          string `json:"api_url"`
	Profile         string `json:"profile"`
	TokenFile       string `json:"token_file,omitempty"`
	State           string `json:"state"`
	StudentID       int    `json:"student_id,omitempty"`
	HasRefreshToken bool   `json:"has_refresh_token"`
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state of the current profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runPassive, func(_ context.Context, a *app, out io.Writer) (string, error) {
				pair, err := a.store.Get()
				if err != nil {
					return "", err
				}
				r := statusReport{
					APIURL:          a.cfg.APIURL,
					Profile:         a.cfg.Profile,
					State:           a.session.State().String(),
					StudentID:       a.session.StudentID(),
					HasRefreshToken: pair.HasRefresh(),
				}
				if a.file != nil {
					r.TokenFile = a.file.Path()
				} else {
					r.Profile = "(environment)"
				}
				return r.State, render(out, a.cfg.JSON, r, func(w io.Writer) error {
					student := "-"
					if r.StudentID > 0 {
						student = itoa(r.StudentID)
					}
					tokenFile := r.TokenFile
					if tokenFile == "" {
						tokenFile = "-"
					}
					return writeFields(w, []field{
						{"API", r.APIURL},
						{"Profile", r.Profile},
						{"Token file", tokenFile},
						{"State", r.State},
						{"Student", student},
						{"Refresh token", strconv.FormatBool(r.HasRefreshToken)},
					})
				})
			})
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in student's account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				acc, err := currentStudent(ctx, a)
				if err != nil {
					return "", err
				}
				return acc.Username, render(out, a.cfg.JSON, acc, func(w io.Writer) error {
					return writeFields(w, studentFields(acc))
				})
			})
		},
	}
}

func currentStudent(ctx context.Context, a *app) (*api.Account, error) {
	id := a.session.StudentID()
	if id == 0 {
		return nil, errors.New("the access token does not identify a student")
	}
	a.display.Working("Fetching account")
	return a.api.GetStudent(ctx, id)
}

func (c *cli) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the signed-in student's profile",
	}

	var programme, about string
	var roles []string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change programme, about text or roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("programme") && !flags.Changed("about") && !flags.Changed("role") {
				return errors.New("nothing to update: set --programme, --about or --role")
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				acc, err := currentStudent(ctx, a)
				if err != nil {
					return "", err
				}
				p := acc.Profile
				if flags.Changed("programme") {
					p.Programme = programme
				}
				if flags.Changed("about") {
					p.About = about
				}
				if flags.Changed("role") {
					p.Roles = roles
				}

				a.display.Working("Updating profile")
				updated, err := a.api.UpdateProfile(ctx, acc.ID, p)
				if err != nil {
					return "", err
				}
				a.display.APICallOK("Profile updated")
				return "", render(out, a.cfg.JSON, updated, func(w io.Writer) error {
					return writeFields(w, studentFields(updated))
				})
			})
		},
	}
	update.Flags().StringVar(&programme, "programme", "", "Degree programme")
	update.Flags().StringVar(&about, "about", "", "About text")
	update.Flags().StringSliceVar(&roles, "role", nil, "Role you can take in a team (repeatable)")

	cmd.AddCommand(update)
	return cmd
}

var studentHeaders = []string{"ID", "USERNAME", "NAME", "PROGRAMME", "ROLES"}

func (c *cli) studentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "students",
		Aliases: []string{"student"},
		Short:   "Browse students",
	}

	var search string
	list := &cobra.Command{
		Use:   "list",
		Short: "List students, optionally by role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Listing students")
				students, err := a.api.ListStudents(ctx, search)
				if err != nil {
					return "", err
				}
				return plural(len(students), "student", "students"), render(out, a.cfg.JSON, students, func(w io.Writer) error {
					return writeTable(w, studentHeaders, studentRows(students))
				})
			})
		},
	}
	list.Flags().StringVar(&search, "search", "", "Only students offering this role")

	show := &cobra.Command{
		Use:   "show STUDENT_ID",
		Short: "Show one student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("student", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Fetching student")
				acc, err := a.api.GetStudent(ctx, id)
				if err != nil {
					return "", err
				}
				return "", render(out, a.cfg.JSON, acc, func(w io.Writer) error {
					return writeFields(w, studentFields(acc))
				})
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func (c *cli) projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Browse and manage projects",
	}

	var filter api.ProjectFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := filter.Validate(); err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Listing projects")
				projects, err := a.api.ListProjects(ctx, filter)
				if err != nil {
					return "", err
				}
				headers := []string{"ID", "TITLE", "CATEGORY", "OWNER", "WANTED", "TEAM"}
				return plural(len(projects), "project", "projects"), render(out, a.cfg.JSON, projects, func(w io.Writer) error {
					return writeTable(w, headers, projectRows(projects))
				})
			})
		},
	}
	list.Flags().StringVar(&filter.Search, "search", "", "Only projects wanting this role")
	list.Flags().StringVar(&filter.Relation, "relation", "", "active, owned or followed")
	list.Flags().StringVar(&filter.Order, "order", "", "ascending, descending or popularity")
	list.Flags().IntVar(&filter.Limit, "limit", 0, "Return at most this many projects")

	show := &cobra.Command{
		Use:   "show PROJECT_ID",
		Short: "Show one project and its team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Fetching project")
				p, err := a.api.GetProject(ctx, id)
				if err != nil {
					return "", err
				}
				return "", render(out, a.cfg.JSON, p, func(w io.Writer) error {
					return writeProject(w, p)
				})
			})
		},
	}

	var fields api.NewProject
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project owned by you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := parseCategory(fields.Category)
			if err != nil {
				return err
			}
			np := fields
			np.Category = code
			if err := np.Validate(); err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Creating project")
				p, err := a.api.CreateProject(ctx, np)
				if err != nil {
					return "", err
				}
				a.display.APICallOK(fmt.Sprintf("Project %d created", p.ID))
				return "", render(out, a.cfg.JSON, p, func(w io.Writer) error {
					return writeProject(w, p)
				})
			})
		},
	}
	bindProjectFlags(create, &fields)
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("category")
	_ = create.MarkFlagRequired("owner-role")

	var changes api.NewProject
	update := &cobra.Command{
		Use:   "update PROJECT_ID",
		Short: "Change a project you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("title") && !flags.Changed("description") && !flags.Changed("category") &&
				!flags.Changed("owner-role") && !flags.Changed("wants") {
				return errors.New("nothing to update: set --title, --description, --category, --owner-role or --wants")
			}
			if flags.Changed("category") {
				if changes.Category, err = parseCategory(changes.Category); err != nil {
					return err
				}
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Fetching project")
				cur, err := a.api.GetProject(ctx, id)
				if err != nil {
					return "", err
				}
				np := api.NewProject{
					Title:        cur.Title,
					Description:  cur.Description,
					Category:     cur.Category,
					OwnerRole:    cur.OwnerRole,
					DesiredRoles: cur.DesiredRoles,
				}
				if flags.Changed("title") {
					np.Title = changes.Title
				}
				if flags.Changed("description") {
					np.Description = changes.Description
				}
				if flags.Changed("category") {
					np.Category = changes.Category
				}
				if flags.Changed("owner-role") {
					np.OwnerRole = changes.OwnerRole
				}
				if flags.Changed("wants") {
					np.DesiredRoles = changes.DesiredRoles
				}

				a.display.Working("Updating project")
				p, err := a.api.UpdateProject(ctx, id, np)
				if err != nil {
					return "", err
				}
				a.display.APICallOK("Project updated")
				return "", render(out, a.cfg.JSON, p, func(w io.Writer) error {
					return writeProject(w, p)
				})
			})
		},
	}
	bindProjectFlags(update, &changes)

	del := &cobra.Command{
		Use:   "delete PROJECT_ID",
		Short: "Delete a project you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, _ io.Writer) (string, error) {
				a.display.Working("Deleting project")
				if err := a.api.DeleteProject(ctx, id); err != nil {
					return "", err
				}
				return fmt.Sprintf("Project %d deleted", id), nil
			})
		},
	}

	cmd.AddCommand(list, show, create, update, del)
	return cmd
}

func bindProjectFlags(cmd *cobra.Command, p *api.NewProject) {
	f := cmd.Flags()
	f.StringVar(&p.Title, "title", "", "Project title")
	f.StringVar(&p.Description, "description", "", "Project description")
	f.StringVar(&p.Category, "category", "", "Category code or name (e.g. SFW or software)")
	f.StringVar(&p.OwnerRole, "owner-role", "", "Your role in the team")
	f.StringSliceVar(&p.DesiredRoles, "wants", nil, "Role the team is looking for (repeatable)")
}

// parseCategory accepts a category code or display name in any case.
func parseCategory(s string) (string, error) {
	s = strings.TrimSpace(s)
	for code, name := range api.Categories {
		if strings.EqualFold(s, code) || strings.EqualFold(s, name) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func (c *cli) messagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Read and post public project messages",
	}

	list := &cobra.Command{
		Use:   "list PROJECT_ID",
		Short: "List the public messages of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Fetching messages")
				msgs, err := a.api.ListPublicMessages(ctx, id)
				if err != nil {
					return "", err
				}
				return plural(len(msgs), "message", "messages"), render(out, a.cfg.JSON, msgs, func(w io.Writer) error {
					return writeTable(w, []string{"DATE", "FROM", "MESSAGE"}, messageRows(msgs))
				})
			})
		},
	}

	post := &cobra.Command{
		Use:   "post PROJECT_ID MESSAGE...",
		Short: "Post a public message to a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Posting message")
				m, err := a.api.PostPublicMessage(ctx, id, text)
				if err != nil {
					return "", err
				}
				a.display.APICallOK("Message posted")
				if !a.cfg.JSON {
					return "", nil
				}
				return "", writeJSON(out, m)
			})
		},
	}

	cmd.AddCommand(list, post)
	return cmd
}

var requestHeaders = []string{"ID", "PROJECT", "ROLE", "FROM", "TO", "STATUS"}

func (c *cli) requestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "requests",
		Aliases: []string{"request"},
		Short:   "Join requests and invitations",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List active requests sent or received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Listing requests")
				rs, err := a.api.ListRequests(ctx)
				if err != nil {
					return "", err
				}
				return plural(len(rs), "request", "requests"), render(out, a.cfg.JSON, rs, func(w io.Writer) error {
					return writeTable(w, requestHeaders, requestRows(rs))
				})
			})
		},
	}

	var nr api.NewProjectRequest
	send := &cobra.Command{
		Use:   "send",
		Short: "Ask to join a project, or invite a student to yours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nr.Project <= 0 || nr.Requestee <= 0 {
				return errors.New("--project and --to are required")
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Sending request")
				r, err := a.api.CreateRequest(ctx, nr)
				if err != nil {
					return "", err
				}
				a.display.APICallOK("Request sent")
				return "", render(out, a.cfg.JSON, r, func(w io.Writer) error {
					return writeTable(w, requestHeaders, requestRows([]api.ProjectRequest{*r}))
				})
			})
		},
	}
	send.Flags().IntVar(&nr.Project, "project", 0, "Project id")
	send.Flags().IntVar(&nr.Requestee, "to", 0, "Student id of the project owner or the invitee")
	send.Flags().StringVar(&nr.Role, "role", "", "Role in the team")

	cmd.AddCommand(
		list,
		send,
		c.requestStatusCmd("accept", "Accept a request", api.StatusAccepted),
		c.requestStatusCmd("decline", "Decline a request", api.StatusDeclined),
		c.requestStatusCmd("cancel", "Cancel a request you sent", api.StatusCancelled),
	)
	return cmd
}

func (c *cli) requestStatusCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " REQUEST_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("request", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Updating request")
				r, err := a.api.SetRequestStatus(ctx, id, status)
				if err != nil {
					return "", err
				}
				a.display.APICallOK("Request " + strings.ToLower(r.StatusName))
				return "", render(out, a.cfg.JSON, r, func(w io.Writer) error {
					return writeTable(w, requestHeaders, requestRows([]api.ProjectRequest{*r}))
				})
			})
		},
	}
}

func (c *cli) followsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "follows",
		Aliases: []string{"follow"},
		Short:   "Projects you follow",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List followed projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Listing follows")
				fs, err := a.api.ListFollows(ctx)
				if err != nil {
					return "", err
				}
				return plural(len(fs), "follow", "follows"), render(out, a.cfg.JSON, fs, func(w io.Writer) error {
					return writeTable(w, []string{"FOLLOW", "PROJECT", "TITLE"}, followRows(fs))
				})
			})
		},
	}

	add := &cobra.Command{
		Use:   "add PROJECT_ID",
		Short: "Follow a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("project", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Following project")
				f, err := a.api.FollowProject(ctx, id)
				if err != nil {
					return "", err
				}
				a.display.APICallOK("Following " + f.ProjectTitle)
				return "", render(out, a.cfg.JSON, f, func(w io.Writer) error {
					return writeTable(w, []string{"FOLLOW", "PROJECT", "TITLE"}, followRows([]api.Follow{*f}))
				})
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove FOLLOW_ID",
		Short: "Stop following a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("follow", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, _ io.Writer) (string, error) {
				a.display.Working("Unfollowing")
				if err := a.api.Unfollow(ctx, id); err != nil {
					return "", err
				}
				a.display.APICallOK("Unfollowed")
				return "", nil
			})
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}

func (c *cli) membershipsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memberships",
		Aliases: []string{"membership"},
		Short:   "Teams you belong to",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your memberships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, out io.Writer) (string, error) {
				a.display.Working("Listing memberships")
				ms, err := a.api.ListMemberships(ctx)
				if err != nil {
					return "", err
				}
				headers := []string{"MEMBERSHIP", "PROJECT", "TITLE", "ROLE"}
				return plural(len(ms), "membership", "memberships"), render(out, a.cfg.JSON, ms, func(w io.Writer) error {
					return writeTable(w, headers, membershipRows(ms, true))
				})
			})
		},
	}

	leave := &cobra.Command{
		Use:   "leave MEMBERSHIP_ID",
		Short: "Leave a project team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("membership", args[0])
			if err != nil {
				return err
			}
			return c.run(cmd, runAuthenticated, func(ctx context.Context, a *app, _ io.Writer) (string, error) {
				a.display.Working("Leaving project")
				if err := a.api.LeaveProject(ctx, id); err != nil {
					return "", err
				}
				a.display.APICallOK("Left project")
				return "", nil
			})
		},
	}

	cmd.AddCommand(list, leave)
	return cmd
}
