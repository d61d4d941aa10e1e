// Package api is a typed client for the Student Project Team Builder REST API.
// Every call goes through the authenticated gateway.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// JSONDoer performs one JSON API call. *gateway.Gateway satisfies it.
type JSONDoer interface {
	DoJSON(ctx context.Context, method, path string, query url.Values, in, out any) error
}

// Client wraps the REST resources.
type Client struct {
	do JSONDoer
}

// New returns a Client issuing calls through do.
func New(do JSONDoer) *Client {
	return &Client{do: do}
}

// ListStudents returns all student accounts, or those whose profile roles contain
// search when it is non-empty.
func (c *Client) ListStudents(ctx context.Context, search string) ([]Account, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	var out []Account
	if err := c.do.DoJSON(ctx, http.MethodGet, "api/accounts/", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return out, nil
}

// GetStudent returns one student account.
func (c *Client) GetStudent(ctx context.Context, id int) (*Account, error) {
	var out Account
	if err := c.do.DoJSON(ctx, http.MethodGet, accountPath(id), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get student %d: %w", id, err)
	}
	return &out, nil
}

// UpdateProfile replaces the profile of the given account. Only the owner of the
// account may do this.
func (c *Client) UpdateProfile(ctx context.Context, id int, p Profile) (*Account, error) {
	in := struct {
		Profile Profile `json:"profile"`
	}{Profile: p}
	var out Account
	if err := c.do.DoJSON(ctx, http.MethodPatch, accountPath(id), nil, in, &out); err != nil {
		return nil, fmt.Errorf("update profile %d: %w", id, err)
	}
	return &out, nil
}

// Project relations for ProjectFilter.Relation.
const (
	RelationActive   = "active"
	RelationOwned    = "owned"
	RelationFollowed = "followed"
)

// Project orderings for ProjectFilter.Order.
const (
	OrderAscending  = "ascending"
	OrderDescending = "descending"
	OrderPopularity = "popularity"
)

// ProjectFilter narrows ListProjects. Zero fields are not sent.
type ProjectFilter struct {
	Search   string
	Relation string
	Order    string
	Limit    int
}

// Validate rejects values the server would silently ignore.
func (f ProjectFilter) Validate() error {
	switch f.Relation {
	case "", RelationActive, RelationOwned, RelationFollowed:
	default:
		return fmt.Errorf("unknown relation %q (want active, owned or followed)", f.Relation)
	}
	switch f.Order {
	case "", OrderAscending, OrderDescending, OrderPopularity:
	default:
		return fmt.Errorf("unknown order %q (want ascending, descending or popularity)", f.Order)
	}
	if f.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func (f ProjectFilter) query() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Relation != "" {
		q.Set("relation", f.Relation)
	}
	if f.Order != "" {
		q.Set("order", f.Order)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// ListProjects returns the projects matching f.
func (c *Client) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []Project
	if err := c.do.DoJSON(ctx, http.MethodGet, "api/projects/", f.query(), nil, &out); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// GetProject returns one project.
func (c *Client) GetProject(ctx context.Context, id int) (*Project, error) {
	var out Project
	if err := c.do.DoJSON(ctx, http.MethodGet, projectPath(id), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &out, nil
}

// CreateProject creates a project owned by the signed-in student.
func (c *Client) CreateProject(ctx context.Context, p NewProject) (*Project, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.DesiredRoles == nil {
		p.DesiredRoles = []string{}
	}
	var out Project
	if err := c.do.DoJSON(ctx, http.MethodPost, "api/projects/", nil, p, &out); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &out, nil
}

// UpdateProject replaces the editable fields of a project. Only its owner may do
// this.
func (c *Client) UpdateProject(ctx context.Context, id int, p NewProject) (*Project, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.DesiredRoles == nil {
		p.DesiredRoles = []string{}
	}
	var out Project
	if err := c.do.DoJSON(ctx, http.MethodPut, projectPath(id), nil, p, &out); err != nil {
		return nil, fmt.Errorf("update project %d: %w", id, err)
	}
	return &out, nil
}

// DeleteProject deletes a project together with its team, requests and follows.
func (c *Client) DeleteProject(ctx context.Context, id int) error {
	if err := c.do.DoJSON(ctx, http.MethodDelete, projectPath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	return nil
}

// ListPublicMessages returns the public discussion of a project.
func (c *Client) ListPublicMessages(ctx context.Context, projectID int) ([]Message, error) {
	var out []Message
	path := projectPath(projectID) + "public-messages/"
	if err := c.do.DoJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list messages of project %d: %w", projectID, err)
	}
	return out, nil
}

// PostPublicMessage adds a message to the public discussion of a project.
func (c *Client) PostPublicMessage(ctx context.Context, projectID int, text string) (*Message, error) {
	if text == "" {
		return nil, errors.New("message must not be empty")
	}
	in := struct {
		Message string `json:"message"`
	}{Message: text}
	var out Message
	path := projectPath(projectID) + "public-messages/"
	if err := c.do.DoJSON(ctx, http.MethodPost, path, nil, in, &out); err != nil {
		return nil, fmt.Errorf("post message to project %d: %w", projectID, err)
	}
	return &out, nil
}

// ListMemberships returns the signed-in student's memberships.
func (c *Client) ListMemberships(ctx context.Context) ([]Membership, error) {
	var out []Membership
	if err := c.do.DoJSON(ctx, http.MethodGet, "api/memberships/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return out, nil
}

// LeaveProject deletes a membership.
func (c *Client) LeaveProject(ctx context.Context, membershipID int) error {
	path := "api/memberships/" + strconv.Itoa(membershipID) + "/"
	if err := c.do.DoJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("delete membership %d: %w", membershipID, err)
	}
	return nil
}

// ListRequests returns the signed-in student's active requests, sent or received.
func (c *Client) ListRequests(ctx context.Context) ([]ProjectRequest, error) {
	var out []ProjectRequest
	if err := c.do.DoJSON(ctx, http.MethodGet, "api/requests/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

// NewProjectRequest is the body of a join request or invitation. One of the two
// parties must own the project.
type NewProjectRequest struct {
	Requestee int    `json:"requestee"`
	Project   int    `json:"project"`
	Role      string `json:"role"`
}

// CreateRequest sends a join request or invitation.
func (c *Client) CreateRequest(ctx context.Context, r NewProjectRequest) (*ProjectRequest, error) {
	if r.Role == "" {
		return nil, errors.New("role must not be empty")
	}
	var out ProjectRequest
	if err := c.do.DoJSON(ctx, http.MethodPost, "api/requests/", nil, r, &out); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return &out, nil
}

// SetRequestStatus accepts, declines or cancels a request.
func (c *Client) SetRequestStatus(ctx context.Context, id int, status string) (*ProjectRequest, error) {
	switch status {
	case StatusAccepted, StatusDeclined, StatusCancelled:
	default:
		return nil, fmt.Errorf("invalid request status %q", status)
	}
	in := struct {
		Status string `json:"status"`
	}{Status: status}
	var out ProjectRequest
	path := "api/requests/" + strconv.Itoa(id) + "/"
	if err := c.do.DoJSON(ctx, http.MethodPut, path, nil, in, &out); err != nil {
		return nil, fmt.Errorf("update request %d: %w", id, err)
	}
	return &out, nil
}

// ListFollows returns the projects the signed-in student follows.
func (c *Client) ListFollows(ctx context.Context) ([]Follow, error) {
	var out []Follow
	if err := c.do.DoJSON(ctx, http.MethodGet, "api/follows/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}
	return out, nil
}

// FollowProject starts following a project.
func (c *Client) FollowProject(ctx context.Context, projectID int) (*Follow, error) {
	in := struct {
		Project int `json:"project"`
	}{Project: projectID}
	var out Follow
	if err := c.do.DoJSON(ctx, http.MethodPost, "api/follows/", nil, in, &out); err != nil {
		return nil, fmt.Errorf("follow project %d: %w", projectID, err)
	}
	return &out, nil
}

// Unfollow deletes a follow.
func (c *Client) Unfollow(ctx context.Context, followID int) error {
	path := "api/follows/" + strconv.Itoa(followID) + "/"
	if err := c.do.DoJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return fmt.Errorf("unfollow %d: %w", followID, err)
	}
	return nil
}

func accountPath(id int) string { return "api/accounts/" + strconv.Itoa(id) + "/" }
func projectPath(id int) string { return "api/projects/" + strconv.Itoa(id) + "/" }
