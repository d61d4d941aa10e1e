package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Profile is the editable part of a student account.
type Profile struct {
	Programme string   `json:"programme"`
	About     string   `json:"about"`
	Roles     []string `json:"roles"`
}

// Account is a student account.
type Account struct {
	ID        int     `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Profile   Profile `json:"profile"`
}

// FullName returns "First Last".
func (a Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Project categories.
const (
	CategoryArts       = "ART"
	CategoryEducation  = "EDN"
	CategoryFashion    = "FSN"
	CategoryFilm       = "FLM"
	CategoryFinance    = "FNC"
	CategoryMedicine   = "MCN"
	CategorySoftware   = "SFW"
	CategorySport      = "SPT"
	CategoryTechnology = "TEC"
)

// Categories lists every project category code with its display name.
var Categories = map[string]string{
	CategoryArts:       "Arts",
	CategoryEducation:  "Education",
	CategoryFashion:    "Fashion",
	CategoryFilm:       "Film",
	CategoryFinance:    "Finance",
	CategoryMedicine:   "Medicine",
	CategorySoftware:   "Software",
	CategorySport:      "Sport",
	CategoryTechnology: "Technology",
}

// Field limits of the project resource.
const (
	MaxTitleLen       = 150
	MaxDescriptionLen = 3000
	MaxRoleLen        = 40
	MaxDesiredRoles   = 10
)

// NewProject is the body of a project create or update.
type NewProject struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	OwnerRole    string   `json:"owner_role"`
	DesiredRoles []string `json:"desired_roles"`
}

// Validate checks the fields against the limits the server enforces.
func (p NewProject) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title must not be empty")
	}
	if utf8.RuneCountInString(p.Title) > MaxTitleLen {
		return fmt.Errorf("title must not be longer than %d characters", MaxTitleLen)
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLen {
		return fmt.Errorf("description must not be longer than %d characters", MaxDescriptionLen)
	}
	if _, ok := Categories[p.Category]; !ok {
		return fmt.Errorf("unknown category %q", p.Category)
	}
	if strings.TrimSpace(p.OwnerRole) == "" {
		return errors.New("owner role must not be empty")
	}
	if len(p.DesiredRoles) > MaxDesiredRoles {
		return fmt.Errorf("at most %d desired roles are allowed", MaxDesiredRoles)
	}
	for _, r := range append([]string{p.OwnerRole}, p.DesiredRoles...) {
		if utf8.RuneCountInString(r) > MaxRoleLen {
			return fmt.Errorf("role %q is longer than %d characters", r, MaxRoleLen)
		}
	}
	return nil
}

// Project is a student project with its team.
type Project struct {
	ID             int          `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Category       string       `json:"category"`
	CategoryName   string       `json:"category_name"`
	Owner          int          `json:"owner"`
	OwnerFirstName string       `json:"owner_first_name"`
	OwnerLastName  string       `json:"owner_last_name"`
	OwnerRole      string       `json:"owner_role"`
	DesiredRoles   []string     `json:"desired_roles"`
	DateCreated    time.Time    `json:"date_created"`
	TeamMembers    []Membership `json:"team_members"`
}

// Membership is a student's place in a project team.
type Membership struct {
	ID            int    `json:"id"`
	Role          string `json:"role"`
	Project       int    `json:"project"`
	ProjectTitle  string `json:"project_title"`
	User          int    `json:"user"`
	UserFirstName string `json:"user_first_name"`
	UserLastName  string `json:"user_last_name"`
}

// Follow records that a student follows a project.
type Follow struct {
	ID            int    `json:"id"`
	User          int    `json:"user"`
	UserFirstName string `json:"user_first_name"`
	UserLastName  string `json:"user_last_name"`
	Project       int    `json:"project"`
	ProjectTitle  string `json:"project_title"`
}

// Request statuses.
const (
	StatusPending   = "PND"
	StatusAccepted  = "ACP"
	StatusDeclined  = "DCN"
	StatusCancelled = "CNL"
)

// ProjectRequest is a join request or invitation between a student and a project
// owner.
type ProjectRequest struct {
	ID                 int       `json:"id"`
	Requester          int       `json:"requester"`
	RequesterFirstName string    `json:"requester_first_name"`
	RequesterLastName  string    `json:"requester_last_name"`
	Requestee          int       `json:"requestee"`
	RequesteeFirstName string    `json:"requestee_first_name"`
	RequesteeLastName  string    `json:"requestee_last_name"`
	Project            int       `json:"project"`
	ProjectTitle       string    `json:"project_title"`
	Role               string    `json:"role"`
	Status             string    `json:"status"`
	StatusName         string    `json:"status_name"`
	IsActive           bool      `json:"is_active"`
	DateCreated        time.Time `json:"date_created"`
}

// Message is a project discussion message.
type Message struct {
	ID            int       `json:"id"`
	User          int       `json:"user"`
	UserFirstName string    `json:"user_first_name"`
	UserLastName  string    `json:"user_last_name"`
	Project       int       `json:"project"`
	ProjectTitle  string    `json:"project_title"`
	Message       string    `json:"message"`
	DateCreated   time.Time `json:"date_created"`
}
