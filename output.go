package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/pazami01/sptb/api"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	_, err := fmt.Fprintln(w, t.String())
	return err
}

// field is one "Label: value" line of a detail view.
type field struct {
	label string
	value string
}

func writeFields(w io.Writer, fields []field) error {
	width := 0
	for _, f := range fields {
		width = max(width, len(f.label))
	}
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%-*s  %s\n", width+1, f.label+":", f.value); err != nil {
			return err
		}
	}
	return nil
}

// render writes v as JSON when asked to, otherwise as text.
func render(w io.Writer, asJSON bool, v any, text func(io.Writer) error) error {
	if asJSON {
		return writeJSON(w, v)
	}
	return text(w)
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func itoa(i int) string { return strconv.Itoa(i) }

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return itoa(n) + " " + many
}

func studentRows(accounts []api.Account) [][]string {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, []string{
			itoa(a.ID),
			a.Username,
			a.FullName(),
			a.Profile.Programme,
			strings.Join(a.Profile.Roles, ", "),
		})
	}
	return rows
}

func studentFields(a *api.Account) []field {
	return []field{
		{"ID", itoa(a.ID)},
		{"Username", a.Username},
		{"Name", a.FullName()},
		{"Email", a.Email},
		{"Programme", a.Profile.Programme},
		{"Roles", strings.Join(a.Profile.Roles, ", ")},
		{"About", a.Profile.About},
	}
}

func projectRows(projects []api.Project) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			itoa(p.ID),
			p.Title,
			p.CategoryName,
			fullName(p.OwnerFirstName, p.OwnerLastName),
			strings.Join(p.DesiredRoles, ", "),
			itoa(len(p.TeamMembers)),
		})
	}
	return rows
}

func writeProject(w io.Writer, p *api.Project) error {
	err := writeFields(w, []field{
		{"ID", itoa(p.ID)},
		{"Title", p.Title},
		{"Category", p.CategoryName},
		{"Owner", fullName(p.OwnerFirstName, p.OwnerLastName) + " (" + p.OwnerRole + ")"},
		{"Wanted", strings.Join(p.DesiredRoles, ", ")},
		{"Created", p.DateCreated.Format("2006-01-02")},
		{"Description", p.Description},
	})
	if err != nil || len(p.TeamMembers) == 0 {
		return err
	}
	if _, err := fmt.Fprintln(w, "\nTeam:"); err != nil {
		return err
	}
	return writeTable(w, []string{"MEMBERSHIP", "STUDENT", "NAME", "ROLE"}, membershipRows(p.TeamMembers, false))
}

func membershipRows(ms []api.Membership, withProject bool) [][]string {
	rows := make([][]string, 0, len(ms))
	for _, m := range ms {
		if withProject {
			rows = append(rows, []string{itoa(m.ID), itoa(m.Project), m.ProjectTitle, m.Role})
			continue
		}
		rows = append(rows, []string{itoa(m.ID), itoa(m.User), fullName(m.UserFirstName, m.UserLastName), m.Role})
	}
	return rows
}

func requestRows(rs []api.ProjectRequest) [][]string {
	rows := make([][]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, []string{
			itoa(r.ID),
			r.ProjectTitle,
			r.Role,
			fullName(r.RequesterFirstName, r.RequesterLastName),
			fullName(r.RequesteeFirstName, r.RequesteeLastName),
			r.StatusName,
		})
	}
	return rows
}

func followRows(fs []api.Follow) [][]string {
	rows := make([][]string, 0, len(fs))
	for _, f := range fs {
		rows = append(rows, []string{itoa(f.ID), itoa(f.Project), f.ProjectTitle})
	}
	return rows
}

func messageRows(ms []api.Message) [][]string {
	rows := make([][]string, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, []string{
			m.DateCreated.Format("2006-01-02 15:04"),
			fullName(m.UserFirstName, m.UserLastName),
			m.Message,
		})
	}
	return rows
}
