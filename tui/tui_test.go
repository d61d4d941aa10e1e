package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
)

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		if !ok {
			t.Fatalf("Update returned %T, want Model", next)
		}
	}
	return m
}

func TestModel_RefreshCycle(t *testing.T) {
	m := update(t, NewModel(), MsgWorking{What: "Listing projects"})
	if m.state != stateWorking {
		t.Fatalf("state = %v, want stateWorking", m.state)
	}

	m = update(t, m, MsgAccessTokenRejected{Path: "api/projects/"})
	if m.state != stateRefreshing {
		t.Errorf("state after 401 = %v, want stateRefreshing", m.state)
	}
	if !strings.Contains(m.viewMain(), "Refreshing access token") {
		t.Error("main view should show the refresh spinner")
	}

	m = update(t, m, MsgTokenRefreshedRetrying{Path: "api/projects/"})
	if m.state != stateWorking {
		t.Errorf("state after refresh = %v, want stateWorking", m.state)
	}
	if len(m.statusLines) != 2 {
		t.Fatalf("status lines = %d, want 2", len(m.statusLines))
	}
	if m.statusLines[0].kind != statusWarn || m.statusLines[1].kind != statusOK {
		t.Errorf("status kinds = %v, %v", m.statusLines[0].kind, m.statusLines[1].kind)
	}
}

func TestModel_DoneAndFatal(t *testing.T) {
	m := update(t, NewModel(), MsgDone{Summary: "3 projects"})
	if m.state != stateSuccess {
		t.Fatalf("state = %v, want stateSuccess", m.state)
	}
	if !strings.Contains(m.viewSuccess(), "3 projects") {
		t.Error("success view should show the summary")
	}

	m = update(t, NewModel(), MsgFatal{Err: errors.New("session expired")})
	if m.state != stateError {
		t.Fatalf("state = %v, want stateError", m.state)
	}
	if !strings.Contains(m.viewError(), "session expired") {
		t.Error("error view should show the error")
	}
	if !strings.Contains(m.viewError(), "Command failed") {
		t.Error("error view should show the failure title")
	}

	m = update(t, NewModel(), MsgAPICallFailed{Err: errors.New("api request failed with status 404: Not found.")})
	if m.state != stateError {
		t.Fatalf("state = %v, want stateError", m.state)
	}
	if v := m.viewError(); !strings.Contains(v, "Rejected by the API") || !strings.Contains(v, "Not found.") {
		t.Errorf("error view should show the rejected call:\n%s", v)
	}
}

func TestModel_LoginStatus(t *testing.T) {
	m := update(t, NewModel(),
		MsgLoggingIn{Username: "amy"},
		MsgLoginOK{Username: "amy", StudentID: 7},
	)
	if got := m.statusLines[len(m.statusLines)-1].text; got != "Logged in as amy (student 7)" {
		t.Errorf("status = %q", got)
	}
}

func TestPlainDisplayer(t *testing.T) {
	var buf bytes.Buffer
	d := NewPlainDisplayer(&buf)

	d.AccessTokenRejected("api/follows/")
	d.TokenRefreshedRetrying("api/follows/")
	d.ReAuthRequired(errors.New("no refresh token"))
	d.LoginOK("amy", 0)

	out := buf.String()
	for _, want := range []string{
		"Access token rejected (401) on api/follows/",
		"retrying api/follows/",
		"Run `sptb login`",
		"Logged in as amy\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlainDisplayer_Banner(t *testing.T) {
	var buf bytes.Buffer
	NewPlainDisplayer(&buf).Banner()
	if !strings.Contains(buf.String(), "Student Project Team Builder") {
		t.Errorf("banner = %q", buf.String())
	}
}

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestProgramDisplayer_SendsMessages(t *testing.T) {
	s := &recordingSender{}
	d := NewProgramDisplayer(s)

	d.AccessTokenRejected("api/projects/")
	d.Done("ok")

	if len(s.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(s.msgs))
	}
	if got, ok := s.msgs[0].(MsgAccessTokenRejected); !ok || got.Path != "api/projects/" {
		t.Errorf("first message = %#v", s.msgs[0])
	}
	if got, ok := s.msgs[1].(MsgDone); !ok || got.Summary != "ok" {
		t.Errorf("second message = %#v", s.msgs[1])
	}
}

var (
	_ Displayer = (*PlainDisplayer)(nil)
	_ Displayer = NoopDisplayer{}
	_ Displayer = (*ProgramDisplayer)(nil)
)
