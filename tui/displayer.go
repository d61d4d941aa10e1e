package tui

import (
	"fmt"
	"io"

	tea "charm.land/bubbletea/v2"
	"github.com/common-nighthawk/go-figure"
)

// AppName is shown in the banner.
const AppName = "sptb"

// Displayer abstracts all progress output of a command. Command results go to
// stdout separately. It also receives the gateway's refresh-and-retry events.
type Displayer interface {
	Banner()
	Verifying()
	VerifyOK()
	VerifyFailed(err error)
	LoggingIn(username string)
	LoginOK(username string, studentID int)
	LoginFailed(err error)
	LoggedOut()
	SessionChanged(state string)
	AccessTokenRejected(path string)
	TokenRefreshedRetrying(path string)
	ReAuthRequired(err error)
	Working(what string)
	APICallOK(what string)
	// APICallFailed ends a command the server rejected with a non-2xx response.
	APICallFailed(err error)
	Done(summary string)
	// Fatal ends a command with any other error.
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w. Callers on several
// goroutines must pass a w that is safe for concurrent writes.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner() {
	fmt.Fprint(p.w, figure.NewFigure(AppName, "cybermedium", true).String())
	fmt.Fprintln(p.w, "Student Project Team Builder")
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) Verifying() {
	fmt.Fprintln(p.w, "Verifying stored token...")
}

func (p *PlainDisplayer) VerifyOK() {
	fmt.Fprintln(p.w, "Token verified successfully!")
}

func (p *PlainDisplayer) VerifyFailed(err error) {
	fmt.Fprintf(p.w, "Token verification failed: %v\n", err)
}

func (p *PlainDisplayer) LoggingIn(username string) {
	fmt.Fprintf(p.w, "Logging in as %s...\n", username)
}

func (p *PlainDisplayer) LoginOK(username string, studentID int) {
	if studentID > 0 {
		fmt.Fprintf(p.w, "Logged in as %s (student %d)\n", username, studentID)
		return
	}
	fmt.Fprintf(p.w, "Logged in as %s\n", username)
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out.")
}

func (p *PlainDisplayer) SessionChanged(state string) {
	fmt.Fprintf(p.w, "Session is now %s\n", state)
}

func (p *PlainDisplayer) AccessTokenRejected(path string) {
	fmt.Fprintf(p.w, "Access token rejected (401) on %s, refreshing...\n", path)
}

func (p *PlainDisplayer) TokenRefreshedRetrying(path string) {
	fmt.Fprintf(p.w, "Token refreshed, retrying %s...\n", path)
}

func (p *PlainDisplayer) ReAuthRequired(err error) {
	fmt.Fprintf(p.w, "Session expired (%v). Run `%s login` to sign in again.\n", err, AppName)
}

func (p *PlainDisplayer) Working(what string) {
	fmt.Fprintf(p.w, "%s...\n", what)
}

func (p *PlainDisplayer) APICallOK(what string) {
	fmt.Fprintf(p.w, "%s: done\n", what)
}

func (p *PlainDisplayer) APICallFailed(err error) {
	fmt.Fprintf(p.w, "Rejected by the API: %v\n", err)
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner()                         {}
func (NoopDisplayer) Verifying()                      {}
func (NoopDisplayer) VerifyOK()                       {}
func (NoopDisplayer) VerifyFailed(_ error)            {}
func (NoopDisplayer) LoggingIn(_ string)              {}
func (NoopDisplayer) LoginOK(_ string, _ int)         {}
func (NoopDisplayer) LoginFailed(_ error)             {}
func (NoopDisplayer) LoggedOut()                      {}
func (NoopDisplayer) SessionChanged(_ string)         {}
func (NoopDisplayer) AccessTokenRejected(_ string)    {}
func (NoopDisplayer) TokenRefreshedRetrying(_ string) {}
func (NoopDisplayer) ReAuthRequired(_ error)          {}
func (NoopDisplayer) Working(_ string)                {}
func (NoopDisplayer) APICallOK(_ string)              {}
func (NoopDisplayer) APICallFailed(_ error)           {}
func (NoopDisplayer) Done(_ string)                   {}
func (NoopDisplayer) Fatal(_ error)                   {}

// Sender is the part of *tea.Program a ProgramDisplayer needs.
type Sender interface {
	Send(msg tea.Msg)
}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p Sender
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p Sender) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner() {
	t.p.Send(MsgBanner{})
}

func (t *ProgramDisplayer) Verifying() {
	t.p.Send(MsgVerifying{})
}

func (t *ProgramDisplayer) VerifyOK() {
	t.p.Send(MsgVerifyOK{})
}

func (t *ProgramDisplayer) VerifyFailed(err error) {
	t.p.Send(MsgVerifyFailed{Err: err})
}

func (t *ProgramDisplayer) LoggingIn(username string) {
	t.p.Send(MsgLoggingIn{Username: username})
}

func (t *ProgramDisplayer) LoginOK(username string, studentID int) {
	t.p.Send(MsgLoginOK{Username: username, StudentID: studentID})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) SessionChanged(state string) {
	t.p.Send(MsgSessionChanged{State: state})
}

func (t *ProgramDisplayer) AccessTokenRejected(path string) {
	t.p.Send(MsgAccessTokenRejected{Path: path})
}

func (t *ProgramDisplayer) TokenRefreshedRetrying(path string) {
	t.p.Send(MsgTokenRefreshedRetrying{Path: path})
}

func (t *ProgramDisplayer) ReAuthRequired(err error) {
	t.p.Send(MsgReAuthRequired{Err: err})
}

func (t *ProgramDisplayer) Working(what string) {
	t.p.Send(MsgWorking{What: what})
}

func (t *ProgramDisplayer) APICallOK(what string) {
	t.p.Send(MsgAPICallOK{What: what})
}

func (t *ProgramDisplayer) APICallFailed(err error) {
	t.p.Send(MsgAPICallFailed{Err: err})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
