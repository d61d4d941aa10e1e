package tui

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgVerifying signals that the stored access token is being verified.
type MsgVerifying struct{}

// MsgVerifyOK signals that the server accepted the stored access token.
type MsgVerifyOK struct{}

// MsgVerifyFailed signals that verification failed. It is not fatal.
type MsgVerifyFailed struct{ Err error }

// MsgLoggingIn signals that credentials are being exchanged for tokens.
type MsgLoggingIn struct{ Username string }

// MsgLoginOK signals a successful login.
type MsgLoginOK struct {
	Username  string
	StudentID int
}

// MsgLoginFailed signals that the server rejected the credentials.
type MsgLoginFailed struct{ Err error }

// MsgLoggedOut signals that the tokens were cleared.
type MsgLoggedOut struct{}

// MsgSessionChanged signals an Anonymous/Authenticated transition.
type MsgSessionChanged struct{ State string }

// MsgAccessTokenRejected signals that a call to Path was answered with 401.
type MsgAccessTokenRejected struct{ Path string }

// MsgTokenRefreshedRetrying signals that the token was refreshed and the call to
// Path is being replayed.
type MsgTokenRefreshedRetrying struct{ Path string }

// MsgReAuthRequired signals that the session expired and a new login is needed.
type MsgReAuthRequired struct{ Err error }

// MsgWorking signals that an API call is in progress.
type MsgWorking struct{ What string }

// MsgAPICallOK signals that an API call succeeded.
type MsgAPICallOK struct{ What string }

// MsgAPICallFailed signals that an API call failed.
type MsgAPICallFailed struct{ Err error }

// MsgDone signals that the command finished.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
