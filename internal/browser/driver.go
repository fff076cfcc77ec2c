package browser

import "time"

// Driver is the browser-automation collaborator boundary. The adapter only
// needs to mint isolated recording contexts; everything else happens on the
// returned handles.
type Driver interface {
	// NewRecordingContext creates an isolated browser context whose capture
	// artifacts live under dir.
	NewRecordingContext(dir string) (RecordingContext, error)
}

// RecordingContext is one isolated browser profile bound to a session.
type RecordingContext interface {
	// OpenPage opens a page, navigates it to url and waits until the page
	// is ready, bounded by readyTimeout.
	OpenPage(url string, readyTimeout time.Duration) (Page, error)
	Close() error
}

// Page is a live presentation surface inside a recording context.
type Page interface {
	// Evaluate runs a small script on the page.
	Evaluate(script string) error
	// WaitFor polls a boolean expression until true or the timeout elapses.
	WaitFor(expr string, timeout time.Duration) error
	// VideoPath resolves the finished recording's file path, if any.
	VideoPath() (string, error)
	Close() error
}
