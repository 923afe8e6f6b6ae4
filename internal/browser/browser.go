package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Launcher starts browser sessions
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one running browser process
type Session interface {
	NewPage() (Page, error)
	Close() error
}

// Page is a single browser tab
type Page interface {
	// Navigate loads url and waits until the network is idle or timeout expires
	Navigate(url string, timeout time.Duration) error
	// WaitVisible blocks until selector matches a visible element or timeout expires
	WaitVisible(selector string, timeout time.Duration) error
	// Exists reports whether selector currently matches any element
	Exists(selector string) (bool, error)
	// OuterHTML returns the markup of the first element matching selector
	OuterHTML(selector string) (string, error)
	Close() error
}

// NavigationError reports a failed page load or wait
type NavigationError struct {
	URL string
	Op  string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the navigation failed because its deadline expired
func (e *NavigationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
