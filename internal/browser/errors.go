package browser

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable   = errors.New("browser runtime unavailable")
	ErrNotFound      = errors.New("element not found")
	ErrSessionClosed = errors.New("browser session closed")
)

// NavigationError 目标页面无法访问（网络 / DNS / HTTP 错误）
type NavigationError struct {
	URL    string
	Status int
	Err    error
}

func (e *NavigationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("navigate %s: http status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// IsNavigationError 判断是否为页面不可达
func IsNavigationError(err error) bool {
	var navErr *NavigationError
	return errors.As(err, &navErr)
}
