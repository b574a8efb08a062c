package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	neturl "net/url"
	"syscall"

	"google.golang.org/api/googleapi"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool    { return true }
func (t *errTmp) Unwrap() error     { return t.error }
func MakeTemporary(err error) error { return &errTmp{err} }

// StatusError is returned when a remote server answers with an unexpected status code
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: %d %s: %s", e.URL, e.Code, http.StatusText(e.Code), e.Body)
}

// Temporary implements errTmpIf: throttling, timeouts and server errors are worth a retry
func (e StatusError) Temporary() bool {
	return TemporaryStatus(e.Code)
}

// TemporaryStatus returns true if the HTTP status code denotes a transient failure
func TemporaryStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// NewStatusError builds a StatusError, clipping the body
func NewStatusError(url string, code int, body []byte) error {
	if len(body) > 512 {
		body = append(body[:512:512], []byte("...")...)
	}
	return StatusError{URL: RedactURL(url), Code: code, Body: string(body)}
}

// RedactURL removes the query of an url (it may contain credentials such as a SAS token)
func RedactURL(url string) string {
	u, err := neturl.Parse(url)
	if err != nil || u.RawQuery == "" {
		return url
	}
	u.RawQuery = "[redacted]"
	return u.String()
}

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	//First override some default syscall temporary statuses
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE:
			return true
		}
	}

	//first check explicitely marked error
	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gapiError *googleapi.Error
	if errors.As(err, &gapiError) {
		return gapiError.Code == 429 || gapiError.Code == 500
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the permanent error then to the temporary
// else, priority to no error, then to the temporary and finally to the permanent error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	if len(newErrs) == 0 {
		return err
	}
	newErr := newErrs[0]

	if newErr == nil {
		if !priorityToError {
			return nil
		}
	} else if err == nil {
		err = newErr
	} else if priorityToError != Temporary(err) {
		err = fmt.Errorf("%w\n %v", err, newErr)
	} else {
		err = fmt.Errorf("%w\n %v", newErr, err)
	}
	return MergeErrors(priorityToError, err, newErrs[1:]...)
}
