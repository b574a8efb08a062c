package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
	if Temporary(NewStatusError("http://host/path", 404, nil)) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
	for _, code := range []int{408, 429, 500, 503} {
		if !Temporary(fmt.Errorf("Warp: %w", NewStatusError("http://host", code, nil))) {
			t.Errorf("status %d must be temporary", code)
		}
	}
}

func TestStatusErrorRedactsCredentials(t *testing.T) {
	err := NewStatusError("https://account.blob.core.windows.net/container/file.parquet?sv=2021&sig=secret", 403, []byte("AuthenticationFailed"))
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("credentials leaked: %s", err)
	}
	var serr StatusError
	if !errors.As(err, &serr) || serr.Code != 403 {
		t.Errorf("expected a StatusError, got %v", err)
	}
}

func TestMergeErrors(t *testing.T) {
	tmp := MakeTemporary(fmt.Errorf("tmp"))
	fatal := fmt.Errorf("fatal")

	if err := MergeErrors(false, tmp, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := MergeErrors(true, nil, fatal, tmp); err == nil || Temporary(err) {
		t.Errorf("expected a fatal error, got %v", err)
	}
	if err := MergeErrors(false, fatal, tmp); !Temporary(err) {
		t.Errorf("expected a temporary error, got %v", err)
	}
}
