package transport_test

import (
	"errors"
	"testing"

	"github.com/birpc-go/birpc/transport"
)

func TestIsForbidden(t *testing.T) {
	cases := map[int]bool{401: true, 403: true, 200: false, 500: false, 404: false}
	for status, want := range cases {
		if got := transport.IsForbidden(status); got != want {
			t.Errorf("IsForbidden(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestForbiddenErrorUnwraps(t *testing.T) {
	cause := errors.New("401 unauthorized")
	err := &transport.ForbiddenError{StatusCode: 401, Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected ForbiddenError to unwrap to its cause")
	}
}

func TestTransientErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &transport.TransientError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected TransientError to unwrap to its cause")
	}
}
