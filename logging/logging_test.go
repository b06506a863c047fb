package logging_test

import (
	"testing"

	"github.com/birpc-go/birpc/logging"
)

func TestGetReturnsNamedLogger(t *testing.T) {
	log := logging.Get("TEST_COMPONENT")
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
	// Named loggers must not panic when used.
	log.Info("smoke test")
}

func TestSugaredWrapsGet(t *testing.T) {
	sugared := logging.Sugared("TEST_COMPONENT")
	if sugared == nil {
		t.Fatal("expected a non-nil sugared logger")
	}
	sugared.Infow("smoke test", "key", "value")
}
