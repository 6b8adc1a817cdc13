package logging

import (
	"path/filepath"
	"testing"

	"github.com/netways/esarmor/internal/config"
)

func TestNewFileHandlerWritesToConfiguredPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esarmor.log")
	logger, err := New(config.LoggingConfig{Type: "file", File: path, Level: "debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
}

func TestNewFileHandlerRequiresPath(t *testing.T) {
	if _, err := New(config.LoggingConfig{Type: "file"}); err == nil {
		t.Fatal("expected an error when logging.file is empty")
	}
}

func TestParseFacilityRejectsUnknownName(t *testing.T) {
	if _, err := parseFacility("bogus"); err == nil {
		t.Fatal("expected an error for an unrecognized facility")
	}
}

func TestParseFacilityAcceptsKnownNames(t *testing.T) {
	for _, name := range []string{"", "authpriv", "user", "daemon"} {
		if _, err := parseFacility(name); err != nil {
			t.Errorf("facility %q: unexpected error: %v", name, err)
		}
	}
}
