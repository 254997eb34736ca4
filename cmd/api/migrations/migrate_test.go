package migrations

import (
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	goose.SetBaseFS(fs)
	defer goose.SetBaseFS(nil)
	migs, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(migs) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	b, err := fs.ReadFile("0001_sla.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), DefaultCalendarID) {
		t.Fatalf("default calendar seed missing")
	}
	if !strings.Contains(string(b), "where active") {
		t.Fatalf("expected partial unique index on active policies")
	}
}
