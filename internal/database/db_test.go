package database

import (
	"strings"
	"testing"
)

func TestDSNParsesTimeInUTC(t *testing.T) {
	dsn := Options{User: "u", Pass: "p", Host: "db", Port: "3306", Name: "cards"}.DSN()
	if !strings.HasPrefix(dsn, "u:p@tcp(db:3306)/cards?") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("dsn should enable parseTime: %q", dsn)
	}
	if !strings.Contains(dsn, "clientFoundRows=true") {
		t.Fatalf("dsn should report matched rows: %q", dsn)
	}
}

func TestStatementsSkipComments(t *testing.T) {
	stmts := Statements()
	if len(stmts) != 6 {
		t.Fatalf("expected 6 statements, got %d", len(stmts))
	}
	for _, s := range stmts {
		if !strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS") {
			t.Fatalf("unexpected statement start: %.40q", s)
		}
	}
}
