package source

import (
	"testing"

	"github.com/metricq/metricq-import/internal/errors"
)

func TestConfigDSN(t *testing.T) {
	mysql := Config{
		Driver:   "mysql",
		Host:     "db.example.com",
		Port:     3306,
		User:     "importer",
		Password: "hunter2",
		Database: "dataheap",
	}
	want := "importer:hunter2@tcp(db.example.com:3306)/dataheap"
	if got := mysql.DSN(); got != want {
		t.Errorf("mysql DSN = %q, want %q", got, want)
	}

	duck := Config{Driver: "duckdb", Database: "/data/snapshot.db"}
	if got := duck.DSN(); got != "/data/snapshot.db" {
		t.Errorf("duckdb DSN = %q", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		driver string
		name   string
		want   string
		err    bool
	}{
		{"mysql", "elab_ariel_power", "`elab_ariel_power`", false},
		{"duckdb", "elab_ariel_power", `"elab_ariel_power"`, false},
		{"mysql", "room$sensor2", "`room$sensor2`", false},
		{"mysql", "", "", true},
		{"mysql", "a;DROP TABLE b", "", true},
		{"mysql", "name with space", "", true},
		{"mysql", "back`tick", "", true},
		{"mysql", "dotted.name", "", true},
	}

	for _, tt := range tests {
		got, err := quoteIdent(tt.driver, tt.name)
		if tt.err {
			if !errors.Is(err, errors.ErrInvalidMetric) {
				t.Errorf("quoteIdent(%q) err = %v, want ErrInvalidMetric", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("quoteIdent(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("quoteIdent(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
