package main

import (
	"io/fs"
	"strings"
	"testing"

	appmigrations "github.com/ramurama/populardoctor-webapi/migrations"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args    []string
		cmd     string
		n       int
		wantErr bool
	}{
		{nil, "up", 0, false},
		{[]string{"up"}, "up", 0, false},
		{[]string{"down"}, "down", 1, false},
		{[]string{"down", "2"}, "down", 2, false},
		{[]string{"force", "3"}, "force", 3, false},
		{[]string{"force"}, "", 0, true},
		{[]string{"force", "x"}, "", 0, true},
		{[]string{"version"}, "version", 0, false},
		{[]string{"drop"}, "", 0, true},
	}
	for _, tc := range cases {
		cmd, n, err := parseArgs(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%v: expected error", tc.args)
			}
			continue
		}
		if err != nil || cmd != tc.cmd || n != tc.n {
			t.Fatalf("%v: got (%q, %d, %v), want (%q, %d)", tc.args, cmd, n, err, tc.cmd, tc.n)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(appmigrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	ups, downs := 0, 0
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		}
	}
	if ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}
