package config

import (
	"strings"
	"testing"
)

// findIssue returns the first issue at path, if any.
func findIssue(issues []Issue, path string) (Issue, bool) {
	for _, iss := range issues {
		if iss.Path == path {
			return iss, true
		}
	}
	return Issue{}, false
}

func TestValidateSettings_DefaultsHaveNoErrors(t *testing.T) {
	t.Parallel()

	issues := ValidateSettings(Defaults())
	if HasErrors(issues) {
		t.Fatalf("Defaults() produced errors: %v", issues)
	}
	for _, iss := range issues {
		if iss.Path == "db.password" {
			t.Fatalf("unexpected password warning for defaults: %v", iss)
		}
	}
}

func TestValidateSettings_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Settings)
		path     string
		severity IssueSeverity
		contains string
	}{
		{
			name:     "duplicate column",
			mutate:   func(s *Settings) { s.Tables[0].Columns = append(s.Tables[0].Columns, "year") },
			path:     "tables[0].columns",
			severity: SeverityError,
			contains: "duplicate column",
		},
		{
			name: "dangling foreign key",
			mutate: func(s *Settings) {
				s.Tables[3].Columns = append(s.Tables[3].Columns, "virus_id")
			},
			path:     "tables[3].columns",
			severity: SeverityError,
			contains: "virus_id",
		},
		{
			name:     "renamed dimension key",
			mutate:   func(s *Settings) { s.Tables[2].Columns[0] = "disease_id" },
			path:     "tables[3].columns",
			severity: SeverityError,
			contains: "pandemie_id",
		},
		{
			name:     "numeric column outside fact",
			mutate:   func(s *Settings) { s.Transform.NumericColumns = append(s.Transform.NumericColumns, "Tested") },
			path:     "transform.numeric_columns[6]",
			severity: SeverityError,
			contains: "Tested",
		},
		{
			name:     "empty path",
			mutate:   func(s *Settings) { s.Paths.Intermediate = " " },
			path:     "paths.intermediate",
			severity: SeverityError,
			contains: "empty",
		},
		{
			name:     "shared path",
			mutate:   func(s *Settings) { s.Paths.Transformed = "./donnees/brutes" },
			path:     "paths.transformed",
			severity: SeverityError,
			contains: "paths.raw",
		},
		{
			name:     "duplicate source",
			mutate:   func(s *Settings) { s.Sources = append(s.Sources, Source{Name: "covid19", File: "x.csv"}) },
			path:     "sources[3].name",
			severity: SeverityError,
			contains: "duplicate",
		},
		{
			name:     "bad date format",
			mutate:   func(s *Settings) { s.Transform.DateFormat = "%Q" },
			path:     "transform.date_format",
			severity: SeverityError,
		},
		{
			name:     "unknown driver",
			mutate:   func(s *Settings) { s.DB.Driver = "oracle" },
			path:     "db.driver",
			severity: SeverityWarning,
		},
		{
			name:     "port out of range",
			mutate:   func(s *Settings) { s.DB.Port = 0 },
			path:     "db.port",
			severity: SeverityError,
		},
		{
			name:     "negative workers",
			mutate:   func(s *Settings) { s.Runtime.TransformWorkers = -1 },
			path:     "runtime.transform_workers",
			severity: SeverityError,
		},
		{
			name:     "password in file",
			mutate:   func(s *Settings) { s.DB.Password = "secret"; s.DB.passwordInFile = true },
			path:     "db.password",
			severity: SeverityWarning,
			contains: EnvDBPassword,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := Defaults()
			tt.mutate(&s)

			iss, ok := findIssue(ValidateSettings(s), tt.path)
			if !ok {
				t.Fatalf("no issue at %s", tt.path)
			}
			if iss.Severity != tt.severity {
				t.Fatalf("severity = %s, want %s (%v)", iss.Severity, tt.severity, iss)
			}
			if tt.contains != "" && !strings.Contains(iss.Message, tt.contains) {
				t.Fatalf("message %q does not contain %q", iss.Message, tt.contains)
			}
		})
	}
}

func TestValidateSettings_SQLiteSkipsHostChecks(t *testing.T) {
	t.Parallel()

	s := Defaults()
	s.DB = DBConfig{Driver: DriverSQLite, Database: "epiviz.db"}

	issues := ValidateSettings(s)
	if _, ok := findIssue(issues, "db.host"); ok {
		t.Fatalf("sqlite must not require a host: %v", issues)
	}
	if _, ok := findIssue(issues, "db.port"); ok {
		t.Fatalf("sqlite must not require a port: %v", issues)
	}
}

func TestIssueError(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "paths.raw", Message: "boom"}
	if got, want := iss.Error(), "error at paths.raw: boom"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
