package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the settings (e.g. "tables[3].columns",
// "db.password").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateSettings performs static checks over s. It never mutates s.
func ValidateSettings(s Settings) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will be labeled with a generic name",
		})
	}
	issues = append(issues, validatePaths(s.Paths)...)
	issues = append(issues, validateSources(s.Sources)...)
	issues = append(issues, validateDB(s.DB)...)
	issues = append(issues, validateTables(s.Tables)...)
	issues = append(issues, validateTransform(s.Transform, s.Tables)...)
	issues = append(issues, validateRuntime(s.Runtime)...)

	return issues
}

func validatePaths(p Paths) []Issue {
	var issues []Issue
	seen := map[string]string{}
	for _, np := range p.All() {
		path := "paths." + np.Name
		if strings.TrimSpace(np.Path) == "" {
			issues = append(issues, Issue{SeverityError, path, "path must not be empty"})
			continue
		}
		clean := filepath.Clean(np.Path)
		if other, dup := seen[clean]; dup {
			issues = append(issues, Issue{SeverityError, path,
				fmt.Sprintf("path %q is also used by paths.%s; stages would overwrite each other", np.Path, other)})
			continue
		}
		seen[clean] = np.Name
	}
	return issues
}

func validateSources(ss Sources) []Issue {
	var issues []Issue
	if len(ss) == 0 {
		return append(issues, Issue{SeverityError, "sources", "at least one source is required"})
	}
	names := map[string]struct{}{}
	for i, src := range ss {
		path := fmt.Sprintf("sources[%d]", i)
		if strings.TrimSpace(src.Name) == "" {
			issues = append(issues, Issue{SeverityError, path + ".name", "source name must not be empty"})
		} else {
			key := strings.ToUpper(src.Name)
			if _, dup := names[key]; dup {
				issues = append(issues, Issue{SeverityError, path + ".name", fmt.Sprintf("duplicate source %q", src.Name)})
			}
			names[key] = struct{}{}
		}
		if strings.TrimSpace(src.File) == "" {
			issues = append(issues, Issue{SeverityError, path + ".file", "source file must not be empty"})
		} else if filepath.Base(src.File) != src.File {
			issues = append(issues, Issue{SeverityWarning, path + ".file",
				"source file contains a directory; it is resolved relative to paths.raw"})
		}
	}
	return issues
}

func validateDB(db DBConfig) []Issue {
	var issues []Issue

	switch db.Driver {
	case DriverMySQL, DriverPostgres, DriverMSSQL, DriverSQLite:
	case "":
		issues = append(issues, Issue{SeverityError, "db.driver", "db.driver must not be empty"})
	default:
		issues = append(issues, Issue{SeverityWarning, "db.driver",
			fmt.Sprintf("unknown driver %q; ensure a matching backend is registered", db.Driver)})
	}

	if strings.TrimSpace(db.DSN) == "" {
		if strings.TrimSpace(db.Database) == "" {
			issues = append(issues, Issue{SeverityError, "db.database", "db.database must not be empty"})
		}
		if db.Driver != DriverSQLite {
			if strings.TrimSpace(db.Host) == "" {
				issues = append(issues, Issue{SeverityError, "db.host", "db.host must not be empty"})
			}
			if db.Port <= 0 || db.Port > 65535 {
				issues = append(issues, Issue{SeverityError, "db.port", fmt.Sprintf("port %d out of range", db.Port)})
			}
		}
	}

	if db.passwordInFile {
		issues = append(issues, Issue{SeverityWarning, "db.password",
			"password is stored in cleartext in the config file; set " + EnvDBPassword + " instead"})
	}
	return issues
}

func validateTables(ts TableStructures) []Issue {
	var issues []Issue
	if len(ts) == 0 {
		return append(issues, Issue{SeverityError, "tables", "at least one table is required"})
	}

	keys := map[string]string{} // key column -> table
	names := map[string]struct{}{}
	for i, t := range ts {
		path := fmt.Sprintf("tables[%d]", i)
		if strings.TrimSpace(t.Name) == "" {
			issues = append(issues, Issue{SeverityError, path + ".name", "table name must not be empty"})
		}
		if _, dup := names[t.Name]; dup {
			issues = append(issues, Issue{SeverityError, path + ".name", fmt.Sprintf("duplicate table %q", t.Name)})
		}
		names[t.Name] = struct{}{}

		if len(t.Columns) == 0 {
			issues = append(issues, Issue{SeverityError, path + ".columns", "table has no columns"})
			continue
		}
		seen := map[string]struct{}{}
		for _, c := range t.Columns {
			if strings.TrimSpace(c) == "" {
				issues = append(issues, Issue{SeverityError, path + ".columns", "column name must not be empty"})
				continue
			}
			if _, dup := seen[c]; dup {
				issues = append(issues, Issue{SeverityError, path + ".columns",
					fmt.Sprintf("duplicate column %q in table %s", c, t.Name)})
			}
			seen[c] = struct{}{}
		}
		keys[t.Columns[0]] = t.Name
	}

	// Naming convention: a non-key *_id column refers to the table whose
	// key carries the same name.
	for i, t := range ts {
		if len(t.Columns) < 2 {
			continue
		}
		for _, c := range t.Columns[1:] {
			if !strings.HasSuffix(c, "_id") {
				continue
			}
			target, ok := keys[c]
			if !ok {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("tables[%d].columns", i),
					fmt.Sprintf("foreign key %s.%s matches no table key", t.Name, c)})
				continue
			}
			if target == t.Name {
				issues = append(issues, Issue{SeverityError, fmt.Sprintf("tables[%d].columns", i),
					fmt.Sprintf("column %s.%s duplicates the table key", t.Name, c)})
			}
		}
	}
	return issues
}

func validateTransform(tp TransformParams, ts TableStructures) []Issue {
	var issues []Issue

	if strings.TrimSpace(tp.DateFormat) == "" {
		issues = append(issues, Issue{SeverityError, "transform.date_format", "date format must not be empty"})
	} else if _, err := tp.DateLayout(); err != nil {
		issues = append(issues, Issue{SeverityError, "transform.date_format", err.Error()})
	}

	if len(tp.NumericColumns) == 0 {
		issues = append(issues, Issue{SeverityWarning, "transform.numeric_columns",
			"no numeric columns; measures will be loaded as text"})
		return issues
	}

	fact, ok := ts.Lookup(TableData)
	if !ok {
		return append(issues, Issue{SeverityError, "tables",
			fmt.Sprintf("fact table %q is required to resolve numeric columns", TableData)})
	}
	cols := make(map[string]struct{}, len(fact.Columns))
	for _, c := range fact.Columns {
		cols[strings.ToLower(c)] = struct{}{}
	}
	for i, n := range tp.NumericColumns {
		if _, ok := cols[strings.ToLower(strings.TrimSpace(n))]; !ok {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("transform.numeric_columns[%d]", i),
				fmt.Sprintf("numeric column %q is not a column of table %s", n, TableData)})
		}
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue
	if r.BatchSize <= 0 {
		issues = append(issues, Issue{SeverityWarning, "runtime.batch_size",
			fmt.Sprintf("batch_size=%d; a default will be used", r.BatchSize)})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.channel_buffer", "channel_buffer must not be negative"})
	}
	if r.TransformWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.transform_workers", "transform_workers must not be negative"})
	}
	return issues
}
