package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported storage drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMSSQL    = "mssql"
	DriverSQLite   = "sqlite"
)

const redactedPassword = "xxxxx"

// DBConfig holds the warehouse connection parameters.
//
// Password should come from EPIVIZ_DB_PASSWORD rather than the YAML file;
// ValidateSettings warns when the file carries it.
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Port     int    `yaml:"port"`

	// DSN, when set, is used verbatim and the discrete fields are ignored.
	DSN string `yaml:"dsn"`

	passwordInFile bool
}

// DataSourceName renders the driver-specific connection string.
func (d DBConfig) DataSourceName() (string, error) {
	if strings.TrimSpace(d.DSN) != "" {
		return d.DSN, nil
	}
	return d.build(d.Password)
}

// Redacted returns the connection string with the password masked. It is
// the only form that may be logged.
func (d DBConfig) Redacted() string {
	if dsn := strings.TrimSpace(d.DSN); dsn != "" {
		return redactDSN(d.Driver, dsn)
	}
	pw := ""
	if d.Password != "" {
		pw = redactedPassword
	}
	s, err := d.build(pw)
	if err != nil {
		return fmt.Sprintf("<invalid %s dsn: %v>", d.Driver, err)
	}
	return s
}

func (d DBConfig) build(password string) (string, error) {
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))

	switch d.Driver {
	case DriverMySQL:
		c := mysql.NewConfig()
		c.User = d.User
		c.Passwd = password
		c.Net = "tcp"
		c.Addr = addr
		c.DBName = d.Database
		c.ParseTime = true
		return c.FormatDSN(), nil

	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   userInfo(d.User, password),
			Host:   addr,
			Path:   "/" + d.Database,
		}
		return u.String(), nil

	case DriverMSSQL:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     userInfo(d.User, password),
			Host:     addr,
			RawQuery: url.Values{"database": {d.Database}}.Encode(),
		}
		return u.String(), nil

	case DriverSQLite:
		name := d.Database
		if name == "" {
			return "", fmt.Errorf("sqlite: database file name must not be empty")
		}
		if filepath.Ext(name) == "" {
			name += ".db"
		}
		return name, nil

	default:
		return "", fmt.Errorf("unsupported db driver %q", d.Driver)
	}
}

func userInfo(user, password string) *url.Userinfo {
	if password == "" {
		return url.User(user)
	}
	return url.UserPassword(user, password)
}

func redactDSN(driver, dsn string) string {
	if driver == DriverMySQL {
		if c, err := mysql.ParseDSN(dsn); err == nil {
			if c.Passwd != "" {
				c.Passwd = redactedPassword
			}
			return c.FormatDSN()
		}
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		return u.Redacted()
	}
	if driver == DriverSQLite {
		return dsn
	}
	return "<redacted>"
}
