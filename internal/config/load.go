package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load. They take precedence over the
// YAML file.
const (
	EnvDBDriver   = "EPIVIZ_DB_DRIVER"
	EnvDBHost     = "EPIVIZ_DB_HOST"
	EnvDBPort     = "EPIVIZ_DB_PORT"
	EnvDBUser     = "EPIVIZ_DB_USER"
	EnvDBPassword = "EPIVIZ_DB_PASSWORD"
	EnvDBName     = "EPIVIZ_DB_NAME"
	EnvDBDSN      = "EPIVIZ_DB_DSN"

	EnvRawDir          = "EPIVIZ_RAW_DIR"
	EnvIntermediateDir = "EPIVIZ_INTERMEDIATE_DIR"
	EnvTransformedDir  = "EPIVIZ_TRANSFORMED_DIR"

	EnvBatchSize        = "EPIVIZ_BATCH_SIZE"
	EnvChannelBuffer    = "EPIVIZ_CH_BUFFER"
	EnvTransformWorkers = "EPIVIZ_TRANSFORM_WORKERS"
)

// Load resolves Settings with precedence: environment > YAML file > defaults.
//
// path may be empty, in which case only defaults and environment apply.
// getenv is injected for hermetic tests; pass os.Getenv in production.
func Load(path string, getenv func(string) string) (Settings, error) {
	s := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(&s, getenv); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// decodeYAML overlays the document onto s. Keys absent from the document
// keep their current value; lists and maps present in the document replace
// the default wholesale.
func decodeYAML(data []byte, s *Settings) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	// Read the raw keys first: an explicit empty password must differ from
	// an absent one, and yaml.v3 merges into non-nil maps.
	var present struct {
		DB        map[string]any `yaml:"db"`
		Transform map[string]any `yaml:"transform"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return err
	}
	if _, ok := present.Transform["country_aliases"]; ok {
		s.Transform.CountryAliases = nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return err
	}

	if pw, ok := present.DB["password"]; ok && pw != nil && fmt.Sprint(pw) != "" {
		s.DB.passwordInFile = true
	}
	return nil
}

func applyEnv(s *Settings, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", key, v)
		}
		*dst = n
		return nil
	}

	str(EnvDBDriver, &s.DB.Driver)
	str(EnvDBHost, &s.DB.Host)
	str(EnvDBUser, &s.DB.User)
	str(EnvDBName, &s.DB.Database)
	str(EnvDBDSN, &s.DB.DSN)
	// Password is not trimmed: whitespace may be significant.
	if v := getenv(EnvDBPassword); v != "" {
		s.DB.Password = v
		s.DB.passwordInFile = false
	}

	str(EnvRawDir, &s.Paths.Raw)
	str(EnvIntermediateDir, &s.Paths.Intermediate)
	str(EnvTransformedDir, &s.Paths.Transformed)

	for key, dst := range map[string]*int{
		EnvDBPort:           &s.DB.Port,
		EnvBatchSize:        &s.Runtime.BatchSize,
		EnvChannelBuffer:    &s.Runtime.ChannelBuffer,
		EnvTransformWorkers: &s.Runtime.TransformWorkers,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	return nil
}
