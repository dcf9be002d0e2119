package config

import (
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures all runtime options for an allocation run.
type Config struct {
	Workers int           `yaml:"workers"`
	Policy  PolicyConfig  `yaml:"policy"`
	History HistoryConfig `yaml:"history"`
	Report  ReportConfig  `yaml:"report"`
	Logging Logging       `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
}

// PolicyConfig selects the allocation rule.
type PolicyConfig struct {
	// Subtype is used for experiments that do not name one.
	Subtype string `yaml:"subtype"`
}

// History source kinds.
const (
	HistorySourceFile  = "file"
	HistorySourceMySQL = "mysql"
)

// HistoryConfig describes where trial counts are read from.
type HistoryConfig struct {
	Source         string `yaml:"source"`
	Path           string `yaml:"path"`
	DSN            string `yaml:"dsn"`
	Database       string `yaml:"database"`
	Table          string `yaml:"table"`
	QueryTimeoutMs int    `yaml:"query_timeout_ms"`
	// EnsureSchema creates the database and table before reading.
	EnsureSchema bool `yaml:"ensure_schema"`
}

// ReportConfig controls the on-disk output of a run.
type ReportConfig struct {
	OutputDir   string `yaml:"output_dir"`
	UseUUIDPath bool   `yaml:"use_uuid_path"`
	Archive     bool   `yaml:"archive"`
}

// Logging controls stdout logging behavior.
type Logging struct {
	Verbose bool   `yaml:"verbose"`
	LogFile string `yaml:"log_file"`
}

// StorageConfig holds external storage settings.
type StorageConfig struct {
	S3  S3Config  `yaml:"s3"`
	GCS GCSConfig `yaml:"gcs"`
}

// CloudEnabled reports whether any cloud storage backend is enabled.
func (s StorageConfig) CloudEnabled() bool {
	return s.GCS.Enabled || s.S3.Enabled
}

// S3Config configures S3 uploads (legacy and S3-compatible endpoints).
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// GCSConfig configures GCS uploads.
type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	normalizeConfig(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

const (
	workersDefault        = 4
	subtypeDefault        = "UCB1"
	historyTableDefault   = "arm_stats"
	queryTimeoutMsDefault = 5000
)

func normalizeConfig(cfg *Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = workersDefault
	}
	cfg.Policy.Subtype = strings.TrimSpace(cfg.Policy.Subtype)
	if cfg.Policy.Subtype == "" {
		cfg.Policy.Subtype = subtypeDefault
	}
	cfg.History.Source = strings.ToLower(strings.TrimSpace(cfg.History.Source))
	if cfg.History.Source == "" {
		cfg.History.Source = HistorySourceFile
	}
	if strings.TrimSpace(cfg.History.Table) == "" {
		cfg.History.Table = historyTableDefault
	}
	if cfg.History.QueryTimeoutMs <= 0 {
		cfg.History.QueryTimeoutMs = queryTimeoutMsDefault
	}
	if cfg.History.Database != "" {
		cfg.History.DSN = ensureDatabaseInDSN(cfg.History.DSN, cfg.History.Database)
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = "reports"
	}
}

func validateConfig(cfg Config) error {
	switch cfg.History.Source {
	case HistorySourceFile:
		if strings.TrimSpace(cfg.History.Path) == "" {
			return errors.New("history.path is required for the file source")
		}
	case HistorySourceMySQL:
		if strings.TrimSpace(cfg.History.DSN) == "" {
			return errors.New("history.dsn is required for the mysql source")
		}
	default:
		return errors.Errorf("unknown history.source %q", cfg.History.Source)
	}
	return nil
}

// ensureDatabaseInDSN sets dbName only when dsn names no database.
func ensureDatabaseInDSN(dsn string, dbName string) string {
	if dsn == "" || dbName == "" {
		return dsn
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil || parsed.DBName != "" {
		return dsn
	}
	parsed.DBName = dbName
	return parsed.FormatDSN()
}

// UpdateDatabaseInDSN replaces the database name in the DSN path with dbName.
// Unparseable DSNs are returned unchanged.
func UpdateDatabaseInDSN(dsn string, dbName string) string {
	if dsn == "" || dbName == "" {
		return dsn
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return dsn
	}
	parsed.DBName = dbName
	return parsed.FormatDSN()
}

// AdminDSN strips the database name from a DSN while preserving query parameters.
func AdminDSN(dsn string) string {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return dsn
	}
	parsed.DBName = ""
	return parsed.FormatDSN()
}

// RedactDSN masks the password of dsn. A DSN that cannot be parsed is
// masked entirely.
func RedactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "***"
	}
	if parsed.Passwd != "" {
		parsed.Passwd = "***"
	}
	return parsed.FormatDSN()
}

func defaultConfig() Config {
	return Config{
		Workers: workersDefault,
		Policy:  PolicyConfig{Subtype: subtypeDefault},
		History: HistoryConfig{
			Source:         HistorySourceFile,
			Path:           "history.yaml",
			DSN:            "root:@tcp(127.0.0.1:3306)/",
			Database:       "armalloc",
			Table:          historyTableDefault,
			QueryTimeoutMs: queryTimeoutMsDefault,
		},
		Report: ReportConfig{
			OutputDir: "reports",
			Archive:   true,
		},
		Logging: Logging{
			LogFile: "logs/armalloc.log",
		},
	}
}
