package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	ierr "github.com/costplane/costplane/internal/errors"
	"github.com/costplane/costplane/internal/types"
)

type Configuration struct {
	Backend    string              `mapstructure:"backend" validate:"required"`
	Strategy   types.TableStrategy `mapstructure:"strategy"`
	DataDir    string              `mapstructure:"data_dir"`
	Logging    LoggingConfig       `mapstructure:"logging"`
	AWS        AWSConfig           `mapstructure:"aws"`
	Azure      AzureConfig         `mapstructure:"azure"`
	ClickHouse ClickHouseConfig    `mapstructure:"clickhouse"`
	DuckDB     DuckDBConfig        `mapstructure:"duckdb"`
	Postgres   PostgresConfig      `mapstructure:"postgres"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// AWSConfig holds the CUR export source coordinates plus S3 credentials.
// Credentials left empty fall back to the SDK default chain.
type AWSConfig struct {
	Bucket          string             `mapstructure:"bucket"`
	Prefix          string             `mapstructure:"prefix"`
	ExportName      string             `mapstructure:"export_name"`
	FormatVersion   types.FormatVersion `mapstructure:"format_version"`
	ExportFormat    types.ExportFormat `mapstructure:"export_format"`
	Region          string             `mapstructure:"region"`
	AccessKeyID     string             `mapstructure:"access_key_id"`
	SecretAccessKey string             `mapstructure:"secret_access_key"`
	StartDate       string             `mapstructure:"start_date"`
	EndDate         string             `mapstructure:"end_date"`
	Reset           bool               `mapstructure:"reset"`
}

// AzureConfig holds the Cost Export source coordinates for a storage
// container.
type AzureConfig struct {
	StorageAccount   string `mapstructure:"storage_account"`
	StorageContainer string `mapstructure:"storage_container"`
	StorageDirectory string `mapstructure:"storage_directory"`
	ExportName       string `mapstructure:"export_name"`
	ExportVersion    string `mapstructure:"export_version"` // actual or amortized
	Partitioned      bool   `mapstructure:"partitioned"`
	ConnectionString string `mapstructure:"connection_string"`
	StartDate        string `mapstructure:"start_date"`
	EndDate          string `mapstructure:"end_date"`
	Reset            bool   `mapstructure:"reset"`
}

type ClickHouseConfig struct {
	Address  string `mapstructure:"address"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type DuckDBConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// NewConfig loads configuration from (in increasing precedence) the config
// file, COSTPLANE_-prefixed environment variables, and any flag bindings the
// caller registered on the returned viper before calling Unmarshal again.
func NewConfig() (*Configuration, error) {
	v := NewViper()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, ierr.WithError(err).
				WithHint("failed to read config file").
				Mark(ierr.ErrConfigInvalid)
		}
	}

	return FromViper(v)
}

// NewViper builds the viper instance with file paths and env bindings so the
// CLI can bind flags onto it before unmarshalling.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/costplane")

	v.SetEnvPrefix("COSTPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", "duckdb")
	v.SetDefault("strategy", string(types.StrategySeparate))
	v.SetDefault("data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("duckdb.database_path", "./data/costplane.duckdb")
	v.SetDefault("aws.format_version", string(types.FormatV1))
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("azure.export_version", "amortized")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")

	return v
}

// FromViper unmarshals and validates a configuration.
func FromViper(v *viper.Viper) (*Configuration, error) {
	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to parse configuration").
			Mark(ierr.ErrConfigInvalid)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return ierr.WithError(err).
			WithHint("configuration failed validation").
			Mark(ierr.ErrConfigInvalid)
	}

	if err := c.Strategy.Validate(); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrConfigInvalid)
	}
	if err := c.AWS.FormatVersion.Validate(); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrConfigInvalid)
	}
	if err := c.AWS.ExportFormat.Validate(); err != nil {
		return ierr.WithError(err).Mark(ierr.ErrConfigInvalid)
	}
	return nil
}

// ValidateAWS checks the fields an AWS import run requires.
func (c *Configuration) ValidateAWS() error {
	var missing []string
	if c.AWS.Bucket == "" {
		missing = append(missing, "aws.bucket")
	}
	if c.AWS.Prefix == "" {
		missing = append(missing, "aws.prefix")
	}
	if c.AWS.ExportName == "" {
		missing = append(missing, "aws.export_name")
	}
	if len(missing) > 0 {
		return ierr.NewErrorf("missing required AWS configuration: %s", strings.Join(missing, ", ")).
			WithHint("set the fields in the config file, environment, or flags").
			Mark(ierr.ErrConfigInvalid)
	}
	return nil
}

// ValidateAzure checks the fields an Azure import run requires.
func (c *Configuration) ValidateAzure() error {
	var missing []string
	if c.Azure.StorageContainer == "" {
		missing = append(missing, "azure.storage_container")
	}
	if c.Azure.StorageDirectory == "" {
		missing = append(missing, "azure.storage_directory")
	}
	if c.Azure.ExportName == "" {
		missing = append(missing, "azure.export_name")
	}
	if len(missing) > 0 {
		return ierr.NewErrorf("missing required Azure configuration: %s", strings.Join(missing, ", ")).
			WithHint("set the fields in the config file, environment, or flags").
			Mark(ierr.ErrConfigInvalid)
	}
	return nil
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
