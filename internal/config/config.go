package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses "24h"-style yaml values into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type Logger struct {
	Level string `yaml:"level"`
}

type Global struct {
	Logger Logger `yaml:"logger"`
}

type Source struct {
	URL      string `yaml:"url"`
	PageSize int    `yaml:"page_size"`
}

type Destination struct {
	URL          string `yaml:"url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Organization string `yaml:"organization"`
}

type State struct {
	Path string `yaml:"path"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Bucket         string `yaml:"bucket"`
	Region         string `yaml:"region"`
	Prefix         string `yaml:"prefix"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

type Reports struct {
	Type          string      `yaml:"type"`
	LocalConfig   LocalConfig `yaml:"local"`
	S3Config      S3Config    `yaml:"s3"`
	RetentionDays int         `yaml:"retention_days"`
}

// RetentionAge converts the configured retention into a cutoff age.
func (r Reports) RetentionAge() time.Duration {
	return time.Duration(r.RetentionDays) * 24 * time.Hour
}

type Structures struct {
	Enabled       bool    `yaml:"enabled"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

type Job struct {
	Name        string      `yaml:"name"`
	Source      Source      `yaml:"source"`
	Destination Destination `yaml:"destination"`
	State       State       `yaml:"state"`
	Reports     Reports     `yaml:"reports"`
	Structures  Structures  `yaml:"structures"`
	Interval    Duration    `yaml:"interval"`
}

type Harvester struct {
	Global Global `yaml:"global"`
	Job    Job    `yaml:"harvester"`
}

// NewHarvesterFromFile loads the config. Environment references like
// ${I14Y_CLIENT_SECRET} are expanded, so credentials stay out of the
// file itself.
func NewHarvesterFromFile(fpath string) (*Harvester, error) {
	bs, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}

	var harvester Harvester
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(bs))), &harvester); err != nil {
		return nil, err
	}

	if err := harvester.validate(); err != nil {
		return nil, err
	}

	return &harvester, nil
}

func (h *Harvester) validate() error {
	if h.Job.Source.URL == "" {
		return fmt.Errorf("config: harvester.source.url is required")
	}
	if h.Job.Destination.URL == "" {
		return fmt.Errorf("config: harvester.destination.url is required")
	}
	if h.Job.Destination.TokenURL == "" {
		return fmt.Errorf("config: harvester.destination.token_url is required")
	}
	if h.Job.Destination.Organization == "" {
		return fmt.Errorf("config: harvester.destination.organization is required")
	}
	if h.Job.State.Path == "" {
		return fmt.Errorf("config: harvester.state.path is required")
	}
	switch h.Job.Reports.Type {
	case "", "local", "s3":
	default:
		return fmt.Errorf("config: unknown reports type: %s", h.Job.Reports.Type)
	}
	return nil
}
