package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Capture  CaptureConfig  `yaml:"capture"`
	Vision   VisionConfig   `yaml:"vision"`
	Gallery  GalleryConfig  `yaml:"gallery"`
	Database DatabaseConfig `yaml:"database"`
	MariaDB  MariaDBConfig  `yaml:"mariadb"`
	Web      WebConfig      `yaml:"web"`
}

type CaptureConfig struct {
	Device        string        `yaml:"device"`         // driver URL, e.g. v4l2:///dev/video0 or mjpeg:///path?fps=25
	Window        time.Duration `yaml:"window"`         // length of each capture window
	QuietInterval time.Duration `yaml:"quiet_interval"` // pause between the two windows
}

type VisionConfig struct {
	EmbeddingURL string        `yaml:"embedding_url"`
	Timeout      time.Duration `yaml:"timeout"`
	Detector     string        `yaml:"detector"` // "remote" or "cascade" (needs the gocv build tag)
	CascadePath  string        `yaml:"cascade_path"`
	MaxFrameSize int           `yaml:"max_frame_size"` // frames are downscaled to this before detection
	MinDetScore  float64       `yaml:"min_det_score"`
	CropPadding  float64       `yaml:"crop_padding"`
	CropMaxSize  int           `yaml:"crop_max_size"`
}

type GalleryConfig struct {
	Dir       string  `yaml:"dir"`
	IndexPath string  `yaml:"index_path"` // optional; the gallery is rebuilt on startup when empty
	Threshold float64 `yaml:"threshold"`  // maximum cosine distance for a match
	TopK      int     `yaml:"top_k"`
}

type DatabaseConfig struct {
	URL          string `yaml:"-"`              // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections
}

type MariaDBConfig struct {
	DSN string `yaml:"-"` // e.g. attendance:secret@tcp(mariadb:3306)/attendance?parseTime=true
}

type WebConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	AllowedOrigins string `yaml:"allowed_origins"` // comma separated, empty allows localhost only
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a duration such as "10s". A bare number is taken as seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && n >= 0 {
		return time.Duration(n * float64(time.Second))
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func defaults() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return cfg
}

func Load() *Config {
	d := defaults()

	return &Config{
		Capture: CaptureConfig{
			Device:        envString("CAPTURE_DEVICE", d.Capture.Device),
			Window:        envDuration("CAPTURE_WINDOW", d.Capture.Window),
			QuietInterval: envDuration("CAPTURE_QUIET_INTERVAL", d.Capture.QuietInterval),
		},
		Vision: VisionConfig{
			EmbeddingURL: envString("EMBEDDING_URL", d.Vision.EmbeddingURL),
			Timeout:      envDuration("EMBEDDING_TIMEOUT", d.Vision.Timeout),
			Detector:     envString("DETECTOR", d.Vision.Detector),
			CascadePath:  envString("CASCADE_PATH", d.Vision.CascadePath),
			MaxFrameSize: envInt("DETECTOR_MAX_FRAME_SIZE", d.Vision.MaxFrameSize),
			MinDetScore:  envFloat("DETECTOR_MIN_SCORE", d.Vision.MinDetScore),
			CropPadding:  envFloat("CROP_PADDING", d.Vision.CropPadding),
			CropMaxSize:  envInt("CROP_MAX_SIZE", d.Vision.CropMaxSize),
		},
		Gallery: GalleryConfig{
			Dir:       envString("GALLERY_DIR", d.Gallery.Dir),
			IndexPath: envString("GALLERY_INDEX_PATH", d.Gallery.IndexPath),
			Threshold: envFloat("MATCH_THRESHOLD", d.Gallery.Threshold),
			TopK:      envInt("MATCH_TOP_K", d.Gallery.TopK),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
		},
		MariaDB: MariaDBConfig{
			DSN: os.Getenv("MARIADB_DSN"),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", d.Web.Host),
			Port:           envInt("WEB_PORT", d.Web.Port),
			AllowedOrigins: envString("WEB_ALLOWED_ORIGINS", d.Web.AllowedOrigins),
		},
	}
}

// Validate reports settings the capture service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Capture.Device == "" {
		errs = append(errs, errors.New("CAPTURE_DEVICE is required"))
	}
	if c.Capture.Window <= 0 {
		errs = append(errs, errors.New("CAPTURE_WINDOW must be positive"))
	}
	if c.Gallery.Dir == "" && c.Gallery.IndexPath == "" {
		errs = append(errs, errors.New("GALLERY_DIR or GALLERY_INDEX_PATH is required"))
	}
	if c.Gallery.Threshold <= 0 || c.Gallery.Threshold > 2 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be in (0, 2], got %v", c.Gallery.Threshold))
	}
	switch c.Vision.Detector {
	case "remote":
	case "cascade":
		if c.Vision.CascadePath == "" {
			errs = append(errs, errors.New("CASCADE_PATH is required for the cascade detector"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DETECTOR %q", c.Vision.Detector))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the web server listens on.
func (w WebConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}
