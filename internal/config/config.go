// Package config loads portfolio.toml.
//
// Every field is optional. A missing file yields Default(). After the file,
// PORTFOLIO_* environment variables override single values, so a share
// secret never has to be written to disk.
//
//	[server]
//	port = 8080
//
//	[store]
//	db_path  = "~/.local/share/portfolio/journal.db"
//	data_dir = "~/.local/share/portfolio"
//
//	[profile]
//	nickname = "ana"
//	colors   = ["#008000", "#00FF00"]
//
//	[share]
//	secret     = "..."      # signs invite tokens, 16+ characters
//	passphrase = "sesame"   # empty: anyone who reaches the port may join
//	token_ttl  = "5m"
//	rate_limit = 50         # inbound frames per second per guest
//
//	[slideshow]
//	title    = "Portfolio"
//	interval = 10           # autoplay seconds: 2, 10, 30 or 60
//	width    = 1024
//	height   = 768
//
//	[audio]
//	record    = ["arecord", "-q", "-f", "cd", "-t", "wav", "{in}"]
//	transcode = [...]
//	play      = ["gst-play-1.0", "-q", "{file}"]
//
//	[log]
//	level = "info"
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/sakif/portfolio/internal/audio"
	"github.com/sakif/portfolio/internal/model"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "portfolio.toml"

// Server configures the local HTTP control API.
type Server struct {
	Port int `toml:"port,omitempty" json:"port,omitempty" jsonschema:"minimum=0,maximum=65535,description=Port of the control API and share endpoints (0 picks a free port)"`
}

// Store configures the journal.
type Store struct {
	DBPath  string `toml:"db_path,omitempty" json:"db_path,omitempty" jsonschema:"description=SQLite journal file"`
	DataDir string `toml:"data_dir,omitempty" json:"data_dir,omitempty" jsonschema:"description=Directory for document payloads, recordings and exports"`
}

// Profile is the local participant.
type Profile struct {
	Nickname string   `toml:"nickname,omitempty" json:"nickname,omitempty" jsonschema:"maxLength=32,description=Name shown to peers"`
	Colors   []string `toml:"colors,omitempty" json:"colors,omitempty" jsonschema:"minItems=2,maxItems=2,description=Stroke and fill colors"`
}

// Share configures hosting.
type Share struct {
	Secret     string `toml:"secret,omitempty" json:"secret,omitempty" jsonschema:"minLength=16,description=Key that signs invite tokens"`
	Passphrase string `toml:"passphrase,omitempty" json:"passphrase,omitempty" jsonschema:"description=Passphrase guests must give to join"`
	TokenTTL   string `toml:"token_ttl,omitempty" json:"token_ttl,omitempty" jsonschema:"description=Invite token lifetime as a Go duration (e.g. 5m)"`
	RateLimit  int    `toml:"rate_limit,omitempty" json:"rate_limit,omitempty" jsonschema:"minimum=1,description=Inbound frames per second accepted from one guest"`
	QueueSize  int    `toml:"queue_size,omitempty" json:"queue_size,omitempty" jsonschema:"minimum=1,description=Outbound frames buffered per guest before it is dropped"`
}

// Slideshow configures the presentation.
type Slideshow struct {
	Title    string `toml:"title,omitempty" json:"title,omitempty" jsonschema:"description=Activity title, used for ODP exports"`
	Interval int    `toml:"interval,omitempty" json:"interval,omitempty" jsonschema:"enum=2,enum=10,enum=30,enum=60,description=Autoplay interval in seconds"`
	Width    int    `toml:"width,omitempty" json:"width,omitempty" jsonschema:"minimum=1,description=Drawing width of the thumbnail grid"`
	Height   int    `toml:"height,omitempty" json:"height,omitempty" jsonschema:"minimum=1,description=Drawing height"`
}

// Audio holds the argv templates of the audio commands.
type Audio struct {
	Record    []string `toml:"record,omitempty" json:"record,omitempty" jsonschema:"description=Capture command; {in} is the raw capture path"`
	Transcode []string `toml:"transcode,omitempty" json:"transcode,omitempty" jsonschema:"description=Encode command; {in} raw capture, {out} ogg clip"`
	Play      []string `toml:"play,omitempty" json:"play,omitempty" jsonschema:"description=Playback command; {file} is the clip"`
	Disabled  bool     `toml:"disabled,omitempty" json:"disabled,omitempty" jsonschema:"description=Turn recording and playback off"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,description=Minimum log level"`
}

// Config is the whole file.
type Config struct {
	Server    Server    `toml:"server,omitempty" json:"server,omitempty" jsonschema:"description=Local HTTP server"`
	Store     Store     `toml:"store,omitempty" json:"store,omitempty" jsonschema:"description=Journal location"`
	Profile   Profile   `toml:"profile,omitempty" json:"profile,omitempty" jsonschema:"description=Local participant"`
	Share     Share     `toml:"share,omitempty" json:"share,omitempty" jsonschema:"description=Hosting a shared session"`
	Slideshow Slideshow `toml:"slideshow,omitempty" json:"slideshow,omitempty" jsonschema:"description=Presentation"`
	Audio     Audio     `toml:"audio,omitempty" json:"audio,omitempty" jsonschema:"description=Audio note commands"`
	Log       Log       `toml:"log,omitempty" json:"log,omitempty" jsonschema:"description=Logging"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: Server{Port: 8080},
		Store: Store{
			DBPath:  filepath.Join(dataDir, "journal.db"),
			DataDir: dataDir,
		},
		Profile: Profile{
			Nickname: defaultNick(),
			Colors:   []string{model.DefaultColors[0], model.DefaultColors[1]},
		},
		Share: Share{
			TokenTTL:  "5m",
			RateLimit: 50,
			QueueSize: 256,
		},
		Slideshow: Slideshow{
			Interval: 10,
			Width:    1024,
			Height:   768,
		},
		Audio: Audio{
			Record:    slices.Clone(audio.DefaultCommands.Record),
			Transcode: slices.Clone(audio.DefaultCommands.Transcode),
			Play:      slices.Clone(audio.DefaultCommands.Play),
		},
		Log: Log{Level: "info"},
	}
}

func defaultDataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "portfolio")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".local", "share", "portfolio")
}

func defaultNick() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "me"
}

// Load reads path (DefaultPath when empty) over Default(), applies the
// environment, and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	cfg := Default()

	file, err := os.Open(expandHome(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("config: opening %s: %w", path, err)
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	cfg.Store.DBPath = expandHome(cfg.Store.DBPath)
	cfg.Store.DataDir = expandHome(cfg.Store.DataDir)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes TOML over cfg. Keys absent from data keep their value.
// Unknown keys are an error, so a typo does not silently do nothing.
func Parse(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown keys:\n%s", strict.String())
		}
		return err
	}
	return nil
}

// ApplyEnv overrides values from PORTFOLIO_* variables read with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORTFOLIO_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORTFOLIO_PORT %q is not a number", v)
		}
		c.Server.Port = port
	}
	if v := getenv("PORTFOLIO_DB_PATH"); v != "" {
		c.Store.DBPath = v
	}
	if v := getenv("PORTFOLIO_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := getenv("PORTFOLIO_NICK"); v != "" {
		c.Profile.Nickname = v
	}
	if v := getenv("PORTFOLIO_SHARE_SECRET"); v != "" {
		c.Share.Secret = v
	}
	if v := getenv("PORTFOLIO_PASSPHRASE"); v != "" {
		c.Share.Passphrase = v
	}
	if v := getenv("PORTFOLIO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks values the TOML types cannot.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Profile.Nickname) == "" {
		errs = append(errs, errors.New("profile.nickname is required"))
	}
	if _, err := c.Colors(); err != nil {
		errs = append(errs, err)
	}
	if c.Share.Secret != "" && len(c.Share.Secret) < 16 {
		errs = append(errs, errors.New("share.secret must be at least 16 characters"))
	}
	if _, err := c.TokenTTL(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]int{2, 10, 30, 60}, c.Slideshow.Interval) {
		errs = append(errs, fmt.Errorf("slideshow.interval %d must be 2, 10, 30 or 60", c.Slideshow.Interval))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Colors returns the profile colors.
func (c Config) Colors() (model.Colors, error) {
	if len(c.Profile.Colors) != 2 {
		return model.Colors{}, fmt.Errorf("profile.colors must have two entries, got %d", len(c.Profile.Colors))
	}
	return model.Colors{c.Profile.Colors[0], c.Profile.Colors[1]}, nil
}

// TokenTTL parses share.token_ttl. Empty means the auth default.
func (c Config) TokenTTL() (time.Duration, error) {
	if c.Share.TokenTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Share.TokenTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("share.token_ttl %q is not a positive duration", c.Share.TokenTTL)
	}
	return d, nil
}

// IntervalDuration is the autoplay interval.
func (c Config) IntervalDuration() time.Duration {
	return time.Duration(c.Slideshow.Interval) * time.Second
}

// LogLevel parses log.level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	return level, nil
}

// AudioCommands returns the audio argv templates.
func (c Config) AudioCommands() audio.Commands {
	return audio.Commands{
		Record:    c.Audio.Record,
		Transcode: c.Audio.Transcode,
		Play:      c.Audio.Play,
	}
}

// Encode renders cfg as TOML, for `portfolio config init`.
func Encode(w io.Writer, cfg Config) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(cfg)
}

// Schema returns the JSON Schema of the file.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		// Property names follow the toml tags; the file is TOML.
		FieldNameTag:               "toml",
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.Title = "Portfolio Configuration"
	schema.Description = "Configuration schema for portfolio.toml"
	schema.ID = ""
	return schema
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
