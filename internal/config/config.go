// Package config provides configuration management for sitekit using Viper
// for loading from files, environment variables and command-line flags.
//
// The heart of the configuration is the path table: for every asset category
// (html, js, css, images, fonts) a set of source globs, an output directory
// and a set of watch globs. Everything else tunes the libraries the tasks
// delegate to, the dev server and logging.
package config

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/conneroisu/sitekit/internal/fileset"
	"github.com/spf13/viper"
)

// DefaultConfigName is the config file looked up in the project root.
const DefaultConfigName = ".sitekit"

// EnvPrefix prefixes every environment override, e.g. SITEKIT_SERVER_PORT.
const EnvPrefix = "SITEKIT"

type Config struct {
	Paths       PathsConfig       `mapstructure:"paths" yaml:"paths"`
	HTML        HTMLConfig        `mapstructure:"html" yaml:"html"`
	Styles      StylesConfig      `mapstructure:"styles" yaml:"styles"`
	Scripts     ScriptsConfig     `mapstructure:"scripts" yaml:"scripts"`
	Images      ImagesConfig      `mapstructure:"images" yaml:"images"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type HTMLConfig struct {
	Layouts            string `mapstructure:"layouts" yaml:"layouts"`
	Partials           string `mapstructure:"partials" yaml:"partials"`
	DefaultLayout      string `mapstructure:"default_layout" yaml:"default_layout"`
	RemoveComments     bool   `mapstructure:"remove_comments" yaml:"remove_comments"`
	CollapseWhitespace bool   `mapstructure:"collapse_whitespace" yaml:"collapse_whitespace"`
}

type StylesConfig struct {
	Entry           string   `mapstructure:"entry" yaml:"entry"`
	Basename        string   `mapstructure:"basename" yaml:"basename"`
	Suffix          string   `mapstructure:"suffix" yaml:"suffix"`
	Targets         []string `mapstructure:"targets" yaml:"targets"`
	IncludePaths    []string `mapstructure:"include_paths" yaml:"include_paths,omitempty"`
	SpecialComments bool     `mapstructure:"special_comments" yaml:"special_comments"`
}

// OutputName is the file name the styles task writes, e.g. style.min.css.
func (s StylesConfig) OutputName() string {
	return s.Basename + s.Suffix + ".css"
}

type ScriptsConfig struct {
	Output string `mapstructure:"output" yaml:"output"`
	Minify bool   `mapstructure:"minify" yaml:"minify"`
	Target string `mapstructure:"target" yaml:"target"`
}

type ImagesConfig struct {
	JPEGQuality   int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	PNGLevel      string `mapstructure:"png_level" yaml:"png_level"`
	OnlyNewer     bool   `mapstructure:"only_newer" yaml:"only_newer"`
	GIFInterlaced bool   `mapstructure:"gif_interlaced" yaml:"gif_interlaced"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	Open bool   `mapstructure:"open" yaml:"open"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DevelopmentConfig struct {
	HotReload     bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	CSSInjection  bool          `mapstructure:"css_injection" yaml:"css_injection"`
	ErrorOverlay  bool          `mapstructure:"error_overlay" yaml:"error_overlay"`
	Debounce      time.Duration `mapstructure:"debounce" yaml:"debounce"`
	DesktopNotify bool          `mapstructure:"desktop_notify" yaml:"desktop_notify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// SetDefaults registers every default on v. Per-category paths are left empty
// here and derived from paths.src and paths.dist in Load.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.src", "src")
	v.SetDefault("paths.dist", "dist")

	v.SetDefault("html.default_layout", "default")
	v.SetDefault("html.remove_comments", true)
	v.SetDefault("html.collapse_whitespace", true)

	v.SetDefault("styles.basename", "style")
	v.SetDefault("styles.suffix", ".min")
	v.SetDefault("styles.targets", DefaultStyleTargets)
	v.SetDefault("styles.special_comments", false)

	v.SetDefault("scripts.output", "script.min.js")
	v.SetDefault("scripts.minify", true)
	v.SetDefault("scripts.target", "es2017")

	v.SetDefault("images.jpeg_quality", 75)
	v.SetDefault("images.png_level", "best")
	v.SetDefault("images.only_newer", true)
	v.SetDefault("images.gif_interlaced", true)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.open", false)

	v.SetDefault("development.hot_reload", true)
	v.SetDefault("development.css_injection", true)
	v.SetDefault("development.error_overlay", true)
	v.SetDefault("development.debounce", "100ms")
	v.SetDefault("development.desktop_notify", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// DefaultStyleTargets approximates a "last 10 versions" browser list as
// esbuild engine targets.
var DefaultStyleTargets = []string{"chrome58", "edge16", "firefox57", "ios11", "safari11"}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, fills derived defaults and
// validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.applyDerivedDefaults()

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file, env or flag is set.
func Default() *Config {
	cfg, err := LoadFrom(viper.New())
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func (c *Config) applyDerivedDefaults() {
	c.Paths.Src = cleanDir(c.Paths.Src)
	c.Paths.Dist = cleanDir(c.Paths.Dist)
	c.Paths.fill()

	if c.HTML.Layouts == "" {
		c.HTML.Layouts = path.Join(c.Paths.Src, "layouts")
	}
	if c.HTML.Partials == "" {
		c.HTML.Partials = path.Join(c.Paths.Src, "partials")
	}
	if c.Styles.Entry == "" {
		c.Styles.Entry = path.Join(c.Paths.Src, "scss", "main.scss")
	}
	if len(c.Styles.Targets) == 0 {
		c.Styles.Targets = append([]string(nil), DefaultStyleTargets...)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

func cleanDir(dir string) string {
	return fileset.Normalize(strings.TrimSuffix(dir, "/"))
}
