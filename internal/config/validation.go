package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/sitekit/internal/fileset"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", ve.Field, ve.Message)
	if len(ve.Suggestions) > 0 {
		msg += " (" + strings.Join(ve.Suggestions, "; ") + ")"
	}
	return msg
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validatePaths(&config.Paths); err != nil {
		return err
	}
	if err := validateServerConfig(&config.Server); err != nil {
		return err
	}
	if err := validateStylesConfig(&config.Styles); err != nil {
		return err
	}
	if err := validateScriptsConfig(&config.Scripts); err != nil {
		return err
	}
	if err := validateImagesConfig(&config.Images); err != nil {
		return err
	}
	if config.Development.Debounce < 0 {
		return &ValidationError{Field: "development.debounce", Value: config.Development.Debounce, Message: "must not be negative"}
	}
	switch config.Log.Format {
	case "text", "json":
	default:
		return &ValidationError{
			Field:       "log.format",
			Value:       config.Log.Format,
			Message:     "unknown log format",
			Suggestions: []string{`use "text" or "json"`},
		}
	}
	return nil
}

func validatePaths(p *PathsConfig) error {
	if err := validatePath("paths.src", p.Src); err != nil {
		return err
	}
	if err := validatePath("paths.dist", p.Dist); err != nil {
		return err
	}
	if p.Dist == "." {
		return &ValidationError{
			Field:       "paths.dist",
			Value:       p.Dist,
			Message:     "output directory cannot be the project root",
			Suggestions: []string{`the clean task empties it, use a sub directory such as "dist"`},
		}
	}
	if p.Src == p.Dist || isWithin(p.Dist, p.Src) || isWithin(p.Src, p.Dist) {
		return &ValidationError{
			Field:   "paths.dist",
			Value:   p.Dist,
			Message: fmt.Sprintf("output directory overlaps source directory %q", p.Src),
		}
	}

	if _, err := fileset.Compile(p.Clean); err != nil {
		return &ValidationError{Field: "paths.clean", Value: p.Clean, Message: err.Error()}
	}

	for _, c := range Categories {
		spec := p.For(c)
		field := "paths." + string(c)
		if len(spec.Source) == 0 {
			return &ValidationError{Field: field + ".source", Message: "at least one source glob is required"}
		}
		for _, g := range append(append([]string(nil), spec.Source...), spec.Watch...) {
			if _, err := fileset.Compile(g); err != nil {
				return &ValidationError{Field: field, Value: g, Message: err.Error()}
			}
		}
		if err := validatePath(field+".output", spec.Output); err != nil {
			return err
		}
		if spec.Output != p.Dist && !isWithin(spec.Output, p.Dist) {
			return &ValidationError{
				Field:   field + ".output",
				Value:   spec.Output,
				Message: fmt.Sprintf("must be inside %q", p.Dist),
			}
		}
	}
	return nil
}

// validatePath validates a project relative directory.
func validatePath(field, dir string) error {
	if dir == "" {
		return &ValidationError{Field: field, Message: "empty path"}
	}
	if filepath.IsAbs(dir) {
		return &ValidationError{Field: field, Value: dir, Message: "must be relative to the project root"}
	}
	clean := path.Clean(filepath.ToSlash(dir))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return &ValidationError{Field: field, Value: dir, Message: "path escapes the project root"}
	}
	dangerous := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerous {
		if strings.Contains(clean, char) {
			return &ValidationError{Field: field, Value: dir, Message: "path contains dangerous character " + char}
		}
	}
	return nil
}

func isWithin(child, parent string) bool {
	if parent == "." {
		return child != "."
	}
	return strings.HasPrefix(child, parent+"/")
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// 0 asks the OS for a free port, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return &ValidationError{Field: "server.port", Value: config.Port, Message: "not in range 0-65535"}
	}
	if strings.ContainsAny(config.Host, ";&|$`()<>\"'\\ ") {
		return &ValidationError{Field: "server.host", Value: config.Host, Message: "host contains invalid characters"}
	}
	return nil
}

func validateStylesConfig(config *StylesConfig) error {
	if config.Basename == "" {
		return &ValidationError{Field: "styles.basename", Message: "must not be empty"}
	}
	if strings.ContainsAny(config.Basename+config.Suffix, `/\`) {
		return &ValidationError{Field: "styles.basename", Value: config.Basename + config.Suffix, Message: "must be a file name"}
	}
	for _, t := range config.Targets {
		if _, _, err := ParseEngineTarget(t); err != nil {
			return &ValidationError{
				Field:       "styles.targets",
				Value:       t,
				Message:     err.Error(),
				Suggestions: []string{`targets look like "chrome58" or "safari11"`},
			}
		}
	}
	return nil
}

func validateScriptsConfig(config *ScriptsConfig) error {
	if config.Output == "" || strings.ContainsAny(config.Output, `/\`) {
		return &ValidationError{Field: "scripts.output", Value: config.Output, Message: "must be a file name"}
	}
	if _, ok := ScriptTargets[strings.ToLower(config.Target)]; !ok {
		return &ValidationError{
			Field:       "scripts.target",
			Value:       config.Target,
			Message:     "unknown script target",
			Suggestions: []string{`use one of es2015 … es2024 or esnext`},
		}
	}
	return nil
}

func validateImagesConfig(config *ImagesConfig) error {
	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		return &ValidationError{Field: "images.jpeg_quality", Value: config.JPEGQuality, Message: "must be between 1 and 100"}
	}
	switch config.PNGLevel {
	case "default", "speed", "best", "none":
	default:
		return &ValidationError{
			Field:       "images.png_level",
			Value:       config.PNGLevel,
			Message:     "unknown compression level",
			Suggestions: []string{`use "default", "speed", "best" or "none"`},
		}
	}
	return nil
}
