package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig feeds arbitrary YAML through the loader. Whatever is
// accepted must come out with every derived path filled in.
func FuzzLoadConfig(f *testing.F) {
	f.Add(`paths:
  src: site
  dist: public`)
	f.Add(`server:
  port: "invalid_port"`)
	f.Add(`server:
  port: 65536`)
	f.Add(`paths:
  src: ../outside`)
	f.Add(`styles:
  targets: [chrome58, netscape4]`)
	f.Add(`development:
  debounce: 250ms`)
	f.Add(`malformed: yaml: content`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, content string) {
		if len(content) > 50000 {
			t.Skip("config content too large")
		}

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader([]byte(content))); err != nil {
			return
		}

		cfg, err := LoadFrom(v)
		if err != nil {
			return
		}
		for _, c := range Categories {
			spec := cfg.Paths.For(c)
			if len(spec.Source) == 0 || spec.Output == "" || len(spec.Watch) == 0 {
				t.Fatalf("category %s left without paths: %+v", c, spec)
			}
		}
		if cfg.Styles.OutputName() == "" || cfg.Paths.Clean == "" {
			t.Fatalf("derived defaults missing: %+v", cfg)
		}
	})
}

// FuzzParseEngineTarget checks the parser never panics and that accepted
// targets split into a known engine and a numeric version.
func FuzzParseEngineTarget(f *testing.F) {
	for _, seed := range []string{"chrome58", "safari11.1", "ios11", "edge", "58", "", "firefox-57"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, target string) {
		engine, version, err := ParseEngineTarget(target)
		if err != nil {
			return
		}
		if engine == "" || version == "" {
			t.Fatalf("ParseEngineTarget(%q) = %q, %q", target, engine, version)
		}
	})
}
