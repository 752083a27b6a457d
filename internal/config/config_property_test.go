//go:build property
// +build property

package config

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("paths escaping the root are rejected", prop.ForAll(
		func(depth int, rest string) bool {
			dir := strings.Repeat("../", depth) + rest
			return validatePath("paths.src", dir) != nil
		},
		gen.IntRange(1, 5),
		gen.RegexMatch(`^[a-z]{0,8}$`),
	))

	properties.Property("plain relative directories are accepted", prop.ForAll(
		func(segments []string) bool {
			if len(segments) == 0 {
				return true
			}
			return validatePath("paths.dist", strings.Join(segments, "/")) == nil
		},
		gen.SliceOfN(3, gen.RegexMatch(`^[a-z][a-z0-9_-]{0,7}$`)),
	))

	properties.Property("engine targets round trip", prop.ForAll(
		func(engineIdx, major, minor int) bool {
			engines := []string{"chrome", "edge", "firefox", "ios", "safari", "opera"}
			engine := engines[engineIdx%len(engines)]
			target := fmt.Sprintf("%s%d.%d", engine, major, minor)

			gotEngine, gotVersion, err := ParseEngineTarget(target)
			return err == nil && gotEngine == engine && gotVersion == fmt.Sprintf("%d.%d", major, minor)
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 130),
		gen.IntRange(0, 9),
	))

	properties.TestingRun(t)
}
