package config

import (
	"fmt"
	"strings"
	"unicode"
)

// StyleEngines are the browser engines accepted in styles.targets.
var StyleEngines = map[string]bool{
	"chrome":  true,
	"edge":    true,
	"firefox": true,
	"ie":      true,
	"ios":     true,
	"opera":   true,
	"safari":  true,
}

// ScriptTargets are the language levels accepted in scripts.target.
var ScriptTargets = map[string]bool{
	"es2015": true,
	"es2016": true,
	"es2017": true,
	"es2018": true,
	"es2019": true,
	"es2020": true,
	"es2021": true,
	"es2022": true,
	"es2023": true,
	"es2024": true,
	"esnext": true,
}

// ParseEngineTarget splits a target such as "safari11.1" into engine and
// version.
func ParseEngineTarget(target string) (engine, version string, err error) {
	target = strings.ToLower(strings.TrimSpace(target))
	i := strings.IndexFunc(target, unicode.IsDigit)
	if i <= 0 {
		return "", "", fmt.Errorf("target %q has no engine or version", target)
	}
	engine, version = target[:i], target[i:]
	if !StyleEngines[engine] {
		return "", "", fmt.Errorf("unknown engine %q", engine)
	}
	for _, r := range version {
		if r != '.' && !unicode.IsDigit(r) {
			return "", "", fmt.Errorf("invalid version %q", version)
		}
	}
	return engine, version, nil
}
