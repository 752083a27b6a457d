package build

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/sitekit/internal/config"
	sitekiterrors "github.com/conneroisu/sitekit/internal/errors"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var scriptTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

func styleEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		name, version, err := config.ParseEngineTarget(t)
		if err != nil {
			return nil, fmt.Errorf("styles target: %w", err)
		}
		engines = append(engines, api.Engine{Name: engineNames[name], Version: version})
	}
	return engines, nil
}

func scriptTarget(name string) (api.Target, error) {
	t, ok := scriptTargets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown script target %q", name)
	}
	return t, nil
}

// minifyCSS adds vendor prefixes for the configured engines and minifies.
func (p *Pipeline) minifyCSS(file string, css string) ([]byte, error) {
	legal := api.LegalCommentsNone
	if p.cfg.Styles.SpecialComments {
		legal = api.LegalCommentsInline
	}
	result := api.Transform(css, api.TransformOptions{
		Loader:           api.LoaderCSS,
		Sourcefile:       file,
		Engines:          p.engines,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LegalComments:    legal,
		LogLevel:         api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, esbuildErrors(TaskStyles, result.Errors, nil)
	}
	return result.Code, nil
}

// minifyJS minifies a concatenated script bundle.
func (p *Pipeline) minifyJS(bundle *concatenation) ([]byte, error) {
	result := api.Transform(bundle.String(), api.TransformOptions{
		Loader:            api.LoaderJS,
		Sourcefile:        p.cfg.Scripts.Output,
		Target:            p.target,
		MinifyWhitespace:  true,
		MinifySyntax:      true,
		MinifyIdentifiers: true,
		LegalComments:     api.LegalCommentsNone,
		LogLevel:          api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, esbuildErrors(TaskScripts, result.Errors, bundle)
	}
	return result.Code, nil
}

// esbuildErrors converts esbuild messages to build errors. When bundle is
// set, bundle lines are mapped back to the file they came from.
func esbuildErrors(task string, msgs []api.Message, bundle *concatenation) error {
	errs := make(sitekiterrors.BuildErrors, 0, len(msgs))
	for _, msg := range msgs {
		be := sitekiterrors.NewBuildError(task, "", fmt.Errorf("%s", msg.Text))
		if loc := msg.Location; loc != nil {
			be.File, be.Line = loc.File, loc.Line
			be.Column = loc.Column + 1
			if bundle != nil {
				be.File, be.Line = bundle.Locate(loc.Line)
			}
		}
		errs = append(errs, be)
	}
	return errs
}

// concatenation joins files with a newline and remembers where each one
// starts.
type concatenation struct {
	b      strings.Builder
	files  []string
	starts []int
	lines  int
}

func (c *concatenation) Add(file string, content []byte) {
	if len(c.files) > 0 {
		c.b.WriteByte('\n')
		c.lines++
	}
	c.files = append(c.files, file)
	c.starts = append(c.starts, c.lines+1)
	c.b.Write(content)
	c.lines += strings.Count(string(content), "\n")
}

func (c *concatenation) String() string { return c.b.String() }

func (c *concatenation) Len() int { return len(c.files) }

// Locate maps a 1-based bundle line to the source file and its own line.
func (c *concatenation) Locate(line int) (string, int) {
	for i := len(c.starts) - 1; i >= 0; i-- {
		if line >= c.starts[i] {
			return c.files[i], line - c.starts[i] + 1
		}
	}
	return "bundle", line
}
