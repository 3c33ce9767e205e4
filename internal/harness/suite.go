package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a suite path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// SuiteResult summarizes a run over many scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
	Results  []ScenarioRun     `json:"results"`
}

// ScenarioRun is one scenario's outcome within a suite.
type ScenarioRun struct {
	Path       string  `json:"path"`
	Name       string  `json:"name,omitempty"`
	ChainToken string  `json:"chain_token,omitempty"`
	Result     *Result `json:"result,omitempty"`
}

// ScenarioFailure describes a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Path  string `json:"path"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// ExpandScenarioPaths resolves files and directories to a sorted list of
// scenario files. Directories contribute their *.yaml and *.yml entries
// (non-recursive).
func ExpandScenarioPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: p}
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
				continue
			}
			files = append(files, filepath.Join(p, name))
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}

// RunSuite loads and runs every scenario under paths.
//
// For each scenario file:
//  1. Load and validate the scenario
//  2. Run it via harness.Run
//  3. Collect and report results
//
// A scenario that fails to load or run counts as failed; the suite keeps
// going so one run reports every failure.
func RunSuite(ctx context.Context, paths []string, opts ...Option) (*SuiteResult, error) {
	files, err := ExpandScenarioPaths(paths)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{Results: []ScenarioRun{}}
	fail := func(path, name, msg string) {
		result.Failed++
		result.Failures = append(result.Failures, ScenarioFailure{Path: path, Name: name, Error: msg})
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := Run(ctx, scenario, opts...)
		if err != nil {
			fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		result.Results = append(result.Results, ScenarioRun{
			Path:       path,
			Name:       scenario.Name,
			ChainToken: scenario.ChainToken,
			Result:     run,
		})

		if !run.Pass {
			fail(path, scenario.Name, fmt.Sprintf("scenario assertions failed: %s", strings.Join(run.Errors, "; ")))
			continue
		}
		result.Passed++
	}
	return result, nil
}
