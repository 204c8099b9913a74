package checks

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

// StructuralCheck defines the interface that all structural checks must implement
type StructuralCheck interface {
	// ID returns the unique identifier for this check (e.g., "segment-bounds")
	ID() string

	// Description returns a short description of what this check validates
	Description() string

	// Execute runs the check against a decoded image. The image may be
	// partial if decoding failed.
	Execute(img *elfparse.Image) CheckResult
}

// CheckStatus represents the possible outcomes of a check
type CheckStatus string

const (
	StatusPass  CheckStatus = "pass"
	StatusFail  CheckStatus = "fail"
	StatusSkip  CheckStatus = "skip"
	StatusError CheckStatus = "error"
)

// CheckResult contains the outcome of a check execution
type CheckResult struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Status      CheckStatus            `json:"status"`
	Message     string                 `json:"message"`
	Issues      []string               `json:"issues,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Duration    time.Duration          `json:"duration"`
}

// CheckRegistry manages an ordered collection of checks
type CheckRegistry struct {
	order  []string
	checks map[string]StructuralCheck
}

// NewCheckRegistry creates a new check registry
func NewCheckRegistry() *CheckRegistry {
	return &CheckRegistry{
		checks: make(map[string]StructuralCheck),
	}
}

// Register adds a check to the registry
func (r *CheckRegistry) Register(check StructuralCheck) error {
	if _, exists := r.checks[check.ID()]; exists {
		return fmt.Errorf("check %q already registered", check.ID())
	}
	r.checks[check.ID()] = check
	r.order = append(r.order, check.ID())
	return nil
}

// Get retrieves a check by ID
func (r *CheckRegistry) Get(id string) (StructuralCheck, bool) {
	check, exists := r.checks[id]
	return check, exists
}

// List returns all registered checks in registration order
func (r *CheckRegistry) List() []StructuralCheck {
	checks := make([]StructuralCheck, 0, len(r.order))
	for _, id := range r.order {
		checks = append(checks, r.checks[id])
	}
	return checks
}

// RunnerOptions tune which checks run
type RunnerOptions struct {
	Skip []string
}

// CheckRunner executes checks
type CheckRunner struct {
	registry *CheckRegistry
	skip     map[string]bool
}

// NewCheckRunner creates a new check runner
func NewCheckRunner(registry *CheckRegistry, opts RunnerOptions) *CheckRunner {
	skip := make(map[string]bool, len(opts.Skip))
	for _, id := range opts.Skip {
		skip[id] = true
	}
	return &CheckRunner{
		registry: registry,
		skip:     skip,
	}
}

// CheckReport contains the results of running multiple checks
type CheckReport struct {
	Path    string        `json:"path"`
	Results []CheckResult `json:"results"`
	Summary CheckSummary  `json:"summary"`
}

// CheckSummary contains summary statistics for a check report
type CheckSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Passed reports whether no check failed or errored
func (r *CheckReport) Passed() bool {
	return r.Summary.Failed == 0 && r.Summary.Errors == 0
}

// RunAll executes all registered checks against an image
func (r *CheckRunner) RunAll(path string, img *elfparse.Image) *CheckReport {
	checks := r.registry.List()
	results := make([]CheckResult, 0, len(checks))

	for _, check := range checks {
		results = append(results, r.execute(check, img))
	}

	return newReport(path, results)
}

// RunSelected executes specific checks by ID. Unknown IDs are reported
// together in the returned error; known ones still run.
func (r *CheckRunner) RunSelected(path string, img *elfparse.Image, checkIDs []string) (*CheckReport, error) {
	results := make([]CheckResult, 0, len(checkIDs))
	var unknown *multierror.Error

	for _, id := range checkIDs {
		check, exists := r.registry.Get(id)
		if !exists {
			unknown = multierror.Append(unknown, fmt.Errorf("unknown check %q", id))
			continue
		}
		results = append(results, r.execute(check, img))
	}

	return newReport(path, results), unknown.ErrorOrNil()
}

func (r *CheckRunner) execute(check StructuralCheck, img *elfparse.Image) CheckResult {
	if r.skip[check.ID()] {
		return CheckResult{
			ID:          check.ID(),
			Description: check.Description(),
			Status:      StatusSkip,
			Message:     "skipped by configuration",
		}
	}

	start := time.Now()
	result := check.Execute(img)
	result.ID = check.ID()
	result.Description = check.Description()
	result.Duration = time.Since(start)
	return result
}

func newReport(path string, results []CheckResult) *CheckReport {
	return &CheckReport{
		Path:    path,
		Results: results,
		Summary: calculateSummary(results),
	}
}

// calculateSummary calculates summary statistics from check results
func calculateSummary(results []CheckResult) CheckSummary {
	summary := CheckSummary{Total: len(results)}

	for _, result := range results {
		switch result.Status {
		case StatusPass:
			summary.Passed++
		case StatusFail:
			summary.Failed++
		case StatusSkip:
			summary.Skipped++
		case StatusError:
			summary.Errors++
		}
	}

	return summary
}
