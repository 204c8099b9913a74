package checks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raven-betanet/elf-inspector/internal/elfparse"
)

type stubCheck struct {
	id     string
	status CheckStatus
	calls  int
}

func (s *stubCheck) ID() string          { return s.id }
func (s *stubCheck) Description() string { return "stub " + s.id }
func (s *stubCheck) Execute(*elfparse.Image) CheckResult {
	s.calls++
	return CheckResult{Status: s.status, Message: "stubbed"}
}

func TestCheckRegistry(t *testing.T) {
	registry := NewCheckRegistry()
	require.NoError(t, registry.Register(&stubCheck{id: "b"}))
	require.NoError(t, registry.Register(&stubCheck{id: "a"}))
	assert.Error(t, registry.Register(&stubCheck{id: "a"}), "duplicate IDs are rejected")

	ids := []string{}
	for _, c := range registry.List() {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"b", "a"}, ids, "registration order is preserved")

	_, ok := registry.Get("a")
	assert.True(t, ok)
	_, ok = registry.Get("zzz")
	assert.False(t, ok)
}

func TestCheckRunner_RunAll(t *testing.T) {
	pass := &stubCheck{id: "pass", status: StatusPass}
	fail := &stubCheck{id: "fail", status: StatusFail}
	errs := &stubCheck{id: "error", status: StatusError}
	skip := &stubCheck{id: "skipped", status: StatusPass}

	registry := NewCheckRegistry()
	for _, c := range []StructuralCheck{pass, fail, errs, skip} {
		require.NoError(t, registry.Register(c))
	}

	runner := NewCheckRunner(registry, RunnerOptions{Skip: []string{"skipped"}})
	report := runner.RunAll("/bin/true", &elfparse.Image{})

	assert.Equal(t, "/bin/true", report.Path)
	assert.Equal(t, CheckSummary{Total: 4, Passed: 1, Failed: 1, Skipped: 1, Errors: 1}, report.Summary)
	assert.False(t, report.Passed())
	assert.Zero(t, skip.calls, "skipped checks are never executed")
	assert.Equal(t, "stub pass", report.Results[0].Description)
	assert.Equal(t, StatusSkip, report.Results[3].Status)
}

func TestCheckRunner_RunSelected(t *testing.T) {
	registry := NewCheckRegistry()
	require.NoError(t, registry.Register(&stubCheck{id: "one", status: StatusPass}))
	require.NoError(t, registry.Register(&stubCheck{id: "two", status: StatusPass}))

	runner := NewCheckRunner(registry, RunnerOptions{})
	report, err := runner.RunSelected("x", &elfparse.Image{}, []string{"two", "nope", "also-nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown check "nope"`)
	assert.Contains(t, err.Error(), `unknown check "also-nope"`)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "two", report.Results[0].ID)
	assert.True(t, report.Passed())

	_, err = runner.RunSelected("x", &elfparse.Image{}, []string{"one"})
	assert.NoError(t, err)
}
