package descriptor

import (
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func captureLogger(verbosity int) (*[]string, *hclogAdapter) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, strings.TrimSpace(prefix+" "+args))
	}, funcr.Options{Verbosity: verbosity})
	return &lines, newHclogAdapter(logger).(*hclogAdapter)
}

func TestHclogAdapter_Levels(t *testing.T) {
	lines, log := captureLogger(0)

	log.Debug("hidden")
	log.Info("shown", "k", 1)
	log.Warn("careful")
	log.Error("broken")

	assert.Len(t, *lines, 3)
	assert.Contains(t, (*lines)[0], `"msg"="shown"`)
	assert.Contains(t, (*lines)[1], `"level"="warn"`)
	assert.Contains(t, (*lines)[2], `"msg"="broken"`)
	assert.False(t, log.IsDebug())
	assert.True(t, log.IsWarn())
}

func TestHclogAdapter_Verbose(t *testing.T) {
	lines, log := captureLogger(1)

	log.Trace("trace")
	log.Debug("debug")

	assert.Len(t, *lines, 2)
	assert.True(t, log.IsDebug())
	assert.Equal(t, hclog.Debug, log.GetLevel())
}

func TestHclogAdapter_NamedAndWith(t *testing.T) {
	lines, log := captureLogger(0)

	named := log.Named("registry").Named("git").With("repo", "tk-foo")
	assert.Equal(t, "registry.git", named.Name())
	assert.Equal(t, []interface{}{"repo", "tk-foo"}, named.ImpliedArgs())

	named.Info("cloned")
	assert.Contains(t, (*lines)[0], "registry/git")
	assert.Contains(t, (*lines)[0], `"repo"="tk-foo"`)

	assert.Equal(t, "other", named.ResetNamed("other").Name())

	named.StandardLogger(nil).Print("from std")
	assert.Contains(t, (*lines)[1], `"msg"="from std"`)
}
