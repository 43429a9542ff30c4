package main

import (
	"testing"

	"github.com/grailbio/respire/activitylog"
	"github.com/stretchr/testify/assert"
)

func TestDedupeBackslashes(t *testing.T) {
	assert.Equal(t, `C:\Program Files\foo`, dedupeBackslashes(`C:\\Program Files\\foo`))
	assert.Equal(t, `/usr/bin/gcc`, dedupeBackslashes(`/usr/bin/gcc`))
	assert.Equal(t, `a\b`, dedupeBackslashes(`a\b`))
	assert.Equal(t, `trailing\`, dedupeBackslashes(`trailing\`))
}

func TestParseArgsDefaults(t *testing.T) {
	params, ok := parseArgs([]string{"root.reg"})
	assert.True(t, ok)
	assert.Equal(t, 1, params.numThreads)
	assert.Equal(t, activitylog.None, params.activityLogLevel)
	assert.Equal(t, "root.reg", params.initialFilePath)
}

func TestParseArgsReadsFlagFollowingDashJ(t *testing.T) {
	params, ok := parseArgs([]string{"-j", "4", "root.reg"})
	assert.True(t, ok)
	assert.Equal(t, 4, params.numThreads)
}

func TestParseArgsActivityLogFlags(t *testing.T) {
	params, ok := parseArgs([]string{"-o", "root.reg"})
	assert.True(t, ok)
	assert.Equal(t, activitylog.ProcessExecutionOnly, params.activityLogLevel)

	params, ok = parseArgs([]string{"-oo", "root.reg"})
	assert.True(t, ok)
	assert.Equal(t, activitylog.All, params.activityLogLevel)
}

func TestParseArgsMissingDashJValueFails(t *testing.T) {
	_, ok := parseArgs([]string{"-j", "root.reg"})
	assert.False(t, ok)
}

func TestParseArgsNoArgsFails(t *testing.T) {
	_, ok := parseArgs(nil)
	assert.False(t, ok)
}

func TestParseArgsUnknownFlagFails(t *testing.T) {
	_, ok := parseArgs([]string{"-x", "root.reg"})
	assert.False(t, ok)
}
