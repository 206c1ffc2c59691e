package vkfractal

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerDefaultIsSilent(t *testing.T) {
	assert.False(t, Logger().Core().Enabled(zapcore.ErrorLevel))
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Logger().Info("device selected", zap.String("name", "test gpu"))
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "device selected", entries[0].Message)
		assert.Equal(t, "test gpu", entries[0].ContextMap()["name"])
	}

	SetLogger(nil)
	assert.False(t, Logger().Core().Enabled(zapcore.ErrorLevel))
}

var _ vk.DebugReportCallbackFunc = logDebugReport

func TestDebugReportLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	report := func(bit vk.DebugReportFlagBits, msg string) {
		ret := logDebugReport(vk.DebugReportFlags(bit), vk.DebugReportObjectTypeUnknown, 0, 0, 7, "validation", msg, nil)
		assert.Equal(t, vk.Bool32(vk.False), ret)
	}
	report(vk.DebugReportErrorBit, "bad handle")
	report(vk.DebugReportWarningBit, "odd layout")
	report(vk.DebugReportDebugBit, "trace")

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "bad handle", entries[0].Message)
		assert.Equal(t, int32(7), entries[0].ContextMap()["code"])
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	}
}
