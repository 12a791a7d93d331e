package mylogger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesServiceAndAction(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "group-service", LevelInfo)

	log.Action("join").Info("member joined", "group_id", "g1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "member joined", line["message"])
	assert.Equal(t, "group-service", line["service"])
	assert.Equal(t, "join", line["action"])
	assert.Equal(t, "g1", line["group_id"])
	assert.NotEmpty(t, line["instance_id"])
	assert.Contains(t, line, "timestamp")
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "svc", LevelWarn)

	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Error("kept", errors.New("boom"))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	errGroup, ok := line["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "boom", errGroup["msg"])
	assert.NotContains(t, errGroup, "message")
	assert.NotEmpty(t, errGroup["stack"])
}
