package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: devicesync")

	stderr.Reset()
	assert.Equal(t, 2, run([]string{"purge"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "purge"`)

	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "commands:")
}

func TestRun_ReportsMissingConfiguration(t *testing.T) {
	t.Setenv("ORGDESK_DEVICE_URL", "")
	t.Setenv("ORGDESK_SERVER_URL", "http://localhost:8080")
	t.Setenv("ORGDESK_DEVICE_ID", "")
	t.Setenv("ORGDESK_DEVICE_SECRET", "secret")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run([]string{"test"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "ORGDESK_DEVICE_URL")
	assert.Contains(t, stderr.String(), "ORGDESK_DEVICE_ID")
	assert.Empty(t, stdout.String())
}
