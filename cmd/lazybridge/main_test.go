package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wantCSV = `time,sym,price,bid
6,b,21,20.5
2,b,20,
5,a,12,11
1,a,10.5,10
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestRunPrintsCSV(t *testing.T) {
	out, err := execute(t, "run", "-o", "csv", "testdata/pipeline.yaml")
	require.NoError(t, err)
	assert.Equal(t, wantCSV, out)
}

func TestRunInBackgroundMatchesForeground(t *testing.T) {
	out, err := execute(t, "run", "--background", "-o", "csv", "testdata/pipeline.yaml")
	require.NoError(t, err)
	assert.Equal(t, wantCSV, out)
}

func TestRunPrintsTable(t *testing.T) {
	out, err := execute(t, "run", "--metrics", "testdata/pipeline.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "shape: (4, 4)")
	assert.Contains(t, out, "bid (f64)")
	assert.Contains(t, out, "operations:")
}

func TestRunRejectsUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "run", "-o", "xml", "testdata/pipeline.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported output format "xml"`)
}

func TestRunReportsUnknownStep(t *testing.T) {
	_, err := execute(t, "run", "testdata/bad_step.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unrecognized option "explode"`)
}

func TestExplain(t *testing.T) {
	out, err := execute(t, "explain", "testdata/pipeline.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "SORT BY")
	assert.Contains(t, out, "ASOF JOIN")
	assert.Contains(t, out, "SCAN trades")

	out, err = execute(t, "explain", "--optimized", "testdata/pipeline.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "ASOF JOIN")

	out, err = execute(t, "explain", "--debug", "testdata/pipeline.yaml")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), out)

	_, err = execute(t, "explain", "--debug", "--optimized", "testdata/pipeline.yaml")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
}

func TestConfigFileIsLoaded(t *testing.T) {
	_, err := execute(t, "--config", "testdata/missing.yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
