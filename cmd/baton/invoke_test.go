package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/baton/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"payload=a=b", "output=data", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"payload": "a=b", "output": "data", "empty": ""}, params)

	params, err = parseParams(nil)
	require.NoError(t, err)
	assert.Nil(t, params)

	_, err = parseParams([]string{"novalue"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = parseParams([]string{"=x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

const chainYAML = `
pipeline: demo
artifacts:
  - {role: seed, kind: data, bucket: demo-seed, key: data}
  - {role: copy, kind: data, bucket: demo-copy, key: data}
stages:
  - name: seed
    work: emit
    outputs: [{kind: data}]
    next: copy
  - name: copy
    inputs: [{role: seed, kind: data}]
    outputs: [{kind: data}]
`

func TestInvokeCmd_GraphOut(t *testing.T) {
	dir := t.TempDir()
	graphFile := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(graphFile, []byte(chainYAML), 0o644))
	out := filepath.Join(dir, "run.mmd")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"invoke", "seed", "--graph", graphFile, "--store", "memory", "-p", "payload=hi", "--graph-out", out})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stdout.String(), `"statusCode": 200`)

	diagram, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(diagram), "class seed done;")
	assert.Contains(t, string(diagram), "class copy done;")
	assert.NotContains(t, string(diagram), "failed;")
}
