package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintEmbeddedSchema(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--print"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "CREATE TABLE IF NOT EXISTS measure_tasks")
}

func TestPrintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1;"), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--print", path})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "SELECT 1;", out.String())
}

func TestListMigrations(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "001_measure_tasks.sql")
}

func TestMissingFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--print", filepath.Join(t.TempDir(), "nope.sql")})

	assert.Error(t, cmd.Execute())
}
