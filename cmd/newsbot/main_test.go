package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/newsbot/pkg/pipeline"
)

func writeConfig(t *testing.T) (configPath, indexPath string) {
	t.Helper()
	t.Setenv("NEWSBOT_INDEX_PATH", "")

	dir := t.TempDir()
	indexPath = filepath.Join(dir, "index.db")
	configPath = filepath.Join(dir, "newsbot.yaml")
	yaml := fmt.Sprintf("index:\n  path: %s\nenv_file: %s\n", indexPath, filepath.Join(dir, "missing.env"))
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o644))
	return configPath, indexPath
}

func execute(args ...string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"process", "ask", "export", "serve", "tui"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestInputWarnings(t *testing.T) {
	configPath, indexPath := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"process without urls", []string{"process", "--config", configPath}, pipeline.ErrNoURLs},
		{"process blank urls", []string{"process", "--config", configPath, " ", ""}, pipeline.ErrNoURLs},
		{"process too many urls", []string{"process", "--config", configPath, "a.com", "b.com", "c.com", "d.com"}, pipeline.ErrTooManyURLs},
		{"ask without question", []string{"ask", "--config", configPath}, pipeline.ErrEmptyQuestion},
		{"ask before process", []string{"ask", "--config", configPath, "what", "happened?"}, pipeline.ErrIndexNotFound},
		{"export before process", []string{"export", "--config", configPath}, pipeline.ErrIndexNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(tt.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, pipeline.IsInputError(err))
		})
	}

	_, err := os.Stat(indexPath)
	assert.True(t, os.IsNotExist(err), "no index file should be created")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("NEWSBOT_INDEX_PATH", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "newsbot.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  provider: bard\n"), 0o644))

	err := execute("ask", "--config", configPath, "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.False(t, pipeline.IsInputError(err))
}
