package main

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/seed/b.pdf", []byte("%PDF-1.7"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/seed/a.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/seed/nested/c.txt", []byte("nested"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/seed/.hidden", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/seed/.git/config", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/seed/big.bin", make([]byte, 100), 0o644))

	inputs, err := collectFiles(fs, "/seed", 10)
	require.NoError(t, err)

	var names []string
	for _, in := range inputs {
		names = append(names, in.Name)
		assert.Empty(t, in.MimeType)
	}
	assert.Equal(t, []string{"a.txt", "b.pdf", "big.bin", "c.txt"}, names)
	assert.Len(t, inputs[2].Body, 11, "超限文件只读取 maxSize+1 字节")
}

func TestCollectFiles_NotADirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file.txt", []byte("x"), 0o644))

	_, err := collectFiles(fs, "/file.txt", 10)
	assert.Error(t, err)
	_, err = collectFiles(fs, "/missing", 10)
	assert.Error(t, err)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "migrate", "import"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "./configs/config.yaml", flag.DefValue)
}
