package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")

	s := DefaultSettings()
	s.Server = "chat.example.org:9998"
	s.Framing = protocol.FramingLine
	s.Username = "alice"
	s.HideOwn = true
	require.NoError(t, s.Save(path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	s, err = LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: bob\ncolor: never\n"), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Username)
	assert.Equal(t, "localhost:9998", s.Server)

	useColor, err := s.UseColor(true)
	require.NoError(t, err)
	assert.False(t, useColor)
}

func TestUseColor(t *testing.T) {
	tcases := map[string]struct {
		mode    string
		tty     bool
		want    bool
		wantErr bool
	}{
		"auto tty":      {mode: "auto", tty: true, want: true},
		"auto pipe":     {mode: "auto", tty: false, want: false},
		"empty is auto": {mode: "", tty: true, want: true},
		"always":        {mode: "always", tty: false, want: true},
		"never":         {mode: "never", tty: true, want: false},
		"bogus":         {mode: "rainbow", wantErr: true},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			got, err := (&Settings{Color: tc.mode}).UseColor(tc.tty)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
