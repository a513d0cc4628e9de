package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrowidget/astroproxy/internal/config"
	"github.com/astrowidget/astroproxy/internal/core"
)

func TestBuildLibsqlDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.StoreConfig
		want string
	}{
		{
			name: "RemoteGetsAuthToken",
			cfg:  config.StoreConfig{URL: "libsql://windows.turso.io", AuthToken: "token123"},
			want: "libsql://windows.turso.io?authToken=token123",
		},
		{
			name: "RemoteKeepsQuery",
			cfg:  config.StoreConfig{URL: "libsql://windows.turso.io?tls=1", AuthToken: "token123"},
			want: "libsql://windows.turso.io?authToken=token123&tls=1",
		},
		{
			name: "RemoteKeepsExplicitToken",
			cfg:  config.StoreConfig{URL: "libsql://windows.turso.io?authToken=inline", AuthToken: "token123"},
			want: "libsql://windows.turso.io?authToken=inline",
		},
		{
			name: "URLWinsOverPath",
			cfg:  config.StoreConfig{URL: "libsql://windows.turso.io", Path: "/var/lib/astroproxy/astroproxy.db"},
			want: "libsql://windows.turso.io",
		},
		{
			name: "InMemory",
			cfg:  config.StoreConfig{Path: ":memory:"},
			want: ":memory:",
		},
		{
			name: "LibsqlPath",
			cfg:  config.StoreConfig{Path: "libsql://edge.example"},
			want: "libsql://edge.example",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dsn, err := buildLibsqlDSN(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, dsn)
		})
	}

	t.Run("MissingPath", func(t *testing.T) {
		_, err := buildLibsqlDSN(config.StoreConfig{Path: "  "})
		require.Error(t, err)
	})
}

func TestBuildLibsqlDSNCreatesWindowDir(t *testing.T) {
	root := t.TempDir()

	plain := filepath.Join(root, "plain", "astroproxy.db")
	dsn, err := buildLibsqlDSN(config.StoreConfig{Path: plain})
	require.NoError(t, err)
	assert.Equal(t, "file:"+plain, dsn)
	assert.DirExists(t, filepath.Dir(plain))

	prefixed := filepath.Join(root, "prefixed", "astroproxy.db")
	dsn, err = buildLibsqlDSN(config.StoreConfig{Path: "file:" + prefixed})
	require.NoError(t, err)
	assert.Equal(t, "file:"+prefixed, dsn)
	assert.DirExists(t, filepath.Dir(prefixed))

	_, err = os.Stat(filepath.Join(root, "astroproxy.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestIsLocalDSN(t *testing.T) {
	assert.True(t, isLocalDSN(":memory:"))
	assert.True(t, isLocalDSN("file:/tmp/astroproxy.db"))
	assert.False(t, isLocalDSN("libsql://windows.turso.io"))
}

func TestWhereClause(t *testing.T) {
	where, args, err := whereClause(core.WindowQuery{All: true})
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)

	where, args, err = whereClause(core.WindowQuery{Key: " 203.0.113.7 "})
	require.NoError(t, err)
	assert.Equal(t, "WHERE client_key = ?", where)
	assert.Equal(t, []any{"203.0.113.7"}, args)

	where, args, err = whereClause(core.WindowQuery{Prefix: "10.0_"})
	require.NoError(t, err)
	assert.Contains(t, where, "ESCAPE")
	assert.Equal(t, []any{`10.0\_%`}, args)

	_, _, err = whereClause(core.WindowQuery{})
	require.Error(t, err)
}

func TestLikePrefixEscapesWildcards(t *testing.T) {
	assert.Equal(t, "203.0.113.%", likePrefix("203.0.113."))
	assert.Equal(t, `100\%\_x\\%`, likePrefix(`100%_x\`))
}
