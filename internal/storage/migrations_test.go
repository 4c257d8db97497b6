package storage

import (
	"sort"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestMigrationFileNamesAreSorted(t *testing.T) {
	names, err := migrationFileNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	require.Equal(t, sorted, names)

	for _, name := range names {
		require.True(t, strings.HasSuffix(name, ".up.sql") || strings.HasSuffix(name, ".down.sql"), name)
	}
}

func TestMigrationSourceDriverExposesEveryVersion(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	seen := []uint{version}
	for {
		next, err := src.Next(version)
		if err != nil {
			break
		}
		seen = append(seen, next)
		version = next
	}
	require.ElementsMatch(t, []uint{1, 2, 3, 4}, seen)

	for _, v := range seen {
		up, _, err := src.ReadUp(v)
		require.NoError(t, err)
		require.NoError(t, up.Close())

		down, _, err := src.ReadDown(v)
		require.NoError(t, err)
		require.NoError(t, down.Close())
	}
}
