// Package testutils provides helpers shared by the test suites.
package testutils

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var update bool

func init() {
	flag.BoolVar(&update, "update", false, "update golden files")
}

// GoldenPath returns the path of the golden file for the current test.
func GoldenPath(t *testing.T) string {
	t.Helper()

	path := filepath.Join("testdata", "golden", t.Name())
	return filepath.ToSlash(path)
}

// LoadWithUpdateFromGolden returns the golden file content for the current
// test, refreshing it first with want when the update flag is set.
func LoadWithUpdateFromGolden(t *testing.T, want string) string {
	t.Helper()

	goldPath := GoldenPath(t)
	if update {
		t.Logf("updating golden file %s", goldPath)
		require.NoError(t, os.MkdirAll(filepath.Dir(goldPath), 0750), "Cannot create golden directory")
		require.NoError(t, os.WriteFile(goldPath, []byte(want), 0600), "Cannot write golden file")
	}

	data, err := os.ReadFile(goldPath)
	require.NoError(t, err, "Cannot load golden file")
	return string(data)
}

// LoadWithUpdateFromGoldenYAML is LoadWithUpdateFromGolden for any struct
// serializable to YAML. It returns a value of the same type as want.
func LoadWithUpdateFromGoldenYAML[E any](t *testing.T, want E) E {
	t.Helper()

	data, err := yaml.Marshal(want)
	require.NoError(t, err, "Cannot marshal to YAML")

	var got E
	err = yaml.Unmarshal([]byte(LoadWithUpdateFromGolden(t, string(data))), &got)
	require.NoError(t, err, "Cannot unmarshal golden file")
	return got
}
