package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	d := NewDiscovery("2006-01-02", ".csv")

	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{"valid", "2024-01-05.csv", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), true},
		{"hidden", ".2024-01-05.csv", time.Time{}, false},
		{"wrong extension", "2024-01-05.txt", time.Time{}, false},
		{"not a date", "notes.csv", time.Time{}, false},
		{"impossible date", "2024-02-30.csv", time.Time{}, false},
		{"non canonical", "2024-1-5.csv", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.ParseName(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got))
			}
		})
	}
}

func TestFindDatedFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2024-01-03.csv", "2024-01-01.csv", ".hidden.csv", "junk.csv", "2024-01-02.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "2024-01-02.csv"), 0755))

	d := NewDiscovery("2006-01-02", ".csv")
	files, err := d.FindDatedFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2024-01-01.csv", files[0].Name)
	assert.Equal(t, "2024-01-03.csv", files[1].Name)
	assert.Equal(t, filepath.Join(dir, "2024-01-03.csv"), files[1].Path)

	dates := Dates(files)
	assert.Equal(t, 2024, dates[0].Year())

	filtered := FilterByDate(files, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.Len(t, filtered, 1)
	assert.Equal(t, "2024-01-03.csv", filtered[0].Name)
}

func TestFindDatedFiles_MissingDirectory(t *testing.T) {
	d := NewDiscovery("2006-01-02", ".csv")
	files, err := d.FindDatedFiles(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Empty(t, files)
}

func TestFileName(t *testing.T) {
	d := NewDiscovery("2006-01-02", ".csv")
	assert.Equal(t, "2024-03-09.csv", d.FileName(time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)))
}
