package csvlog

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/csi.monitor/internal/csi"
	"github.com/banshee-data/csi.monitor/internal/fsutil"
)

func TestWriter_AppendsRows(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	w, err := NewWriter(fsys, "logs/csi.csv")
	require.NoError(t, err)
	assert.True(t, fsys.Exists("logs"))

	ctx := context.Background()
	require.NoError(t, w.Persist(ctx, csi.Record{Tag: 1, Timestamp: 100, Amplitudes: []int{3, -4, 0}}))
	require.NoError(t, w.Persist(ctx, csi.Record{Tag: 1, Timestamp: 101, Amplitudes: []int{5}}))
	assert.Equal(t, uint64(2), w.Rows())

	data, err := fsys.ReadFile("logs/csi.csv")
	require.NoError(t, err)
	assert.Equal(t, "1,100,3,-4,0\n1,101,5\n", string(data))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Persist(ctx, csi.Record{}), ErrClosed)
}

func TestWriter_AppendsToExistingFile(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("csi.csv", []byte("7,1,1\n"))

	w, err := NewWriter(fsys, "csi.csv")
	require.NoError(t, err)
	require.NoError(t, w.Persist(context.Background(), csi.Record{Tag: 7, Timestamp: 2, Amplitudes: []int{2}}))
	require.NoError(t, w.Close())

	recs, skipped, err := ReadFile(fsys, "csi.csv")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, recs, 2)
}

func TestRoundTripOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "csi.csv")
	fsys := fsutil.OSFileSystem{}

	w, err := NewWriter(fsys, path)
	require.NoError(t, err)
	want := []csi.Record{
		{Tag: 0, Timestamp: 18446744073709551615, Amplitudes: []int{-128, 127}},
		{Tag: 2, Timestamp: 5, Amplitudes: []int{}},
	}
	for _, r := range want {
		require.NoError(t, w.Persist(context.Background(), r))
	}
	require.NoError(t, w.Close())

	got, _, err := ReadFile(fsys, path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_SkipsMalformedRows(t *testing.T) {
	in := strings.Join([]string{
		"1,10,1,2",
		"1",        // too few fields
		"x,1,2",    // bad tag
		"1,-1,2",   // bad timestamp
		"1,11,2,a", // bad amplitude
		`1,1"2,3`,  // bare quote
		"1,13,5,6",
	}, "\n") + "\n"

	recs, skipped, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 5, skipped)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(10), recs[0].Timestamp)
	assert.Equal(t, uint64(13), recs[1].Timestamp)
}

func TestParseRow(t *testing.T) {
	rec, err := ParseRow([]string{"3", "4", "-5"})
	require.NoError(t, err)
	assert.Equal(t, csi.Record{Tag: 3, Timestamp: 4, Amplitudes: []int{-5}}, rec)

	_, err = ParseRow([]string{"3", "4", "five"})
	assert.ErrorContains(t, err, "amplitude 0")
}

func TestReadFile_Missing(t *testing.T) {
	_, _, err := ReadFile(fsutil.NewMemoryFileSystem(), "nope.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestWriter_PersistWriteError(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	w, err := NewWriter(fsys, "csi.csv")
	require.NoError(t, err)

	fsys.WriteErr = errors.New("disk full")
	err = w.Persist(context.Background(), csi.Record{Tag: 1, Timestamp: 1, Amplitudes: []int{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, w.Rows())
}

func TestNewWriter_ParentIsFile(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("logs", []byte("not a dir"))
	_, err := NewWriter(fsys, "logs/csi.csv")
	assert.Error(t, err)
}
