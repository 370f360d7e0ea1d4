package trajectory

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGroupsContiguousRows(t *testing.T) {
	in := `trajectory_id,c0,c1
a,0,0
a,0.5,1
b,2,3
`
	got, err := Read(strings.NewReader(in), 2)
	require.NoError(t, err)
	want := []Trajectory{
		{ID: "a", Points: [][]float64{{0, 0}, {0.5, 1}}},
		{ID: "b", Points: [][]float64{{2, 3}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
}

func TestReadInfersDimension(t *testing.T) {
	got, err := Read(strings.NewReader("trajectory_id,c0,c1,c2\nx,1,2,3\n"), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float64{1, 2, 3}, got[0].Points[0])
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		dim  int
		want string
	}{
		{"empty", "", 2, "missing header"},
		{"bad id column", "id,c0\na,1\n", 1, "header must start"},
		{"no components", "trajectory_id\na\n", 0, "header must start"},
		{"wrong dim", "trajectory_id,c0,c1\na,1,2\n", 3, "want 3"},
		{"misnamed column", "trajectory_id,c0,x\na,1,2\n", 2, `column 2 is "x"`},
		{"bad float", "trajectory_id,c0\na,abc\n", 1, "line 2, c0"},
		{"short row", "trajectory_id,c0,c1\na,1\n", 2, "line 2"},
		{"empty id", "trajectory_id,c0\n,1\n", 1, "empty trajectory_id"},
		{"not contiguous", "trajectory_id,c0\na,1\nb,2\na,3\n", 1, "not contiguous"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in), tt.dim)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCSV), "want ErrInvalidCSV, got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ts := []Trajectory{
		Line("east", []float64{0, 0, 5, 0}, []float64{5, 0, 5, 0}, 6),
		Line("north", []float64{0, 0, 0, 5}, []float64{0, 5, 0, 5}, 3),
	}
	path := filepath.Join(t.TempDir(), "batch.csv")
	require.NoError(t, WriteFile(path, ts))

	got, err := ReadFile(path, 4)
	require.NoError(t, err)
	if diff := cmp.Diff(ts, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRejectsRaggedPoints(t *testing.T) {
	ts := []Trajectory{{ID: "a", Points: [][]float64{{1, 2}, {3}}}}
	var buf bytes.Buffer
	err := Write(&buf, ts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 2")

	assert.Error(t, Write(&buf, nil))
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"), 2)
	assert.Error(t, err)
}
