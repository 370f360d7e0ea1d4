// Package trajectory reads and writes trajectory batches as CSV and
// generates synthetic batches.
//
// The CSV layout is one observation per row:
//
//	trajectory_id,c0,c1,...
//	a,0.0,0.0,...
//	a,0.1,0.0,...
//	b,0.0,0.1,...
//
// Rows of one trajectory must be contiguous and appear in time order.
package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidCSV indicates a malformed trajectory file.
var ErrInvalidCSV = errors.New("trajectory: invalid csv")

const idColumn = "trajectory_id"

// Trajectory is an ordered sequence of full-dimensional observations.
type Trajectory struct {
	ID     string
	Points [][]float64
}

// Observations returns the point slices of ts, in order, as a learning
// batch.
func Observations(ts []Trajectory) [][][]float64 {
	batch := make([][][]float64, len(ts))
	for i, t := range ts {
		batch[i] = t.Points
	}
	return batch
}

// Read parses a trajectory CSV. When dim is positive the header must
// declare exactly dim components; zero accepts whatever the header
// declares.
func Read(r io.Reader, dim int) ([]Trajectory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	cols, err := checkHeader(header, dim)
	if err != nil {
		return nil, err
	}

	var out []Trajectory
	seen := make(map[string]bool)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCSV, line, err)
		}
		id := record[0]
		if id == "" {
			return nil, fmt.Errorf("%w: line %d: empty %s", ErrInvalidCSV, line, idColumn)
		}
		point := make([]float64, cols)
		for i := range point {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d, c%d: %v", ErrInvalidCSV, line, i, err)
			}
			point[i] = v
		}
		if n := len(out); n > 0 && out[n-1].ID == id {
			out[n-1].Points = append(out[n-1].Points, point)
			continue
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: line %d: rows of trajectory %q are not contiguous", ErrInvalidCSV, line, id)
		}
		seen[id] = true
		out = append(out, Trajectory{ID: id, Points: [][]float64{point}})
	}
	return out, nil
}

func checkHeader(header []string, dim int) (int, error) {
	if len(header) < 2 || strings.TrimSpace(header[0]) != idColumn {
		return 0, fmt.Errorf("%w: header must start with %s followed by component columns", ErrInvalidCSV, idColumn)
	}
	cols := len(header) - 1
	if dim > 0 && cols != dim {
		return 0, fmt.Errorf("%w: header declares %d components, want %d", ErrInvalidCSV, cols, dim)
	}
	for i, name := range header[1:] {
		if want := "c" + strconv.Itoa(i); strings.TrimSpace(name) != want {
			return 0, fmt.Errorf("%w: column %d is %q, want %q", ErrInvalidCSV, i+1, name, want)
		}
	}
	return cols, nil
}

// ReadFile reads a trajectory CSV from path.
func ReadFile(path string, dim int) ([]Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trajectories: %w", err)
	}
	defer f.Close()
	return Read(f, dim)
}

// Write emits ts as CSV. Every point must have the same length.
func Write(w io.Writer, ts []Trajectory) error {
	dim := -1
	for _, t := range ts {
		for _, p := range t.Points {
			if dim < 0 {
				dim = len(p)
			} else if len(p) != dim {
				return fmt.Errorf("trajectory %q: point has %d components, want %d", t.ID, len(p), dim)
			}
		}
	}
	if dim <= 0 {
		return errors.New("trajectory: nothing to write")
	}

	cw := csv.NewWriter(w)
	header := make([]string, dim+1)
	header[0] = idColumn
	for i := 0; i < dim; i++ {
		header[i+1] = "c" + strconv.Itoa(i)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, dim+1)
	for _, t := range ts {
		row[0] = t.ID
		for _, p := range t.Points {
			for i, v := range p {
				row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes ts to path, replacing any existing file.
func WriteFile(path string, ts []Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trajectories: %w", err)
	}
	if err := Write(f, ts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
