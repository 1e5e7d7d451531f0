package structure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// ReadOptions configures ReadLabels.
type ReadOptions struct {
	// MaxModels stops model column collection after this many members; 0
	// collects x_k/y_k/z_k triples until one is missing.
	MaxModels int
}

type labelColumns struct {
	id, resname, resid, chain, copy int
	models                          [][3]int
}

func indexHeader(header []string, maxModels int) (labelColumns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	col := func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}

	cols := labelColumns{
		id:      col("ID"),
		resname: col("resname"),
		resid:   col("resid"),
		chain:   col("chain"),
		copy:    col("copy"),
	}
	if cols.id < 0 {
		return cols, errors.New("label table has no ID column")
	}
	if cols.resid < 0 {
		return cols, errors.New("label table has no resid column")
	}
	for k := 1; maxModels <= 0 || k <= maxModels; k++ {
		x, y, z := col(fmt.Sprintf("x_%d", k)), col(fmt.Sprintf("y_%d", k)), col(fmt.Sprintf("z_%d", k))
		if x < 0 || y < 0 || z < 0 {
			break
		}
		cols.models = append(cols.models, [3]int{x, y, z})
	}
	if len(cols.models) == 0 {
		return cols, errors.New("label table has no x_1/y_1/z_1 columns")
	}
	return cols, nil
}

// ReadLabels parses a label table with an ID, resname, resid, x_k/y_k/z_k,
// chain, copy header. Missing chain and copy columns default to chain A,
// copy 1.
func ReadLabels(r io.Reader, opts ReadOptions) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := indexHeader(header, opts.MaxModels)
	if err != nil {
		return nil, err
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		rec, err := parseRow(row, header, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, rec)
	}

	log.Debug().Int("rows", len(records)).Int("models", len(cols.models)).Msg("read label table")
	return records, nil
}

func parseRow(row, header []string, cols labelColumns) (Record, error) {
	id := row[cols.id]
	target, _, err := SplitID(id)
	if err != nil {
		return Record{}, err
	}
	resid, err := strconv.Atoi(strings.TrimSpace(row[cols.resid]))
	if err != nil {
		return Record{}, fmt.Errorf("column %s: %w", header[cols.resid], err)
	}

	rec := Record{
		ID:     id,
		Target: target,
		ResID:  resid,
		Chain:  DefaultChain,
		Copy:   DefaultCopy,
		Models: make([]Point, len(cols.models)),
	}
	if cols.resname >= 0 {
		rec.ResName = row[cols.resname]
	}
	if cols.chain >= 0 && row[cols.chain] != "" {
		rec.Chain = row[cols.chain]
	}
	if cols.copy >= 0 && row[cols.copy] != "" {
		c, err := strconv.Atoi(strings.TrimSpace(row[cols.copy]))
		if err != nil {
			return Record{}, fmt.Errorf("column %s: %w", header[cols.copy], err)
		}
		rec.Copy = c
	}
	for m, xyz := range cols.models {
		for axis, ci := range xyz {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[ci]), 64)
			if err != nil {
				return Record{}, fmt.Errorf("column %s: %w", header[ci], err)
			}
			rec.Models[m][axis] = v
		}
	}
	return rec, nil
}

// OpenLabels reads a label table from disk, decompressing .zst files.
func OpenLabels(path string, opts ReadOptions) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	records, err := ReadLabels(r, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
