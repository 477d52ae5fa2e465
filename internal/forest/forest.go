// Package forest loads and evaluates regression forests in the RFCSV text
// format. A forest is stored as flat node arrays: the header names the number
// of trees, the feature dimension, and the total node count; each body row
// holds one node as `node,leftChild,rightChild,splitIdx,value`, where a node
// index of 0 starts a new tree and splitIdx -1 marks a leaf.
package forest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MaxSize is the node count limit for a loaded forest.
const MaxSize = 10_000_000

// Sentinel load errors.
var (
	ErrBadHeader    = errors.New("malformed regression forest header")
	ErrBadRow       = errors.New("malformed regression forest row")
	ErrTooLarge     = errors.New("regression forest exceeds size limit")
	ErrBadDimension = errors.New("regression forest dimensions must be positive")
)

// Forest is an ensemble of regression trees. Prediction averages the per-tree
// leaf values.
type Forest struct {
	nbegin   []int
	child    []int32
	splitIdx []int32
	value    []float64
	ntrees   int
	dim      int
	size     int
}

// NTrees returns the number of trees in the forest.
func (f *Forest) NTrees() int { return f.ntrees }

// Dim returns the feature dimension.
func (f *Forest) Dim() int { return f.dim }

// Size returns the total number of stored nodes.
func (f *Forest) Size() int { return f.size }

// Predict evaluates the forest on a data point of length Dim. Each tree is
// walked from its root, descending right when the split feature exceeds the
// split threshold, and the leaf values are averaged.
func (f *Forest) Predict(datapoint []float64) float64 {
	value := 0.0

	for _, begin := range f.nbegin {
		childTree := f.child[2*begin:]
		splitIdxTree := f.splitIdx[begin:]
		valueTree := f.value[begin:]

		pos := 0
		for splitIdxTree[pos] != -1 {
			goRight := 0
			if datapoint[splitIdxTree[pos]] > valueTree[pos] {
				goRight = 1
			}

			pos = int(childTree[2*pos+goRight])
		}

		value += valueTree[pos]
	}

	return value / float64(f.ntrees)
}

// FromFile reads a forest from an RFCSV file.
func FromFile(filename string) (*Forest, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open regression forest: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)

	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: missing header line", ErrBadHeader)
	}

	var ntrees, dim, size int

	n, err := fmt.Sscanf(scanner.Text(), "### NTREES=%d FEATURE_DIM=%d LENGTH=%d", &ntrees, &dim, &size)
	if err != nil || n != 3 {
		return nil, fmt.Errorf("%w: %q", ErrBadHeader, scanner.Text())
	}

	if size > MaxSize {
		return nil, fmt.Errorf("%w: %d nodes, limit %d", ErrTooLarge, size, MaxSize)
	}

	if ntrees <= 0 || dim <= 0 || size <= 0 {
		return nil, fmt.Errorf("%w: ntrees=%d dim=%d size=%d", ErrBadDimension, ntrees, dim, size)
	}

	f := &Forest{
		nbegin:   make([]int, 0, ntrees),
		child:    make([]int32, 2*size),
		splitIdx: make([]int32, size),
		value:    make([]float64, size),
		ntrees:   ntrees,
		dim:      dim,
		size:     size,
	}

	pos := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if pos >= size {
			return nil, fmt.Errorf("%w: more rows than declared length %d", ErrBadRow, size)
		}

		node, err := f.parseRow(line, pos)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", pos+1, err)
		}

		// A node index of 0 marks the root of the next tree.
		if node == 0 {
			if len(f.nbegin) == ntrees {
				return nil, fmt.Errorf("%w: more roots than declared trees %d", ErrBadRow, ntrees)
			}

			f.nbegin = append(f.nbegin, pos)
		}

		pos++
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read regression forest: %w", err)
	}

	return f, nil
}

// parseRow fills node arrays at pos from one `node,left,right,splitIdx,value`
// row and returns the row's node index.
func (f *Forest) parseRow(line string, pos int) (int, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return 0, fmt.Errorf("%w: %q", ErrBadRow, line)
	}

	ints := make([]int64, 4)

	for i := range ints {
		v, err := strconv.ParseInt(strings.TrimSpace(fields[i]), 10, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %w", ErrBadRow, line, err)
		}

		ints[i] = v
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrBadRow, line, err)
	}

	if idx := ints[3]; idx != -1 && (idx < 0 || idx >= int64(f.dim)) {
		return 0, fmt.Errorf("%w: split index %d out of range [0, %d)", ErrBadRow, idx, f.dim)
	}

	f.child[2*pos] = int32(ints[1])
	f.child[2*pos+1] = int32(ints[2])
	f.splitIdx[pos] = int32(ints[3])
	f.value[pos] = value

	return int(ints[0]), nil
}
