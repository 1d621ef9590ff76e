// Package csvio reads and writes dataset CSV files and deleted-name
// lists. Writers always emit the canonical column order so round-trips
// are stable; readers accept any column order and tolerate missing
// optional columns. Files are written atomically via the temp-file,
// fsync, rename pattern.
package csvio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BuckanovNikita/cveta2/internal/dataset"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// ReadOptions controls dataset CSV validation.
type ReadOptions struct {
	// Required lists columns that must be present. Nil means
	// types.RequiredColumns.
	Required []string
	// RequireTimeColumn additionally demands task_updated_date, the
	// by-time merge precondition.
	RequireTimeColumn bool
}

// ReadDataset reads a dataset CSV into a Table, keeping the source
// column set. Missing required columns fail with types.ErrMissingColumns;
// a missing task_updated_date under RequireTimeColumn fails with
// types.ErrTimeColumnMissing.
func ReadDataset(path string, opts ReadOptions) (dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	t, err := readDataset(f, opts)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func readDataset(r io.Reader, opts ReadOptions) (dataset.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return dataset.Table{}, fmt.Errorf("empty file: %w", types.ErrMissingColumns)
	}
	if err != nil {
		return dataset.Table{}, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	required := opts.Required
	if required == nil {
		required = types.RequiredColumns
	}
	var missing []string
	for _, name := range required {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return dataset.Table{}, fmt.Errorf("%w: %s", types.ErrMissingColumns, strings.Join(missing, ", "))
	}
	if opts.RequireTimeColumn {
		if _, ok := index[types.ColTaskUpdated]; !ok {
			return dataset.Table{}, types.ErrTimeColumnMissing
		}
	}

	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}
	table := dataset.Table{Columns: columns}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return dataset.Table{}, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := decodeRow(row, index)
		if err != nil {
			return dataset.Table{}, fmt.Errorf("line %d: %w", line, err)
		}
		table.Rows = append(table.Rows, rec)
	}
	return table, nil
}

func cell(row []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func decodeRow(row []string, index map[string]int) (types.Record, error) {
	rec := types.Record{
		ImageName:   cell(row, index, types.ColImageName),
		Shape:       cell(row, index, types.ColShape),
		Label:       cell(row, index, types.ColLabel),
		TaskName:    cell(row, index, types.ColTaskName),
		TaskStatus:  cell(row, index, types.ColTaskStatus),
		TaskUpdated: cell(row, index, types.ColTaskUpdated),
		CreatedBy:   cell(row, index, types.ColCreatedBy),
		Subset:      cell(row, index, types.ColSubset),
		Source:      cell(row, index, types.ColSource),
		Split:       cell(row, index, types.ColSplit),
	}

	var err error
	if rec.ImageWidth, err = intCell(row, index, types.ColImageWidth); err != nil {
		return rec, err
	}
	if rec.ImageHeight, err = intCell(row, index, types.ColImageHeight); err != nil {
		return rec, err
	}
	if rec.TaskID, err = intCell(row, index, types.ColTaskID); err != nil {
		return rec, err
	}
	if rec.FrameID, err = intCell(row, index, types.ColFrameID); err != nil {
		return rec, err
	}
	if rec.ZOrder, err = intCell(row, index, types.ColZOrder); err != nil {
		return rec, err
	}
	if rec.XTL, err = floatCell(row, index, types.ColXTL); err != nil {
		return rec, err
	}
	if rec.YTL, err = floatCell(row, index, types.ColYTL); err != nil {
		return rec, err
	}
	if rec.XBR, err = floatCell(row, index, types.ColXBR); err != nil {
		return rec, err
	}
	if rec.YBR, err = floatCell(row, index, types.ColYBR); err != nil {
		return rec, err
	}
	if rec.Rotation, err = floatCell(row, index, types.ColRotation); err != nil {
		return rec, err
	}

	if s := cell(row, index, types.ColOccluded); s != "" {
		if rec.Occluded, err = strconv.ParseBool(strings.ToLower(s)); err != nil {
			return rec, fmt.Errorf("column %s: %w", types.ColOccluded, err)
		}
	}
	if s := cell(row, index, types.ColAnnotationID); s != "" {
		id, err := strconv.Atoi(s)
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", types.ColAnnotationID, err)
		}
		rec.AnnotationID = &id
	}
	if s := cell(row, index, types.ColConfidence); s != "" {
		conf, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return rec, fmt.Errorf("column %s: %w", types.ColConfidence, err)
		}
		rec.Confidence = &conf
	}
	if s := cell(row, index, types.ColAttributes); s != "" {
		if err := json.Unmarshal([]byte(s), &rec.Attributes); err != nil {
			return rec, fmt.Errorf("column %s: %w", types.ColAttributes, err)
		}
	}
	return rec, nil
}

func intCell(row []string, index map[string]int, name string) (int, error) {
	s := cell(row, index, name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		// Re-exported CSVs may carry integers as "12.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return int(f), nil
	}
	return v, nil
}

func floatCell(row []string, index map[string]int, name string) (float64, error) {
	s := cell(row, index, name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return v, nil
}

// WriteDataset writes a table of records with the canonical column set,
// appending the split and confidence columns only when any row uses them.
func WriteDataset(path string, rows []types.Record) error {
	columns := make([]string, len(types.Columns))
	copy(columns, types.Columns)

	hasSplit, hasConf := false, false
	for i := range rows {
		if rows[i].Split != "" {
			hasSplit = true
		}
		if rows[i].Confidence != nil {
			hasConf = true
		}
	}
	if hasSplit {
		columns = append(columns, types.ColSplit)
	}
	if hasConf {
		columns = append(columns, types.ColConfidence)
	}
	return WriteTable(path, dataset.Table{Columns: columns, Rows: rows})
}

// WriteTable writes a table with its own column set.
func WriteTable(path string, t dataset.Table) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Columns); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		for i := range t.Rows {
			row, err := encodeRow(&t.Rows[i], t.Columns)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func encodeRow(rec *types.Record, columns []string) ([]string, error) {
	row := make([]string, len(columns))
	for i, col := range columns {
		v, err := encodeCell(rec, col)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func encodeCell(rec *types.Record, col string) (string, error) {
	isBox := rec.IsBox()
	switch col {
	case types.ColImageName:
		return rec.ImageName, nil
	case types.ColImageWidth:
		if rec.IsDeleted() {
			return "", nil
		}
		return strconv.Itoa(rec.ImageWidth), nil
	case types.ColImageHeight:
		if rec.IsDeleted() {
			return "", nil
		}
		return strconv.Itoa(rec.ImageHeight), nil
	case types.ColShape:
		return rec.Shape, nil
	case types.ColLabel:
		return rec.Label, nil
	case types.ColXTL:
		return boxCoord(rec.XTL, isBox), nil
	case types.ColYTL:
		return boxCoord(rec.YTL, isBox), nil
	case types.ColXBR:
		return boxCoord(rec.XBR, isBox), nil
	case types.ColYBR:
		return boxCoord(rec.YBR, isBox), nil
	case types.ColTaskID:
		return strconv.Itoa(rec.TaskID), nil
	case types.ColTaskName:
		return rec.TaskName, nil
	case types.ColTaskStatus:
		return rec.TaskStatus, nil
	case types.ColTaskUpdated:
		return rec.TaskUpdated, nil
	case types.ColCreatedBy:
		return rec.CreatedBy, nil
	case types.ColFrameID:
		return strconv.Itoa(rec.FrameID), nil
	case types.ColSubset:
		return rec.Subset, nil
	case types.ColOccluded:
		return strconv.FormatBool(rec.Occluded), nil
	case types.ColZOrder:
		return strconv.Itoa(rec.ZOrder), nil
	case types.ColRotation:
		return strconv.FormatFloat(rec.Rotation, 'f', -1, 64), nil
	case types.ColSource:
		return rec.Source, nil
	case types.ColAnnotationID:
		if rec.AnnotationID == nil {
			return "", nil
		}
		return strconv.Itoa(*rec.AnnotationID), nil
	case types.ColAttributes:
		if len(rec.Attributes) == 0 {
			return "{}", nil
		}
		data, err := json.Marshal(rec.Attributes)
		if err != nil {
			return "", fmt.Errorf("encoding attributes: %w", err)
		}
		return string(data), nil
	case types.ColSplit:
		return rec.Split, nil
	case types.ColConfidence:
		if rec.Confidence == nil {
			return "", nil
		}
		return strconv.FormatFloat(*rec.Confidence, 'f', -1, 64), nil
	default:
		// Unknown column from a merged source; emit an empty cell.
		return "", nil
	}
}

func boxCoord(v float64, isBox bool) string {
	if !isBox {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadDeletedNames reads a deleted.txt file: one image name per line,
// blank lines skipped.
func ReadDeletedNames(path string) (map[string]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	names := make(map[string]struct{})
	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names[name] = struct{}{}
		}
	}
	return names, nil
}

// WriteDeletedNames writes image names one per line with a trailing
// newline when non-empty.
func WriteDeletedNames(path string, names []string) error {
	return writeAtomic(path, func(w io.Writer) error {
		if len(names) == 0 {
			return nil
		}
		_, err := io.WriteString(w, strings.Join(names, "\n")+"\n")
		return err
	})
}

// writeAtomic writes via a temp file in the target directory, fsyncs and
// renames into place so readers never observe a partial file.
func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".cveta2-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
