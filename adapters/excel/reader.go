package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"scqc/domain/matrix"
	"scqc/internal/errors"
)

// DataReader reads tables from xlsx workbooks or CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	cfg      Config
}

// NewDataReader picks the format from the file extension
func NewDataReader(filePath string, cfg Config) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	if cfg.Sheet == "" {
		cfg.Sheet = DefaultSheet
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	return &DataReader{filePath: filePath, fileType: fileType, cfg: cfg}
}

// ReadTable reads the whole sheet or file
func (r *DataReader) ReadTable() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.InvalidInput(strings.ToUpper(r.fileType) + " file not found: " + r.filePath)
	}
	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readExcel()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, errors.EmptyMatrix("%s needs a header row and at least one data row", r.filePath)
	}
	t := processRows(rows)
	r.cfg.Logger.Debug("read %s (%d columns, %d rows) in %s", r.filePath, len(t.Headers), len(t.Rows), time.Since(start))
	return t, nil
}

func (r *DataReader) readExcel() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()
	rows, err := f.GetRows(r.cfg.Sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s", r.cfg.Sheet)
	}
	return rows, nil
}

func (r *DataReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV file")
	}
	return rows, nil
}

// processRows trims every cell and pads short rows with empty cells
func processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	out := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]string, len(headers))
		for j := 0; j < len(row) && j < len(headers); j++ {
			cells[j] = strings.TrimSpace(row[j])
		}
		out = append(out, cells)
	}
	return &Table{Headers: headers, Rows: out}
}

// ReadCounts reads a genes × cells matrix: the header holds a label and then
// the cell ids, each row a gene id and then its counts. Empty cells are 0.
func (r *DataReader) ReadCounts() (*matrix.CountMatrix, error) {
	t, err := r.ReadTable()
	if err != nil {
		return nil, err
	}
	cells := t.Headers[1:]
	genes := make([]string, 0, len(t.Rows))
	values := make([][]float64, 0, len(t.Rows))
	for i, row := range t.Rows {
		if row[0] == "" {
			continue
		}
		v, err := parseRow(row[1:])
		if err != nil {
			return nil, errors.InvalidConfiguration("row %d (%s): %v", i+2, row[0], err)
		}
		genes = append(genes, row[0])
		values = append(values, v)
	}
	return matrix.NewCountMatrix(genes, cells, values)
}

// ReadEmbedding reads a cells × k table: each row a cell id and its coordinates
func (r *DataReader) ReadEmbedding() (*matrix.Embedding, error) {
	t, err := r.ReadTable()
	if err != nil {
		return nil, err
	}
	cells := make([]string, 0, len(t.Rows))
	coords := make([][]float64, 0, len(t.Rows))
	for i, row := range t.Rows {
		if row[0] == "" {
			continue
		}
		v, err := parseRow(row[1:])
		if err != nil {
			return nil, errors.InvalidConfiguration("row %d (%s): %v", i+2, row[0], err)
		}
		cells = append(cells, row[0])
		coords = append(coords, v)
	}
	return matrix.NewEmbedding(cells, coords)
}

// ReadAnnotation returns the named column keyed by the first column
func (r *DataReader) ReadAnnotation(column string) (map[string]string, error) {
	t, err := r.ReadTable()
	if err != nil {
		return nil, err
	}
	col := -1
	for i, h := range t.Headers {
		if i > 0 && h == column {
			col = i
		}
	}
	if col < 0 {
		return nil, errors.InvalidConfiguration("annotation column %q not found in %s", column, r.filePath)
	}
	out := make(map[string]string, len(t.Rows))
	for _, row := range t.Rows {
		if row[0] != "" {
			out[row[0]] = row[col]
		}
	}
	return out, nil
}

// Align orders annotation values by cells; every cell needs a value
func Align(cells []string, values map[string]string) ([]string, error) {
	out := make([]string, len(cells))
	for i, c := range cells {
		v, ok := values[c]
		if !ok {
			return nil, errors.InvalidConfiguration("no annotation for cell %q", c)
		}
		out[i] = v
	}
	return out, nil
}

func parseRow(cells []string) ([]float64, error) {
	out := make([]float64, len(cells))
	for j, c := range cells {
		if c == "" {
			continue
		}
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, err
		}
		out[j] = v
	}
	return out, nil
}
