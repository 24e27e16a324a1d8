package excel

// Table is a header row plus trimmed string rows, padded to the header width
type Table struct {
	Headers []string
	Rows    [][]string
}
