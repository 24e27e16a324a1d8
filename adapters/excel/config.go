package excel

import "scqc/internal"

// DefaultSheet is read when no sheet is configured
const DefaultSheet = "Sheet1"

// Config holds settings for workbook and CSV sources
type Config struct {
	// Sheet to read from xlsx workbooks
	Sheet  string           `json:"sheet"`
	Logger *internal.Logger `json:"-"`
}

// DefaultConfig reads Sheet1 and logs through the default logger
func DefaultConfig() Config {
	return Config{Sheet: DefaultSheet, Logger: internal.DefaultLogger}
}
