package source

import "fmt"

// Open opens a source file from disk, dispatching on extension: CSV files
// get the streaming CSV reader, everything else is treated as a workbook.
// For workbooks an empty sheet selects the first worksheet. The returned
// reader owns every underlying handle.
func Open(path, sheet string, chunkSize int) (Reader, error) {
	if IsCSV(path) {
		return OpenCSV(path, chunkSize)
	}

	doc, err := OpenDocument(path)
	if err != nil {
		return nil, err
	}

	if sheet == "" {
		sheets := doc.Sheets()
		if len(sheets) == 0 {
			doc.Close()
			return nil, fmt.Errorf("%w: %s has no sheets", ErrSourceUnreadable, path)
		}
		sheet = sheets[0]
	}

	r, err := doc.ChunkReader(sheet, chunkSize)
	if err != nil {
		doc.Close()
		return nil, err
	}
	return &closerReader{Reader: r, c: doc}, nil
}
