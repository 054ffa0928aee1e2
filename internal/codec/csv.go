package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseSeriesCSV reads a single column of numbers, one per line, no header.
// Blank lines are skipped. This is a raw series, not a valley description.
func ParseSeriesCSV(r io.Reader) ([]float64, error) {
	var values []float64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %q is not a number", line, text)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return values, nil
}
