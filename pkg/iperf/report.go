// Package iperf reads the comma separated reports that iperf writes with
// "-y C" and extracts the bandwidth figure the regression checks run against.
package iperf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
)

// BandwidthField is the zero-based index of the bandwidth value in a report
const BandwidthField = 8

// Report is one iperf CSV record. Only Bandwidth is interpreted; the other
// fields are kept verbatim for logging.
type Report struct {
	Timestamp   string `json:"timestamp"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	TransferID  string `json:"transferId"`
	Interval    string `json:"interval"`
	Transferred string `json:"transferred"`
	Bandwidth   int64  `json:"bandwidth"`
}

// ParseReport parses the content of a result file. The content is split on
// commas as a whole, so a trailing newline only affects the last field.
func ParseReport(content string) (*Report, error) {
	fields := strings.Split(content, ",")
	if len(fields) <= BandwidthField {
		return nil, fmt.Errorf("expected at least %d comma separated fields, got %d", BandwidthField+1, len(fields))
	}

	raw := strings.TrimSpace(fields[BandwidthField])
	bandwidth, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bandwidth field %q is not an integer: %w", raw, err)
	}

	return &Report{
		Timestamp:   fields[0],
		Source:      fields[1] + ":" + fields[2],
		Destination: fields[3] + ":" + fields[4],
		TransferID:  fields[5],
		Interval:    fields[6],
		Transferred: fields[7],
		Bandwidth:   bandwidth,
	}, nil
}

// ReadReport reads and parses dir/filename
func ReadReport(dir, filename string) (*Report, error) {
	path := filepath.Join(dir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, harnesserrors.NewResultFileError(path, "cannot read result file", err)
	}

	report, err := ParseReport(string(data))
	if err != nil {
		return nil, harnesserrors.NewResultFileError(path, "malformed result file", err)
	}
	return report, nil
}

// ReadBandwidth returns the bandwidth reported in dir/filename
func ReadBandwidth(dir, filename string) (int64, error) {
	report, err := ReadReport(dir, filename)
	if err != nil {
		return 0, err
	}
	return report.Bandwidth, nil
}
