package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// table is one command result: column output uses headers and rows, JSON output encodes raw.
type table struct {
	headers []string
	rows    [][]string
	raw     any
}

func showOutput(command *cli.Command, t table) error {
	output := command.String("output")
	switch output {
	case encodeJSONPretty:
		b, err := json.MarshalIndent(t.raw, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode the ctl output: %w", err)
		}
		fmt.Fprintln(stdout, string(b))
	case encodeJSONRaw:
		b, err := json.Marshal(t.raw)
		if err != nil {
			return fmt.Errorf("failed to encode the ctl output: %w", err)
		}
		fmt.Fprintln(stdout, string(b))
	case encodeColumn, encodeNoHeader, "":
		tw := tablewriter.NewWriter(stdout)
		tw.SetBorders(tablewriter.Border{Left: true, Right: true, Top: false, Bottom: false})
		tw.SetAutoWrapText(false)
		if output != encodeNoHeader {
			tw.SetHeader(t.headers)
		}
		tw.AppendBulk(t.rows)
		tw.Render()
	default:
		return fmt.Errorf("unknown --output option: %s", output)
	}
	return nil
}

// when renders t relative to now ("in 6 days", "3 hours ago"); zero renders as "-".
func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func optionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return when(*t)
}
