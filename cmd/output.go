package cmd

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vishalm/serp-forge/internal/serp"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

// csvContentRunes bounds the content column of CSV output.
const csvContentRunes = 200

// outputFormat is a flag value that rejects unknown formats at parse time,
// before any services are built.
type outputFormat string

func (f *outputFormat) String() string { return string(*f) }

func (f *outputFormat) Set(v string) error {
	switch v {
	case formatJSON, formatCSV:
		*f = outputFormat(v)
		return nil
	default:
		return fmt.Errorf("unknown format %q: use %s or %s", v, formatJSON, formatCSV)
	}
}

func (*outputFormat) Type() string { return "format" }

type outputFlags struct {
	saveTo string
	pretty bool
	format outputFormat
}

func (o *outputFlags) register(cmd *cobra.Command) {
	o.format = formatJSON
	cmd.Flags().StringVar(&o.saveTo, "save-to", "", "also write the result to this file")
	cmd.Flags().BoolVar(&o.pretty, "pretty", false, "indent JSON output")
	cmd.Flags().VarP(&o.format, "format", "f", "output format: json or csv (one row per document)")
}

// write prints v to w and, when --save-to is set, to that file.
func (o *outputFlags) write(w io.Writer, v any) error {
	data, err := o.encode(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if o.saveTo != "" {
		if err := os.WriteFile(o.saveTo, data, 0o644); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
	}
	return nil
}

func (o *outputFlags) encode(v any) ([]byte, error) {
	if o.format == formatCSV {
		return encodeCSV(v)
	}
	var (
		data []byte
		err  error
	)
	if o.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return append(data, '\n'), nil
}

// encodeCSV writes a header and one row per extracted document.
func encodeCSV(v any) ([]byte, error) {
	var results []*serp.QueryResult
	switch r := v.(type) {
	case *serp.QueryResult:
		results = append(results, r)
	case *serp.BatchResult:
		for _, q := range r.ResultsByQuery.Keys() {
			if qr, ok := r.ResultsByQuery.Get(q); ok {
				results = append(results, qr)
			}
		}
	default:
		return nil, fmt.Errorf("csv output does not support %T", v)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	_ = cw.Write([]string{"Query", "Title", "URL", "Source", "Content", "Author", "Publish Date"})
	for _, qr := range results {
		for _, doc := range qr.Documents {
			_ = cw.Write([]string{
				qr.Query,
				doc.Title,
				doc.URL,
				doc.SourceDomain,
				preview(doc.Content(), csvContentRunes),
				doc.Author,
				doc.PublishDate,
			})
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
