package streams

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	"github.com/tapstream-io/tap-sailthru/pkg/transform"
)

// fetchExport downloads a completed job's CSV export and streams each
// row to emit as a record. Column headers are rewritten to snake case
// so export rows line up with the stream schemas. extra fields, when
// given, are merged into every row (parent identifiers such as the
// blast id or list name).
func fetchExport(ctx context.Context, sc *Context, exportURL string, extra clients.Row, emit Emit) error {
	body, err := sc.Client.Download(ctx, exportURL)
	if err != nil {
		return err
	}
	defer body.Close()

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		// An export with no rows at all is a valid empty result.
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "reading export header")
	}
	fields := make([]string, len(header))
	for i, name := range header {
		fields[i] = transform.ToSnakeCase(name)
	}

	for {
		values, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "reading export row")
		}

		row := make(clients.Row, len(fields)+len(extra))
		for i, value := range values {
			if i >= len(fields) {
				break
			}
			row[fields[i]] = value
		}
		for key, value := range extra {
			row[key] = value
		}
		if err := emit(row); err != nil {
			return err
		}
	}
}
