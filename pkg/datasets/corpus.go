// Package datasets loads example corpora for batch prompt optimization. A
// corpus is a Parquet file with role, input, and output string columns; rows
// sharing a role form that role's example set.
package datasets

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/XiaoConstantine/promptforge/pkg/errors"
	"github.com/XiaoConstantine/promptforge/pkg/optimizer"
)

// RoleExamples holds one role's examples in corpus order.
type RoleExamples struct {
	Role     string
	Examples []optimizer.Example
}

// LoadCorpus reads a Parquet corpus and groups its rows by role, preserving
// the order in which roles first appear. Rows with a blank role are skipped.
func LoadCorpus(ctx context.Context, path string) ([]RoleExamples, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to open corpus file")
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to create corpus reader")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to read corpus schema")
	}

	roleIdx, err := columnIndex(schema, "role")
	if err != nil {
		return nil, err
	}
	inputIdx, err := columnIndex(schema, "input")
	if err != nil {
		return nil, err
	}
	outputIdx, err := columnIndex(schema, "output")
	if err != nil {
		return nil, err
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.StorageFailed, "failed to read corpus table")
	}
	defer table.Release()

	roles, err := stringValues(table.Column(roleIdx), "role")
	if err != nil {
		return nil, err
	}
	inputs, err := stringValues(table.Column(inputIdx), "input")
	if err != nil {
		return nil, err
	}
	outputs, err := stringValues(table.Column(outputIdx), "output")
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var groups []RoleExamples
	for i := range roles {
		role := strings.TrimSpace(roles[i])
		if role == "" {
			continue
		}

		gi, ok := index[role]
		if !ok {
			gi = len(groups)
			index[role] = gi
			groups = append(groups, RoleExamples{Role: role})
		}
		groups[gi].Examples = append(groups[gi].Examples, optimizer.Example{
			Input:  inputs[i],
			Output: outputs[i],
		})
	}

	return groups, nil
}

// Requests expands grouped corpus examples into optimization requests for
// the given provider, one request per role.
func Requests(groups []RoleExamples, provider string) []optimizer.Request {
	reqs := make([]optimizer.Request, 0, len(groups))
	for _, group := range groups {
		reqs = append(reqs, optimizer.Request{
			Role:     group.Role,
			Examples: group.Examples,
			Provider: provider,
		})
	}
	return reqs
}

func columnIndex(schema *arrow.Schema, name string) (int, error) {
	indices := schema.FieldIndices(name)
	if len(indices) == 0 {
		return 0, errors.New(errors.InvalidInput, fmt.Sprintf("corpus is missing required column %q", name))
	}
	return indices[0], nil
}

// stringValues flattens a column's chunks into one string slice.
func stringValues(col *arrow.Column, name string) ([]string, error) {
	values := make([]string, 0, col.Len())
	for _, chunk := range col.Data().Chunks() {
		strs, ok := chunk.(*array.String)
		if !ok {
			return nil, errors.New(errors.InvalidInput, fmt.Sprintf("corpus column %q must be a string column", name))
		}
		for i := 0; i < strs.Len(); i++ {
			values = append(values, strs.Value(i))
		}
	}
	return values, nil
}
