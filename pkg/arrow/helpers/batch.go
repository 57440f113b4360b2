// Package helpers provides convenience functions for working with Arrow RecordBatches.
package helpers

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/compute"
)

// Filter applies a boolean mask to a RecordBatch, returning only rows where mask is true.
// The caller is responsible for releasing the returned Record.
func Filter(ctx context.Context, batch arrow.Record, mask arrow.Array) (arrow.Record, error) {
	result, err := compute.FilterRecordBatch(ctx, batch, mask, compute.DefaultFilterOptions())
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return result, nil
}
