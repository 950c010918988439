// Package handler serves the data rows of the request's store.
package handler

import (
	"context"

	"github.com/kod-kristoff/reqscope/internal/store"
)

// Rows reads rows from a datastore.
type Rows interface {
	All(ctx context.Context) ([]store.Data, error)
}

// DataHandler lists the rows of the data table.
type DataHandler struct {
	rows Rows
}

func NewDataHandler(rows Rows) *DataHandler {
	return &DataHandler{rows: rows}
}

// Get returns every row as a (key, value) pair, ordered by key.
func (h *DataHandler) Get(ctx context.Context) ([][2]string, error) {
	rows, err := h.rows.All(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make([][2]string, 0, len(rows))
	for _, r := range rows {
		pairs = append(pairs, [2]string{r.Key, r.Value})
	}

	return pairs, nil
}
