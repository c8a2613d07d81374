// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package index

import (
	"context"

	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
)

// RecordIterator walks every stored record in fixed-size batches.
type RecordIterator struct {
	repo      storage.RecordRepository
	batchSize int
}

// NewRecordIterator creates an iterator. Non-positive batch sizes use DefaultBatchSize.
func NewRecordIterator(repo storage.RecordRepository, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Batches loads all records and splits them into batches in store order.
func (it *RecordIterator) Batches(ctx context.Context) ([][]*core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := it.repo.GetAllRecords(ctx)
	if err != nil {
		return nil, err
	}

	var batches [][]*core.Record
	for i := 0; i < len(records); i += it.batchSize {
		end := min(i+it.batchSize, len(records))
		batches = append(batches, records[i:end])
	}
	return batches, nil
}
