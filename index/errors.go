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

import "errors"

var (
	// ErrIndexNotReady is returned when the index is searched or saved before Build or Load.
	ErrIndexNotReady = errors.New("index not ready")

	// ErrIndexNotFound is returned by Load when either persisted artifact is missing.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt is returned by Load when the artifacts fail validation.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrLengthMismatch is returned by Build when ids and vectors differ in length.
	ErrLengthMismatch = errors.New("ids and vectors length mismatch")

	// ErrDimensionMismatch is returned when a vector has the wrong number of components.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmbedderRequired is returned when an index or builder is created without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRecordRepositoryRequired is returned when a builder is created without a repository.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
