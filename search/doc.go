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


// Package search retrieves knowledge records for a natural-language question.
//
// The Searcher combines three signals:
//   - Vector similarity from the embedding index
//   - The entity the conversation is currently about, when the question uses a pronoun
//   - Explicit mentions of a known name or title, matched fuzzily
//
// Context and name signals force a record to the top of the results with
// core.ForcedScore. The conversation state lives in a caller-owned Session.
package search
