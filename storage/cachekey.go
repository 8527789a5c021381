// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package storage

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/dchest/siphash"
)

// fixed process-wide siphash key; this cache key is only used to
// index query-plan results within one process, never across a trust
// boundary, so a constant key (rather than one generated at startup)
// is fine here, matching the teacher's non-adversarial internal
// hashing convention.
const (
	siphashK0 = 0x6672616d65737276 // "framesrv"
	siphashK1 = 0x6361636865706c6e // "cachepln"
)

// CacheKey identifies a cached query-plan result: the query text, a
// hash of its bound parameters, and the schema version it was planned
// against. Equality is structural over all three fields.
type CacheKey struct {
	QueryText     string
	ParameterHash uint64
	SchemaVersion uint64
}

// NewCacheKey builds a CacheKey from a query string, an unordered set
// of parameter values (sorted before hashing so key construction is
// independent of call-site ordering), and a schema version.
func NewCacheKey(query string, params []string, schemaVersion uint64) CacheKey {
	return CacheKey{
		QueryText:     query,
		ParameterHash: parameterHash(params),
		SchemaVersion: schemaVersion,
	}
}

// parameterHash hashes a length-prefixed concatenation of the sorted
// parameter strings with siphash-2-4, so that two calls with the same
// parameter set in different orders hash identically.
func parameterHash(params []string) uint64 {
	sorted := make([]string, len(params))
	copy(sorted, params)
	sort.Strings(sorted)

	var buf []byte
	var lenPrefix [8]byte
	for _, p := range sorted {
		binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(p)))
		buf = append(buf, lenPrefix[:]...)
		buf = append(buf, p...)
	}
	return siphash.Hash(siphashK0, siphashK1, buf)
}

// String renders the key for logging/debugging; it is not used for
// equality or as a storage key directly.
func (k CacheKey) String() string {
	return fmt.Sprintf("%s#%x@v%d", k.QueryText, k.ParameterHash, k.SchemaVersion)
}
