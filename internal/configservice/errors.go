// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package configservice

import "errors"

var (
	// ErrConcurrentConfigModification means the caller's view of a path is
	// stale. The caller must re-read and retry; the service never retries.
	ErrConcurrentConfigModification = errors.New("concurrent configuration modification")

	// ErrNotFound means neither the tenant nor any ancestor has the path.
	ErrNotFound = errors.New("configuration not found")

	ErrInvalidArgument = errors.New("invalid argument")
)
