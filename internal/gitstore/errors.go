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

package gitstore

import (
	"errors"
	"strings"

	"github.com/go-git/go-git/v5"
)

var (
	// ErrStoreUnavailable means the backend could not be reached or the
	// mutation lock could not be acquired within the configured wait.
	ErrStoreUnavailable = errors.New("versioned store unavailable")

	// ErrWriteConflict means the remote rejected a push because another
	// writer committed first. Callers retry from a fresh read.
	ErrWriteConflict = errors.New("versioned store write conflict")
)

// isPushRejected reports whether a push failed because the remote branch
// moved underneath us. Rejections for any other reason, such as a declined
// hook or missing permissions, are not conflicts.
func isPushRejected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, git.ErrNonFastForwardUpdate) || errors.Is(err, git.ErrForceNeeded) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"non-fast-forward", "fetch first"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
