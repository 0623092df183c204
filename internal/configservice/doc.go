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

// Package configservice serves tenant configuration from memory and mediates
// every write through the versioned store.
//
// # Storage Model
//
// Tenant files live in the store at config/tenants/<tenant>/<path>. Anything
// outside that prefix belongs to the commons tenant under its full store
// path. External sources are read-only stores whose files are kept in their
// own buckets so they never collide with tenant paths.
//
// # Lookup
//
// A lookup checks the tenant's own bucket, then each ancestor from the alias
// tree, nearest first. When the path is merge-eligible along the alias chain
// the copies found from the root down to the tenant are merged as YAML
// instead.
//
// # Writes
//
// Writes are optimistic. The caller's hash of the previous content is checked
// against the cache and again by the store under its mutation lock, and a
// mismatch at either level fails with ErrConcurrentConfigModification.
//
// # Refresh
//
// RefreshFromStore is the only path that changes the cache. A local write
// refreshes synchronously with the commit it produced and then publishes a
// change event; every node, the writer included, refreshes again when it
// consumes that event, which is a no-op once the cache is at HEAD.
package configservice
