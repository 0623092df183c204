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

// Package notify carries configuration changes between cluster nodes over
// Kafka.
//
// After a commit the writing node publishes a ChangeEvent keyed by tenant on
// the change topic. Every node, the writer included, consumes that topic in
// its own consumer group and brings its cache up to the store's HEAD. Events
// that cannot be decoded are logged, counted and dropped; they never stop a
// consumer loop. Anything a dropped event would have carried is picked up by
// the next reconciliation.
//
// Other services request changes by sending MutationEvents to the mutation
// topic, which the cluster consumes as a shared work queue.
package notify
