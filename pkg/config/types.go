// Copyright 2025 Kadir Pekel
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

// Package config loads the agent configuration file and the server
// composition file through a single koanf-backed Loader, supporting the
// same file/consul/etcd/zookeeper backends and hot-reload idiom as the
// teacher's pkg/config.
package config

// BoolPtr returns a pointer to b, for optional boolean fields distinguishing
// "unset" from "false".
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to i, for optional integer fields distinguishing
// "unset" from "zero".
func IntPtr(i int) *int { return &i }

// BoolValue dereferences b, treating a nil pointer as def.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
