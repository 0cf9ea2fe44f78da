// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
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

// Package attrs defines the opaque, equality-comparable tag attached to each
// block of a page. The buffer core (package page and package pagebuffer) is
// generic over an attribute type; it never inspects a tag's payload, only
// ever compares two tags with == to decide whether adjoining bytes belong to
// the same block.
package attrs

// Tag constrains the attribute types a buffer can carry. Any comparable Go
// value works: an int, a small struct of style flags, a string naming a
// syntax class, and so on. The zero value of T is the "default or empty
// attribute" the data model calls for.
type Tag interface {
	comparable
}

// Default is a ready-to-use attribute type for callers with no styling needs
// of their own beyond "same or different". Its zero value, Default{}, is the
// default attribute.
type Default struct {
	Class int
}
