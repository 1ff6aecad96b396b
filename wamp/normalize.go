// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wamp

import (
	"fmt"
	"math"
)

// Normalize maps a decoded value onto the canonical Go representation shared
// by all serializers: every integer becomes int64 (uint64 above MaxInt64),
// float32 becomes float64, and maps are keyed by string. Lists and maps are
// normalized recursively.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, string, int64, float64, []byte:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case ID:
		return normalizeUint(uint64(x))
	case float32:
		return float64(x)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = Normalize(x[i])
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = Normalize(e)
		}
		return out
	}
	return v
}

func normalizeUint(u uint64) interface{} {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

// asID converts a decoded numeric value into an ID within [0, MaxID].
func asID(v interface{}) (ID, bool) {
	switch x := Normalize(v).(type) {
	case int64:
		if x < 0 || ID(x) > MaxID {
			return 0, false
		}
		return ID(x), true
	case uint64:
		return 0, false
	case float64:
		if x < 0 || x > float64(MaxID) || x != math.Trunc(x) {
			return 0, false
		}
		return ID(x), true
	}
	return 0, false
}
