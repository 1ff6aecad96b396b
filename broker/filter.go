// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package broker

import (
	"fmt"

	"github.com/destiny/wamprouter/wamp"
)

// PUBLISH option names
const (
	OptAcknowledge = "acknowledge"
	OptExcludeMe   = "exclude_me"
	OptExclude     = "exclude"
	OptEligible    = "eligible"
	OptMatch       = "match"
)

// Filter selects the recipients of one publication.
type Filter struct {
	// ExcludeMe drops the publisher from the recipients. It defaults to true.
	ExcludeMe bool
	Exclude   map[wamp.ID]struct{}
	// Eligible, when non-nil, restricts recipients to its members.
	Eligible map[wamp.ID]struct{}
}

// ParseFilter reads exclude_me, exclude and eligible from PUBLISH options.
func ParseFilter(options wamp.Dict) (Filter, error) {
	f := Filter{ExcludeMe: true}
	if v, ok := options[OptExcludeMe]; ok {
		b, ok := v.(bool)
		if !ok {
			return Filter{}, fmt.Errorf("broker: option %s must be a bool, got %T", OptExcludeMe, v)
		}
		f.ExcludeMe = b
	}
	var err error
	if f.Exclude, err = idSet(options, OptExclude); err != nil {
		return Filter{}, err
	}
	if f.Eligible, err = idSet(options, OptEligible); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func idSet(options wamp.Dict, name string) (map[wamp.ID]struct{}, error) {
	v, ok := options[name]
	if !ok || v == nil {
		return nil, nil
	}
	var list []interface{}
	switch l := v.(type) {
	case []interface{}:
		list = l
	case []wamp.ID:
		set := make(map[wamp.ID]struct{}, len(l))
		for _, id := range l {
			set[id] = struct{}{}
		}
		return set, nil
	default:
		return nil, fmt.Errorf("broker: option %s must be a list of session ids, got %T", name, v)
	}
	set := make(map[wamp.ID]struct{}, len(list))
	for _, e := range list {
		id, ok := toID(e)
		if !ok {
			return nil, fmt.Errorf("broker: option %s holds invalid session id %v", name, e)
		}
		set[id] = struct{}{}
	}
	return set, nil
}

func toID(v interface{}) (wamp.ID, bool) {
	switch x := wamp.Normalize(v).(type) {
	case int64:
		if x > 0 && wamp.ID(x) <= wamp.MaxID {
			return wamp.ID(x), true
		}
	case float64:
		if x > 0 && x <= float64(wamp.MaxID) && x == float64(uint64(x)) {
			return wamp.ID(x), true
		}
	}
	return 0, false
}

// Recipients applies the filter to subscribers in the order
// (eligible ∩ subscribers) − exclude − publisher.
func (f Filter) Recipients(subscribers []wamp.ID, publisher wamp.ID) []wamp.ID {
	out := make([]wamp.ID, 0, len(subscribers))
	for _, id := range subscribers {
		if f.Eligible != nil {
			if _, ok := f.Eligible[id]; !ok {
				continue
			}
		}
		if _, ok := f.Exclude[id]; ok {
			continue
		}
		if f.ExcludeMe && publisher != 0 && id == publisher {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Acknowledge reports whether the publisher asked for PUBLISHED.
func Acknowledge(options wamp.Dict) bool {
	b, _ := options[OptAcknowledge].(bool)
	return b
}
