package main

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// compileJQ parses and compiles every filter.
func compileJQ(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// toJQValue converts v to the plain maps and slices gojq evaluates.
func toJQValue(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// matchesAll reports whether every filter's first result is truthy for v.
func matchesAll(codes []*gojq.Code, v interface{}) bool {
	for _, code := range codes {
		iter := code.Run(v)
		out, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := out.(error); isErr {
			return false
		}
		if !isTruthy(out) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
