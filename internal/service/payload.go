package service

import (
	"encoding/json"
	"strconv"
)

// notFoundCodes are the WordPress error codes that mean the requested
// item or route does not exist for us.
var notFoundCodes = map[string]struct{}{
	"rest_no_route":          {},
	"rest_invalid_post_type": {},
	"rest_cannot_read":       {},
}

// isNotFoundPayload reports whether payload is a single-element array whose
// element carries a recognized error code.
func isNotFoundPayload(payload any) bool {
	list, ok := payload.([]any)
	if !ok || len(list) != 1 {
		return false
	}
	obj, ok := list[0].(map[string]any)
	if !ok {
		return false
	}
	code, _ := obj["code"].(string)
	_, found := notFoundCodes[code]
	return found
}

// asItem accepts an object or a single-element array holding one.
func asItem(payload any) (map[string]any, bool) {
	switch v := payload.(type) {
	case map[string]any:
		return v, true
	case []any:
		if len(v) == 1 {
			obj, ok := v[0].(map[string]any)
			return obj, ok
		}
	}
	return nil, false
}

// sourceID renders the "id" of an item as a string key.
func sourceID(item map[string]any) (string, bool) {
	switch v := item["id"].(type) {
	case json.Number:
		return v.String(), v.String() != ""
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}
