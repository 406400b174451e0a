package sierra

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSierraNumber normalizes a bib or item record number.
//
// sid may be a string or an integer. A single leading record-type letter
// ("b12345678", "I12345678") is dropped. What remains must be eight digits,
// or nine characters whose trailing check digit is dropped without being
// verified. Anything else is a validation error.
func ParseSierraNumber(sid any) (string, error) {
	var s string
	switch v := sid.(type) {
	case string:
		s = strings.TrimSpace(v)
	case int:
		s = strconv.Itoa(v)
	case int32:
		s = strconv.FormatInt(int64(v), 10)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint:
		s = strconv.FormatUint(uint64(v), 10)
	case uint32:
		s = strconv.FormatUint(uint64(v), 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	default:
		return "", validationError(msgInvalidSierraNumber)
	}

	if s != "" && isASCIILetter(s[0]) {
		s = s[1:]
	}

	switch len(s) {
	case 8:
	case 9:
		s = s[:8]
	default:
		return "", validationError(msgInvalidSierraNumber)
	}

	if !isDigits(s) {
		return "", validationError(msgInvalidSierraNumber)
	}
	return s, nil
}

// ParseSierraNumbers normalizes a comma separated string, a slice, or a
// single record number into a comma separated list of eight digit numbers.
// A nil or empty input gives an empty string.
func ParseSierraNumbers(sids any) (string, error) {
	var list []any
	switch v := sids.(type) {
	case nil:
		return "", nil
	case string:
		if strings.TrimSpace(v) == "" {
			return "", nil
		}
		for _, part := range strings.Split(v, ",") {
			list = append(list, part)
		}
	case []string:
		for _, part := range v {
			list = append(list, part)
		}
	case []int:
		for _, part := range v {
			list = append(list, part)
		}
	case []int64:
		for _, part := range v {
			list = append(list, part)
		}
	case []any:
		list = v
	default:
		list = []any{v}
	}

	normalized := make([]string, 0, len(list))
	for _, sid := range list {
		n, err := ParseSierraNumber(sid)
		if err != nil {
			return "", err
		}
		normalized = append(normalized, n)
	}
	return strings.Join(normalized, ","), nil
}

// JoinKeywords turns a string or a slice of scalars into a comma separated
// parameter value. ok is false when there is nothing to send, so the
// parameter can be left out instead of being sent blank.
func JoinKeywords(keywords any) (value string, ok bool) {
	switch v := keywords.(type) {
	case nil:
		return "", false
	case string:
		value = strings.TrimSpace(v)
	case []string:
		value = strings.Join(v, ",")
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		value = strings.Join(parts, ",")
	case []any:
		parts := make([]string, len(v))
		for i, k := range v {
			parts[i] = fmt.Sprint(k)
		}
		value = strings.Join(parts, ",")
	default:
		value = fmt.Sprint(v)
	}
	return value, value != ""
}

// joinLocations validates location codes. Each code may end in a single
// "*" wildcard matching any suffix.
func joinLocations(locations []string) (string, bool, error) {
	codes := make([]string, 0, len(locations))
	for _, code := range locations {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if i := strings.IndexByte(code, '*'); i != -1 && i != len(code)-1 {
			return "", false, validationError(msgInvalidLocation)
		}
		if code == "*" {
			return "", false, validationError(msgInvalidLocation)
		}
		codes = append(codes, code)
	}
	value, ok := JoinKeywords(codes)
	return value, ok, nil
}

// FormatDateRange renders a Sierra date range filter. A zero bound leaves
// that side of the range open.
func FormatDateRange(from, to time.Time) string {
	var start, end string
	if !from.IsZero() {
		start = from.UTC().Format(time.RFC3339)
	}
	if !to.IsZero() {
		end = to.UTC().Format(time.RFC3339)
	}
	return "[" + start + "," + end + "]"
}

// encodeBody turns an update payload into request bytes. Maps are sent as
// JSON; strings (and bytes when allowed) are sent as they are.
func encodeBody(data any, allowBytes bool) ([]byte, error) {
	switch v := data.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		if allowBytes {
			return v, nil
		}
	case map[string]any, map[string]string:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, configError(msgInvalidBodyType, err)
		}
		return b, nil
	}
	return nil, configError(msgInvalidBodyType, nil)
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
