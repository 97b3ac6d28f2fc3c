// Package jsoncsv converts a JSON array of records into CSV. Records may
// arrive as objects, nested arrays, JSON-encoded strings, or primitives;
// nested objects flatten to dot-notation columns.
package jsoncsv

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingData is returned for an absent or falsy json_data payload.
var ErrMissingData = errors.New("Missing required parameter: json_data")

// object is a JSON object that remembers key insertion order, so column
// order follows the source document rather than map iteration.
type object struct {
	keys   []string
	values map[string]any
}

func newObject() *object {
	return &object{values: map[string]any{}}
}

// set keeps the first occurrence's position on duplicate keys.
func (o *object) set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Convert renders the json_data payload (raw JSON bytes) as CRLF CSV with
// no trailing newline. The second return is the number of top-level input
// items processed.
func Convert(raw []byte) (string, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", 0, ErrMissingData
	}

	value, err := parseOrdered(trimmed)
	if err != nil {
		return "", 0, fmt.Errorf("Invalid JSON array format: %v", err)
	}
	if isFalsy(value) {
		return "", 0, ErrMissingData
	}

	// A string payload gets one decode pass of its own.
	if s, ok := value.(string); ok {
		value, err = parseOrdered([]byte(strings.TrimSpace(s)))
		if err != nil {
			return "", 0, fmt.Errorf("Invalid JSON array format: %v", err)
		}
	}

	items, ok := value.([]any)
	if !ok {
		return "", 0, errors.New("json_data must be a JSON array of JSON strings")
	}
	if len(items) == 0 {
		return "", 0, errors.New("json_data array cannot be empty")
	}

	var rows []any
	for i, item := range items {
		val := item
		if s, isStr := item.(string); isStr {
			val, err = parseOrdered([]byte(strings.TrimSpace(s)))
			if err != nil {
				return "", 0, fmt.Errorf("Invalid JSON in item %d: %v", i, err)
			}
		}
		switch v := val.(type) {
		case *object:
			rows = append(rows, v)
		case []any:
			rows = append(rows, v...)
		default:
			// Primitives become a row tagged with their input position.
			wrapped := newObject()
			wrapped.set("value", val)
			wrapped.set("source_index", json.Number(strconv.Itoa(i)))
			rows = append(rows, wrapped)
		}
	}

	return renderCSV(rows), len(items), nil
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case []any:
		return len(t) == 0
	case *object:
		return len(t.keys) == 0
	}
	return false
}

// parseOrdered decodes one JSON value keeping object key order and number
// literals intact, rejecting trailing data.
func parseOrdered(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := newObject()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v", keyTok)
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			obj.set(key, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// renderCSV writes the row set. All-object inputs produce a header from
// the first row's columns followed by later rows' extra columns sorted;
// anything else falls back to a single "value" column.
func renderCSV(rows []any) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	switch {
	case len(rows) == 0:
		_ = w.Write([]string{"no_data"})

	case allObjects(rows):
		flats := make([]*object, len(rows))
		for i, row := range rows {
			flats[i] = flatten(row.(*object))
		}

		fieldnames := append([]string(nil), flats[0].keys...)
		seen := map[string]bool{}
		for _, k := range fieldnames {
			seen[k] = true
		}
		for _, flat := range flats[1:] {
			var fresh []string
			for _, k := range flat.keys {
				if !seen[k] {
					fresh = append(fresh, k)
					seen[k] = true
				}
			}
			sort.Strings(fresh)
			fieldnames = append(fieldnames, fresh...)
		}

		_ = w.Write(fieldnames)
		record := make([]string, len(fieldnames))
		for _, flat := range flats {
			for i, k := range fieldnames {
				record[i] = ""
				if v, ok := flat.values[k]; ok {
					record[i] = v.(string)
				}
			}
			_ = w.Write(record)
		}

	default:
		_ = w.Write([]string{"value"})
		for _, row := range rows {
			switch row.(type) {
			case *object, []any:
				_ = w.Write([]string{encodeJSON(row)})
			default:
				_ = w.Write([]string{scalarString(row)})
			}
		}
	}

	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

func allObjects(rows []any) bool {
	for _, row := range rows {
		if _, ok := row.(*object); !ok {
			return false
		}
	}
	return true
}

// flatten rewrites nested objects into dot-notation keys; array values
// become embedded JSON strings, scalars render as cell text.
func flatten(o *object) *object {
	out := newObject()
	flattenInto(o, "", out)
	return out
}

func flattenInto(o *object, parent string, out *object) {
	for _, k := range o.keys {
		key := k
		if parent != "" {
			key = parent + "." + k
		}
		switch v := o.values[k].(type) {
		case *object:
			flattenInto(v, key, out)
		case []any:
			out.set(key, encodeJSON(v))
		default:
			out.set(key, scalarString(v))
		}
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}

// encodeJSON renders a value as JSON with Unicode literal (no \u escapes
// for printable characters) and readable separators, for embedding inside
// a CSV cell.
func encodeJSON(v any) string {
	var sb strings.Builder
	writeJSONValue(&sb, v)
	return sb.String()
}

func writeJSONValue(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if t {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		sb.WriteString(t.String())
	case string:
		writeJSONString(sb, t)
	case []any:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeJSONValue(sb, item)
		}
		sb.WriteByte(']')
	case *object:
		sb.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeJSONString(sb, k)
			sb.WriteString(": ")
			writeJSONValue(sb, t.values[k])
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(fmt.Sprint(t))
	}
}

func writeJSONString(sb *strings.Builder, s string) {
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(sb, `\u%04x`, r)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteByte('"')
}
