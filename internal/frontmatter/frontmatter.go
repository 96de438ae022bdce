// Package frontmatter parses and generates the YAML-delimited metadata block
// at the top of journal markdown files.
//
// The supported grammar is a restricted YAML subset, intentionally minimal so
// parsing stays deterministic and a hand-edited file cannot produce surprising
// structures:
//
//	---
//	id: 7c9e6679-7425-40de-944b-e07fc1f90ae7
//	title: "Trip to the coast"
//	startAt: 2024-03-15
//	location:
//	  lat: 52.37
//	  lng: 4.89
//	tags:
//	  - family
//	  - travel
//	---
//	Body text follows the closing fence.
//
// Scalars may be strings, integers, floats, booleans, or null. Lists contain
// only string scalars. Objects are one level deep and contain only scalars.
// Anchors, aliases, multi-line strings, flow mappings, and nested lists are
// not supported.
//
// Parsing never fails: a document without a leading fence, an unterminated
// block, or a malformed line inside the block all degrade to an empty
// frontmatter map with the full original content returned as body. Structured
// metadata is an optimization, not a requirement, for files a user edits by
// hand.
package frontmatter

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
)

// ScalarKind distinguishes the scalar types in the supported YAML subset.
type ScalarKind uint8

// ScalarKind values enumerate the accepted scalar types.
const (
	ScalarString ScalarKind = iota
	ScalarInt
	ScalarFloat
	ScalarBool
)

// Scalar keeps the restricted YAML scalar types explicit for downstream
// decoding. Exactly one field (chosen by Kind) is populated.
type Scalar struct {
	Kind   ScalarKind
	String string
	Int    int64
	Float  float64
	Bool   bool
}

// ValueKind describes the supported frontmatter value shapes.
type ValueKind uint8

// ValueKind values enumerate the supported top-level YAML shapes.
const (
	ValueScalar ValueKind = iota
	ValueList
	ValueObject
)

// Value represents a frontmatter value in the supported YAML subset.
type Value struct {
	Kind   ValueKind
	Scalar Scalar
	List   []string
	Object map[string]Scalar
}

// String creates a string scalar Value.
func String(s string) Value {
	return Value{Kind: ValueScalar, Scalar: Scalar{Kind: ScalarString, String: s}}
}

// Int creates an integer scalar Value.
func Int(i int64) Value {
	return Value{Kind: ValueScalar, Scalar: Scalar{Kind: ScalarInt, Int: i}}
}

// Float creates a float scalar Value.
func Float(f float64) Value {
	return Value{Kind: ValueScalar, Scalar: Scalar{Kind: ScalarFloat, Float: f}}
}

// Bool creates a boolean scalar Value.
func Bool(b bool) Value {
	return Value{Kind: ValueScalar, Scalar: Scalar{Kind: ScalarBool, Bool: b}}
}

// List creates a string-list Value.
func List(items []string) Value {
	return Value{Kind: ValueList, List: items}
}

// Object creates a nested-map Value.
func Object(obj map[string]Scalar) Value {
	return Value{Kind: ValueObject, Object: obj}
}

// Frontmatter maps top-level keys to values.
type Frontmatter map[string]Value

// GetString returns the string value for key.
// Returns ("", false) if key is missing or not a string scalar.
func (fm Frontmatter) GetString(key string) (string, bool) {
	v, ok := fm[key]
	if !ok || v.Kind != ValueScalar || v.Scalar.Kind != ScalarString {
		return "", false
	}

	return v.Scalar.String, true
}

// GetInt returns the int64 value for key.
// Returns (0, false) if key is missing or not an int scalar.
func (fm Frontmatter) GetInt(key string) (int64, bool) {
	v, ok := fm[key]
	if !ok || v.Kind != ValueScalar || v.Scalar.Kind != ScalarInt {
		return 0, false
	}

	return v.Scalar.Int, true
}

// GetFloat returns the float64 value for key.
// Integer scalars are widened so "lat: 52" reads back as 52.0.
// Returns (0, false) if key is missing or not numeric.
func (fm Frontmatter) GetFloat(key string) (float64, bool) {
	v, ok := fm[key]
	if !ok || v.Kind != ValueScalar {
		return 0, false
	}

	switch v.Scalar.Kind {
	case ScalarFloat:
		return v.Scalar.Float, true
	case ScalarInt:
		return float64(v.Scalar.Int), true
	default:
		return 0, false
	}
}

// GetBool returns the bool value for key.
// Returns (false, false) if key is missing or not a bool scalar.
func (fm Frontmatter) GetBool(key string) (bool, bool) {
	v, ok := fm[key]
	if !ok || v.Kind != ValueScalar || v.Scalar.Kind != ScalarBool {
		return false, false
	}

	return v.Scalar.Bool, true
}

// GetList returns the string slice for key.
// Returns (nil, false) if key is missing or not a list.
func (fm Frontmatter) GetList(key string) ([]string, bool) {
	v, ok := fm[key]
	if !ok || v.Kind != ValueList {
		return nil, false
	}

	return v.List, true
}

// GetObject returns the nested map for key.
// Returns (nil, false) if key is missing or not an object.
func (fm Frontmatter) GetObject(key string) (map[string]Scalar, bool) {
	v, ok := fm[key]
	if !ok || v.Kind != ValueObject {
		return nil, false
	}

	return v.Object, true
}

const fence = "---"

// Parse splits content into frontmatter and body.
//
// The frontmatter block is the region between a leading "---" line and the
// next "---" line. If the leading fence is absent, the block is unterminated,
// or any line inside the block is malformed, Parse returns an empty map and
// the full original content as body. Parse never fails.
//
// The returned body starts after the closing fence with leading blank lines
// trimmed.
func Parse(content []byte) (Frontmatter, string) {
	lines := splitLines(content)
	if len(lines) == 0 || string(trimCR(lines[0])) != fence {
		return Frontmatter{}, string(content)
	}

	closing := -1

	for i := 1; i < len(lines); i++ {
		if string(trimCR(lines[i])) == fence {
			closing = i

			break
		}
	}

	if closing < 0 {
		return Frontmatter{}, string(content)
	}

	fm, err := parseBlock(lines[1:closing])
	if err != nil {
		// Malformed metadata degrades to "no structured metadata": the whole
		// document is preserved as body so nothing the user typed is lost.
		return Frontmatter{}, string(content)
	}

	body := strings.Join(linesToStrings(lines[closing+1:]), "\n")
	body = strings.TrimLeft(body, "\r\n")

	return fm, body
}

// Generate renders frontmatter and body as a markdown document.
//
// Output is deterministic: keys listed in keyOrder are emitted first (in that
// order, when present), remaining keys alphabetically. String scalars that
// could be misparsed (numeric-looking, boolean/null words, containing ':' or
// '#', leading/trailing whitespace, empty) are double-quoted.
//
// Generate is idempotent against Parse: Parse(Generate(fm, body, order))
// reproduces fm and the whitespace-trimmed body.
func Generate(fm Frontmatter, body string, keyOrder []string) []byte {
	var b bytes.Buffer

	b.WriteString(fence)
	b.WriteByte('\n')

	for _, key := range orderedKeys(fm, keyOrder) {
		writeEntry(&b, key, fm[key])
	}

	b.WriteString(fence)
	b.WriteByte('\n')

	body = strings.TrimSpace(body)
	if body != "" {
		b.WriteByte('\n')
		b.WriteString(body)
		b.WriteByte('\n')
	}

	return b.Bytes()
}

// orderedKeys returns fm's keys with keyOrder entries first (in that order,
// when present) followed by the rest alphabetically.
func orderedKeys(fm Frontmatter, keyOrder []string) []string {
	out := make([]string, 0, len(fm))
	emitted := make(map[string]bool, len(fm))

	for _, key := range keyOrder {
		if _, ok := fm[key]; ok && !emitted[key] {
			out = append(out, key)
			emitted[key] = true
		}
	}

	rest := make([]string, 0, len(fm))

	for key := range fm {
		if !emitted[key] {
			rest = append(rest, key)
		}
	}

	sort.Strings(rest)

	return append(out, rest...)
}

func writeEntry(b *bytes.Buffer, key string, value Value) {
	b.WriteString(key)
	b.WriteByte(':')

	switch value.Kind {
	case ValueScalar:
		b.WriteByte(' ')
		b.WriteString(renderScalar(value.Scalar))
		b.WriteByte('\n')
	case ValueList:
		if len(value.List) == 0 {
			b.WriteString(" []\n")

			return
		}

		b.WriteByte('\n')

		for _, item := range value.List {
			b.WriteString("  - ")
			b.WriteString(renderString(item))
			b.WriteByte('\n')
		}
	case ValueObject:
		b.WriteByte('\n')

		objKeys := make([]string, 0, len(value.Object))
		for objKey := range value.Object {
			objKeys = append(objKeys, objKey)
		}

		sort.Strings(objKeys)

		for _, objKey := range objKeys {
			b.WriteString("  ")
			b.WriteString(objKey)
			b.WriteString(": ")
			b.WriteString(renderScalar(value.Object[objKey]))
			b.WriteByte('\n')
		}
	}
}

func renderScalar(s Scalar) string {
	switch s.Kind {
	case ScalarInt:
		return strconv.FormatInt(s.Int, 10)
	case ScalarFloat:
		return strconv.FormatFloat(s.Float, 'f', -1, 64)
	case ScalarBool:
		return strconv.FormatBool(s.Bool)
	default:
		return renderString(s.String)
	}
}

// renderString quotes s when an unquoted emission would parse back as a
// different scalar type or lose characters.
func renderString(s string) string {
	if needsQuoting(s) {
		return strconv.Quote(s)
	}

	return s
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}

	if strings.TrimSpace(s) != s {
		return true
	}

	switch s {
	case "true", "false", "null", "~":
		return true
	}

	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}

	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}

	if strings.ContainsAny(s, ":#\"'\n") {
		return true
	}

	switch s[0] {
	case '[', ']', '{', '}', '-', '|', '>', '&', '*', '!', '%', '@', '`':
		return true
	}

	return false
}

// parseBlock parses the lines between the fences. Any malformed line aborts
// the whole block; the caller degrades to an empty map.
func parseBlock(lines [][]byte) (Frontmatter, error) {
	out := make(Frontmatter)

	idx := 0
	for idx < len(lines) {
		line := trimCR(lines[idx])
		if len(bytes.TrimSpace(line)) == 0 {
			idx++

			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			return nil, errMalformed("unexpected indentation")
		}

		keyRaw, restRaw, found := bytes.Cut(line, []byte{':'})
		if !found {
			return nil, errMalformed("missing ':'")
		}

		key := string(bytes.TrimSpace(keyRaw))
		if key == "" || strings.ContainsAny(key, " \t") {
			return nil, errMalformed("bad key")
		}

		if _, exists := out[key]; exists {
			return nil, errMalformed("duplicate key")
		}

		rest := bytes.TrimSpace(restRaw)

		if len(rest) > 0 {
			value, isNull, err := parseInlineValue(rest)
			if err != nil {
				return nil, err
			}

			if !isNull {
				out[key] = value
			}

			idx++

			continue
		}

		// Empty rest: an indented block (list or object) follows.
		block, next, err := collectIndented(lines, idx+1)
		if err != nil {
			return nil, err
		}

		if len(block) == 0 {
			// A bare "key:" with no block is YAML null; the key is omitted.
			idx++

			continue
		}

		value, err := parseIndentedBlock(block)
		if err != nil {
			return nil, err
		}

		out[key] = value
		idx = next
	}

	return out, nil
}

// collectIndented gathers consecutive indented lines starting at start,
// skipping blanks. Returns the de-indented lines and the index after them.
func collectIndented(lines [][]byte, start int) ([][]byte, int, error) {
	var block [][]byte

	indent := -1
	idx := start

	for idx < len(lines) {
		line := trimCR(lines[idx])
		if len(bytes.TrimSpace(line)) == 0 {
			idx++

			continue
		}

		spaces := 0
		for spaces < len(line) && line[spaces] == ' ' {
			spaces++
		}

		if spaces < len(line) && line[spaces] == '\t' {
			return nil, 0, errMalformed("tabs are not allowed")
		}

		if spaces == 0 {
			break
		}

		if indent == -1 {
			indent = spaces
		} else if spaces != indent {
			return nil, 0, errMalformed("inconsistent indentation")
		}

		block = append(block, line[indent:])
		idx++
	}

	return block, idx, nil
}

// parseIndentedBlock interprets a de-indented block as either a string list
// ("- item" lines) or a one-level scalar object ("key: value" lines).
func parseIndentedBlock(block [][]byte) (Value, error) {
	if len(block[0]) >= 2 && block[0][0] == '-' && block[0][1] == ' ' {
		items := make([]string, 0, len(block))

		for _, line := range block {
			if len(line) < 2 || line[0] != '-' || line[1] != ' ' {
				return Value{}, errMalformed("expected list item")
			}

			item := bytes.TrimSpace(line[2:])
			if len(item) == 0 {
				return Value{}, errMalformed("empty list item")
			}

			str, err := parseStringToken(item)
			if err != nil {
				return Value{}, err
			}

			items = append(items, str)
		}

		return List(items), nil
	}

	obj := make(map[string]Scalar, len(block))

	for _, line := range block {
		keyRaw, restRaw, found := bytes.Cut(line, []byte{':'})
		if !found {
			return Value{}, errMalformed("missing ':' in object entry")
		}

		key := string(bytes.TrimSpace(keyRaw))
		if key == "" || strings.ContainsAny(key, " \t") {
			return Value{}, errMalformed("bad object key")
		}

		if _, exists := obj[key]; exists {
			return Value{}, errMalformed("duplicate object key")
		}

		rest := bytes.TrimSpace(restRaw)
		if len(rest) == 0 {
			return Value{}, errMalformed("empty object value")
		}

		scalar, isNull, err := parseScalarToken(rest)
		if err != nil {
			return Value{}, err
		}

		if isNull {
			continue
		}

		obj[key] = scalar
	}

	return Object(obj), nil
}

// parseInlineValue parses the value part of a "key: value" line: either an
// inline list "[a, b]" or a scalar. isNull reports an explicit YAML null,
// which callers treat as key absence.
func parseInlineValue(rest []byte) (Value, bool, error) {
	if rest[0] == '[' {
		if rest[len(rest)-1] != ']' {
			return Value{}, false, errMalformed("unterminated list")
		}

		inner := bytes.TrimSpace(rest[1 : len(rest)-1])
		if len(inner) == 0 {
			return List([]string{}), false, nil
		}

		parts := bytes.Split(inner, []byte{','})
		items := make([]string, 0, len(parts))

		for _, part := range parts {
			item := bytes.TrimSpace(part)
			if len(item) == 0 {
				return Value{}, false, errMalformed("empty list item")
			}

			str, err := parseStringToken(item)
			if err != nil {
				return Value{}, false, err
			}

			items = append(items, str)
		}

		return List(items), false, nil
	}

	scalar, isNull, err := parseScalarToken(rest)
	if err != nil {
		return Value{}, false, err
	}

	return Value{Kind: ValueScalar, Scalar: scalar}, isNull, nil
}

func parseScalarToken(token []byte) (Scalar, bool, error) {
	if hasUnsupportedPrefix(token) {
		return Scalar{}, false, errMalformed("unsupported value")
	}

	switch string(token) {
	case "null", "~":
		return Scalar{}, true, nil
	case "true":
		return Scalar{Kind: ScalarBool, Bool: true}, false, nil
	case "false":
		return Scalar{Kind: ScalarBool, Bool: false}, false, nil
	}

	if token[0] != '"' && token[0] != '\'' {
		if i, err := strconv.ParseInt(string(token), 10, 64); err == nil {
			return Scalar{Kind: ScalarInt, Int: i}, false, nil
		}

		if f, err := strconv.ParseFloat(string(token), 64); err == nil {
			return Scalar{Kind: ScalarFloat, Float: f}, false, nil
		}
	}

	str, err := parseStringToken(token)
	if err != nil {
		return Scalar{}, false, err
	}

	return Scalar{Kind: ScalarString, String: str}, false, nil
}

func parseStringToken(token []byte) (string, error) {
	if len(token) > 0 && token[0] == '"' {
		if len(token) < 2 || token[len(token)-1] != '"' {
			return "", errMalformed("unterminated quoted string")
		}

		str, err := strconv.Unquote(string(token))
		if err != nil {
			return "", errMalformed("invalid quoted string")
		}

		return str, nil
	}

	if len(token) > 0 && token[0] == '\'' {
		if len(token) < 2 || token[len(token)-1] != '\'' {
			return "", errMalformed("unterminated quoted string")
		}

		return string(token[1 : len(token)-1]), nil
	}

	return string(token), nil
}

func hasUnsupportedPrefix(token []byte) bool {
	switch token[0] {
	case '{', '}', ']', '|', '>', '&', '*', '!', '%', '@', '`':
		return true
	}

	return len(token) >= 2 && token[0] == '-' && token[1] == ' '
}

type malformedError string

func (e malformedError) Error() string {
	return "parse frontmatter: " + string(e)
}

func errMalformed(msg string) error {
	return malformedError(msg)
}

func splitLines(content []byte) [][]byte {
	if len(content) == 0 {
		return nil
	}

	return bytes.Split(content, []byte{'\n'})
}

func linesToStrings(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = string(trimCR(line))
	}

	return out
}

func trimCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}

	return line
}
