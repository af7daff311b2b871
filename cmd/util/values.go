package util

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dBench/lib/codec"
	mapset "github.com/deckarep/golang-set/v2"
)

// ParseValues parses command line field assignments. The forms are
// name=text, name:int=42, name:bytes=<hex>, name:raw=<hex> and name:null.
// Raw values are untyped: eight bytes become an integer, anything else a
// blob (see codec.Infer).
func ParseValues(args []string) (codec.Fields, error) {
	fields := make(codec.Fields, len(args))
	for _, arg := range args {
		if name, ok := strings.CutSuffix(arg, ":null"); ok && !strings.Contains(name, "=") {
			fields[name] = codec.Null()
			continue
		}
		lhs, raw, ok := strings.Cut(arg, "=")
		if !ok || lhs == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", arg)
		}
		name, kind, _ := strings.Cut(lhs, ":")
		switch kind {
		case "", "string":
			fields[name] = codec.String(raw)
		case "int":
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			fields[name] = codec.Int(n)
		case "bytes", "raw":
			b, err := hex.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			if kind == "raw" {
				fields[name] = codec.Infer(b)
			} else {
				fields[name] = codec.Bytes(b)
			}
		default:
			return nil, fmt.Errorf("field %s: unknown type %q (string, int, bytes, raw)", name, kind)
		}
	}
	return fields, nil
}

// ParseFieldSet turns a comma-separated list into a field set. An empty list
// yields nil, which selects all fields.
func ParseFieldSet(list string) mapset.Set[string] {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	set := mapset.NewSet[string]()
	for _, f := range strings.Split(list, ",") {
		if f = strings.TrimSpace(f); f != "" {
			set.Add(f)
		}
	}
	return set
}

// FormatFields renders a record as name=value pairs in name order
func FormatFields(fields codec.Fields) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%s", name, fields[name])
	}
	return strings.Join(parts, " ")
}
