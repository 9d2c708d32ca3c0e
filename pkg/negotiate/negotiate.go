// Package negotiate ranks the content codings a client advertises in an
// Accept-Encoding header.
package negotiate

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Well-known coding names.
const (
	Any      = "*"
	Brotli   = "br"
	Zstd     = "zstd"
	Gzip     = "gzip"
	Deflate  = "deflate"
	Compress = "compress"
	Identity = "identity"
)

// preference is the tie-break order for equally weighted codings. A lower
// index is more preferred.
var preference = []string{Any, Brotli, Zstd, Gzip, Deflate, Compress, Identity}

// unranked sorts codings missing from preference after every listed one.
var unranked = len(preference)

// Coding is one acceptable coding with its quality weight in (0, 1].
type Coding struct {
	Name   string
	Weight float64
}

// tokenRe matches an RFC 9110 token used as a coding name.
var tokenRe = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+.^_` + "`" + `|~-]+$`)

// Parse turns an Accept-Encoding value into codings sorted by descending
// weight, ties broken by the fixed preference order. Entries with weight 0
// are dropped. Parse never fails: a missing or unparsable weight counts as 1.
// An empty header yields an empty result.
func Parse(header string) []Coding {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []Coding
	for _, elem := range strings.Split(header, ",") {
		parts := strings.Split(elem, ";")
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		if !tokenRe.MatchString(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		w := 1.0
		for _, param := range parts[1:] {
			k, v, _ := strings.Cut(param, "=")
			if strings.EqualFold(strings.TrimSpace(k), "q") {
				w = parseWeight(strings.TrimSpace(v))
				break
			}
		}
		if w <= 0 {
			continue
		}
		out = append(out, Coding{Name: name, Weight: w})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return rank(out[i].Name) < rank(out[j].Name)
	})
	return out
}

func parseWeight(raw string) float64 {
	if raw == "" {
		return 1
	}
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(w) {
		return 1
	}
	if w > 1 {
		return 1
	}
	return w
}

func rank(name string) int {
	for i, p := range preference {
		if p == name {
			return i
		}
	}
	return unranked
}

// Names returns the coding names of cs in order.
func Names(cs []Coding) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
