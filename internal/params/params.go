// Package params expands the serialized AGN variability parameter blob into
// typed columns.
//
// Blobs are mappings of the form {"m": "applyAgn", "p": {...}} written either
// as JSON or as a Python dict literal. Both are valid YAML flow mappings, so a
// single YAML decoder handles them.
package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agnvar/agnvar/internal/frame"
	"github.com/agnvar/agnvar/internal/source"
)

// Bands are the photometric bands in canonical order. Rest-frame quantities
// cover only the bands with a known central wavelength.
var Bands = []string{"u", "g", "r", "i", "z", "y"}

const numBands = 6

// Scalar entries of the parameter mapping.
const (
	KeySeed  = "seed"
	KeyT0MJD = "t0_mjd"
)

// TauKey returns the canonical damping timescale key for a band.
func TauKey(band string) string { return "agn_tau_" + band }

// SFKey returns the canonical structure-function amplitude key for a band.
func SFKey(band string) string { return "agn_sf_" + band }

// CanonicalKeys lists every accepted parameter key in output column order.
func CanonicalKeys() []string {
	keys := []string{KeySeed}
	for _, b := range Bands {
		keys = append(keys, TauKey(b))
	}
	for _, b := range Bands {
		keys = append(keys, SFKey(b))
	}
	return append(keys, KeyT0MJD)
}

var canonicalIndex = func() map[string]int {
	m := make(map[string]int)
	for i, k := range CanonicalKeys() {
		m[k] = i
	}
	return m
}()

// aliases maps legacy key spellings onto one or more canonical keys. Older
// databases carry a single timescale for all bands and band-suffixed
// amplitudes without an underscore.
var aliases = func() map[string][]string {
	m := map[string][]string{"agn_tau": nil}
	for _, b := range Bands {
		m["agn_tau"] = append(m["agn_tau"], TauKey(b))
		m["agn_sf"+b] = []string{SFKey(b)}
	}
	return m
}()

// Params is the typed form of one row's parameter mapping, with Tau and SF
// indexed like Bands. Values absent from the blob are NaN.
type Params struct {
	Seed  float64
	Tau   [numBands]float64
	SF    [numBands]float64
	T0MJD float64
}

// get returns the value stored under a canonical key.
func (p *Params) get(i int) float64 {
	switch {
	case i == 0:
		return p.Seed
	case i <= numBands:
		return p.Tau[i-1]
	case i <= 2*numBands:
		return p.SF[i-1-numBands]
	default:
		return p.T0MJD
	}
}

func (p *Params) set(i int, v float64) {
	switch {
	case i == 0:
		p.Seed = v
	case i <= numBands:
		p.Tau[i-1] = v
	case i <= 2*numBands:
		p.SF[i-1-numBands] = v
	default:
		p.T0MJD = v
	}
}

func emptyParams() Params {
	nan := math.NaN()
	p := Params{Seed: nan, T0MJD: nan}
	for i := range p.Tau {
		p.Tau[i] = nan
		p.SF[i] = nan
	}
	return p
}

// MalformedParameterError reports a parameter blob that is not the expected
// nested mapping.
type MalformedParameterError struct {
	Row      int
	GalaxyID int64
	Err      error
}

func (e *MalformedParameterError) Error() string {
	return fmt.Sprintf("malformed parameters at row %d (galaxy_id %d): %v", e.Row, e.GalaxyID, e.Err)
}

func (e *MalformedParameterError) Unwrap() error { return e.Err }

// Parse decodes one blob. It returns the typed parameters and a bitmask of the
// canonical keys that were present.
func Parse(blob string) (Params, uint32, error) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(blob), &doc); err != nil {
		return Params{}, 0, fmt.Errorf("decoding mapping: %w", err)
	}
	if doc == nil {
		return Params{}, 0, fmt.Errorf("blob is not a mapping")
	}
	raw, ok := doc["p"]
	if !ok {
		return Params{}, 0, fmt.Errorf("missing key %q", "p")
	}
	inner, ok := raw.(map[string]any)
	if !ok {
		return Params{}, 0, fmt.Errorf("key %q holds %T, want mapping", "p", raw)
	}

	p := emptyParams()
	var seen uint32
	for key, val := range inner {
		v, err := toFloat(val)
		if err != nil {
			return Params{}, 0, fmt.Errorf("key %q: %w", key, err)
		}
		targets, err := resolve(key)
		if err != nil {
			return Params{}, 0, err
		}
		for _, i := range targets {
			p.set(i, v)
			seen |= 1 << i
		}
	}
	return p, seen, nil
}

func resolve(key string) ([]int, error) {
	if i, ok := canonicalIndex[key]; ok {
		return []int{i}, nil
	}
	if names, ok := aliases[key]; ok {
		out := make([]int, len(names))
		for j, n := range names {
			out[j] = canonicalIndex[n]
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown parameter key %q", key)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		// Python writes non-finite floats as nan/inf.
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("value of type %T is not numeric", v)
}

// Unravel parses the varParamStr column of a batch, appends one float64 column
// per parameter key observed anywhere in the batch, and drops varParamStr.
// Rows lacking a key get NaN. The input frame is left untouched.
func Unravel(f *frame.Frame) (*frame.Frame, error) {
	blobs, err := f.Column(source.ColVarParamStr)
	if err != nil {
		return nil, err
	}
	if blobs.Kind != frame.String {
		return nil, fmt.Errorf("column %s is %s, want string", source.ColVarParamStr, blobs.Kind)
	}
	ids, _ := f.Column(source.ColGalaxyID)

	n := f.Len()
	parsed := make([]Params, n)
	var union uint32
	for i, blob := range blobs.Strings() {
		p, seen, err := Parse(blob)
		if err != nil {
			mpe := &MalformedParameterError{Row: i, Err: err}
			if ids != nil && ids.Kind.IsInteger() {
				mpe.GalaxyID = ids.IntAt(i)
			}
			return nil, mpe
		}
		parsed[i] = p
		union |= seen
	}

	out := f.Clone()
	if err := out.Drop(source.ColVarParamStr); err != nil {
		return nil, err
	}
	for k, name := range CanonicalKeys() {
		if union&(1<<k) == 0 {
			continue
		}
		vals := make([]float64, n)
		for i := range parsed {
			vals[i] = parsed[i].get(k)
		}
		if err := out.AddColumn(frame.NewFloat64(name, vals)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
