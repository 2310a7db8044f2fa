// Package photometry implements the spectral template handling needed for
// i-band K-corrections: SED and bandpass tables, redshifting, and a
// precomputed K-correction grid over redshift.
package photometry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// MissingTemplateError reports a spectral template that cannot be located.
type MissingTemplateError struct {
	Path string
	Err  error
}

func (e *MissingTemplateError) Error() string {
	if e.Path == "" {
		return "spectral template path not configured"
	}
	return fmt.Sprintf("spectral template %s does not exist", e.Path)
}

func (e *MissingTemplateError) Unwrap() error { return e.Err }

// SED is a spectral energy distribution sampled on a strictly increasing
// wavelength grid in nanometres, with flux density per unit wavelength.
type SED struct {
	Wavelen []float64
	Flambda []float64
}

// ReadSED loads a two-column template (wavelength in nm, flambda). Files
// ending in .gz are decompressed. Lines starting with # are skipped.
func ReadSED(path string) (*SED, error) {
	wl, fl, err := readColumns(path)
	if err != nil {
		return nil, err
	}
	s := &SED{Wavelen: wl, Flambda: fl}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return s, nil
}

// Clone returns a deep copy.
func (s *SED) Clone() *SED {
	return &SED{
		Wavelen: append([]float64(nil), s.Wavelen...),
		Flambda: append([]float64(nil), s.Flambda...),
	}
}

// Redshift returns the SED observed at redshift z: wavelengths stretched by
// (1+z) and, when dimming is set, flambda divided by (1+z). The receiver is
// not modified.
func (s *SED) Redshift(z float64, dimming bool) *SED {
	out := s.Clone()
	zp1 := 1 + z
	for i := range out.Wavelen {
		out.Wavelen[i] *= zp1
		if dimming {
			out.Flambda[i] /= zp1
		}
	}
	return out
}

// Fnu returns flux per unit frequency up to a constant factor, which cancels
// in every ratio this package forms.
func (s *SED) Fnu() []float64 {
	out := make([]float64, len(s.Wavelen))
	for i, w := range s.Wavelen {
		out[i] = s.Flambda[i] * w * w
	}
	return out
}

func (s *SED) validate() error {
	return validateGrid(s.Wavelen, s.Flambda)
}

func validateGrid(x, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("%d wavelengths but %d values", len(x), len(y))
	}
	if len(x) < 2 {
		return fmt.Errorf("need at least 2 samples, got %d", len(x))
	}
	for i := 1; i < len(x); i++ {
		if x[i] <= x[i-1] {
			return fmt.Errorf("wavelengths not strictly increasing at sample %d (%g after %g)", i, x[i], x[i-1])
		}
	}
	return nil
}

// readColumns parses the first two whitespace-separated numeric columns.
func readColumns(path string) ([]float64, []float64, error) {
	if path == "" {
		return nil, nil, &MissingTemplateError{}
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil, &MissingTemplateError{Path: path, Err: err}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	x, y, err := parseColumns(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return x, y, nil
}

func parseColumns(r io.Reader) ([]float64, []float64, error) {
	var x, y []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, nil, fmt.Errorf("line %d: expected 2 columns, got %d", line, len(fields))
		}
		a, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		x = append(x, a)
		y = append(y, b)
	}
	return x, y, sc.Err()
}
