package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/openfroyo/fwgen/pkg/config"
	"github.com/openfroyo/fwgen/pkg/engine"
)

// errInvalidConfig is returned once the problems have been printed.
var errInvalidConfig = errors.New("configuration is invalid")

// buildReport is the outcome of checking one configuration file.
type buildReport struct {
	File       string            `json:"file"`
	Valid      bool              `json:"valid"`
	BuildID    string            `json:"build_id,omitempty"`
	Order      []string          `json:"order,omitempty"`
	AutoLoaded map[string]string `json:"auto_loaded,omitempty"`
	Errors     []reportError     `json:"errors,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

type reportError struct {
	Kind      string `json:"kind"`
	Component string `json:"component,omitempty"`
	Location  string `json:"location,omitempty"`
	Message   string `json:"message"`
}

// newBuildReport summarizes a build. Exactly one of result and err is set.
func newBuildReport(file string, result *engine.BuildResult, err error) *buildReport {
	r := &buildReport{File: file}

	if err != nil {
		r.Errors = reportErrors(err)
		return r
	}

	r.Valid = true
	r.BuildID = result.ID
	r.Order = result.Order
	r.AutoLoaded = result.Resolution.AutoLoaded
	if result.Policy != nil {
		for _, v := range result.Policy.Violations {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s: %s", v.Policy, v.Message))
		}
		r.Warnings = append(r.Warnings, result.Policy.Warnings...)
	}
	return r
}

// reportErrors flattens document errors, configuration errors or any other
// error into report entries.
func reportErrors(err error) []reportError {
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]reportError, 0, len(verrs))
		for _, ve := range verrs {
			loc := ve.File
			if ve.Line > 0 {
				loc = fmt.Sprintf("%s:%d:%d", ve.File, ve.Line, ve.Column)
			}
			out = append(out, reportError{Kind: "document", Component: ve.Path, Location: loc, Message: ve.Message})
		}
		return out
	}

	if ces := engine.Errors(err); len(ces) > 0 {
		out := make([]reportError, 0, len(ces))
		for _, ce := range ces {
			out = append(out, reportError{Kind: string(ce.Kind), Component: ce.Component, Message: ce.Error()})
		}
		return out
	}

	return []reportError{{Kind: "error", Message: err.Error()}}
}

// write prints the report as text or JSON.
func (r *buildReport) write(w io.Writer) error {
	if jsonOutput {
		return writeJSON(w, r)
	}

	if !r.Valid {
		fmt.Fprintf(w, "%s: %d error(s)\n", r.File, len(r.Errors))
		for _, e := range r.Errors {
			if e.Location != "" {
				fmt.Fprintf(w, "  %s: %s\n", e.Location, e.Message)
				continue
			}
			fmt.Fprintf(w, "  %s\n", e.Message)
		}
		return nil
	}

	fmt.Fprintf(w, "%s: OK (build %s)\n", r.File, r.BuildID)
	fmt.Fprintf(w, "  order: %s\n", strings.Join(r.Order, ", "))
	if len(r.AutoLoaded) > 0 {
		names := make([]string, 0, len(r.AutoLoaded))
		for id := range r.AutoLoaded {
			names = append(names, id)
		}
		sort.Strings(names)
		for _, id := range names {
			fmt.Fprintf(w, "  auto-loaded: %s (by %s)\n", id, r.AutoLoaded[id])
		}
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
