package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/yourdles/internal/settings"
)

// runGet prints the setting at path: scalars as plain text, nodes and lists
// as indented JSON in document order.
func runGet(w io.Writer, conf settings.Value, path string) error {
	value := conf.Path(path)
	switch value.Kind() {
	case settings.KindMissing:
		return fmt.Errorf("%w: no setting at %q", settings.ErrConfiguration, path)
	case settings.KindNull:
		_, err := fmt.Fprintln(w, "null")
		return err
	case settings.KindScalar:
		_, err := fmt.Fprintln(w, value.String())
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", path, err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return fmt.Errorf("encode %q: %w", path, err)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(w)
	return err
}

// runSet parses raw as YAML, assigns it to path and prints the result.
func runSet(w io.Writer, store *settings.Store, path, raw string, dump bool) error {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return fmt.Errorf("parse value for %q: %w", path, err)
	}

	conf, err := store.Set(path, value)
	if err != nil {
		return err
	}
	if dump {
		return runDump(w, store)
	}
	return runGet(w, conf, path)
}

func runDump(w io.Writer, store *settings.Store) error {
	data, err := store.Dump()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
