// Package sector maps ticker symbols to an industry sector label.
package sector

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is reported for symbols missing from the table.
const Unknown = "Unknown"

//go:embed sectors.yaml
var defaultTable []byte

type Table struct {
	sectors map[string]string
}

// Default returns the embedded table.
func Default() *Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("embedded sector table: %v", err))
	}
	return t
}

// Load returns the embedded table overlaid with entries from path. An
// empty path yields the embedded table alone.
func Load(path string) (*Table, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sectors: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for sym, s := range extra.sectors {
		t.sectors[sym] = s
	}
	return t, nil
}

func Parse(data []byte) (*Table, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	t := &Table{sectors: make(map[string]string, len(raw))}
	for sym, s := range raw {
		t.sectors[strings.ToUpper(strings.TrimSpace(sym))] = strings.TrimSpace(s)
	}
	return t, nil
}

func (t *Table) Lookup(symbol string) string {
	if s, ok := t.sectors[strings.ToUpper(strings.TrimSpace(symbol))]; ok && s != "" {
		return s
	}
	return Unknown
}

func (t *Table) Len() int { return len(t.sectors) }
