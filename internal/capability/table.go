package capability

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Table is the serialized rule table.
type Table struct {
	// Platforms maps a platform tag to its family.
	Platforms map[string]string `yaml:"platforms" json:"platforms"`
	// Rules are evaluated in declaration order.
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

//go:embed default_rules.yaml
var defaultRules []byte

var errEmptyTable = errors.New("rule table has no platforms")

// DefaultTable returns the embedded rule table.
func DefaultTable() (Table, error) {
	return decodeYAML(defaultRules)
}

// LoadTable reads a rule table from path.
// Files ending in .json or .jsonc are decoded as JSON with comments, everything else as YAML.
func LoadTable(path string) (Table, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Table{}, fmt.Errorf("read rule table: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		var table Table
		if err := json.Unmarshal(jsonc.ToJSON(contents), &table); err != nil {
			return Table{}, fmt.Errorf("decode rule table %s: %w", path, err)
		}

		return table, nil
	default:
		table, err := decodeYAML(contents)
		if err != nil {
			return Table{}, fmt.Errorf("decode rule table %s: %w", path, err)
		}

		return table, nil
	}
}

func decodeYAML(contents []byte) (Table, error) {
	var table Table
	if err := yaml.Unmarshal(contents, &table); err != nil {
		return Table{}, err
	}

	return table, nil
}
