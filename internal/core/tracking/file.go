package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "enabled": {"type": "boolean"},
    "disconnected_context": {"type": "boolean"},
    "track_empty_properties": {"type": "boolean"},
    "overrides": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["type", "enabled"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "property": {"type": "string"},
          "enabled": {"type": "boolean"}
        }
      }
    }
  }
}`

// File is the on-disk form of tracking defaults. Type names are fully
// qualified declaring base type names.
type File struct {
	Enabled              *bool          `json:"enabled"`
	DisconnectedContext  *bool          `json:"disconnected_context"`
	TrackEmptyProperties *bool          `json:"track_empty_properties"`
	Overrides            []FileOverride `json:"overrides"`
}

type FileOverride struct {
	Type     string `json:"type"`
	Property string `json:"property"`
	Enabled  bool   `json:"enabled"`
}

var compiledFileSchema = mustCompileFileSchema()

// LoadFile reads, validates and applies a tracking config file to cfg.
func LoadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open tracking config: %w", err)
	}
	defer f.Close()
	return Apply(cfg, f)
}

// Apply validates the JSON document in r and applies it to cfg. Overrides
// are registered with high priority.
func Apply(cfg *Config, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read tracking config: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTrackingConfig, err)
	}
	if err := compiledFileSchema.Validate(doc); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidTrackingConfig, strings.Join(validationMessages(ve), "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidTrackingConfig, err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTrackingConfig, err)
	}

	if file.Enabled != nil {
		cfg.SetEnabled(*file.Enabled)
	}
	if file.DisconnectedContext != nil {
		cfg.SetDisconnectedContext(*file.DisconnectedContext)
	}
	if file.TrackEmptyProperties != nil {
		cfg.SetTrackEmptyProperties(*file.TrackEmptyProperties)
	}
	for _, o := range file.Overrides {
		cfg.store.Upsert(
			domain.PropertyConfigurationKey{PropertyName: o.Property, OwnerType: o.Type},
			domain.TrackingConfigurationValue{Enabled: o.Enabled, Priority: domain.PriorityHigh},
		)
	}
	return nil
}

func mustCompileFileSchema() *santhosh.Schema {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("tracking.json", strings.NewReader(fileSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("tracking.json")
}

func validationMessages(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, validationMessages(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
