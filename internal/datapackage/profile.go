package datapackage

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed profile.json
var profileJSON []byte

var (
	profileOnce   sync.Once
	profileSchema *gojsonschema.Schema
	profileErr    error
)

// ValidationError lists every profile violation of a descriptor.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid data package: %s", strings.Join(e.Problems, "; "))
}

func compiledProfile() (*gojsonschema.Schema, error) {
	profileOnce.Do(func() {
		profileSchema, profileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(profileJSON))
	})
	return profileSchema, profileErr
}

// Validate checks a descriptor against the data package profile.
func Validate(d Descriptor) error {
	schema, err := compiledProfile()
	if err != nil {
		return fmt.Errorf("failed to compile package profile: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(d)))
	if err != nil {
		return fmt.Errorf("failed to validate package: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, re := range result.Errors() {
		field := re.Field()
		if field == "" {
			field = "root"
		}
		verr.Problems = append(verr.Problems, fmt.Sprintf("%s: %s", field, re.Description()))
	}
	return verr
}
