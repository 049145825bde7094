// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package cache

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fieldguard/fieldguard/internal/identity"
)

const profileSchemaID = "https://fieldguard.dev/schemas/cached-profile.schema.json"

var (
	profileSchemaOnce sync.Once
	profileSchema     *jschema.Schema
	profileSchemaErr  error
)

// GenerateProfileSchema returns the JSON Schema of a cached profile snapshot.
func GenerateProfileSchema() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(&identity.Profile{})
	schema.ID = jsonschema.ID(profileSchemaID)
	schema.Title = "FieldGuard cached profile"
	schema.Description = "Last known profile persisted on the device"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CACHE_SCHEMA_MARSHAL_FAILED").Wrap(err)
	}
	return data, nil
}

func compiledProfileSchema() (*jschema.Schema, error) {
	profileSchemaOnce.Do(func() {
		raw, err := GenerateProfileSchema()
		if err != nil {
			profileSchemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			profileSchemaErr = oops.Code("CACHE_SCHEMA_PARSE_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(profileSchemaID, doc); err != nil {
			profileSchemaErr = oops.Code("CACHE_SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		profileSchema, profileSchemaErr = c.Compile(profileSchemaID)
		if profileSchemaErr != nil {
			profileSchemaErr = oops.Code("CACHE_SCHEMA_COMPILE_FAILED").Wrap(profileSchemaErr)
		}
	})
	return profileSchema, profileSchemaErr
}

// ValidateProfileJSON checks raw against the cached profile schema.
func ValidateProfileJSON(raw string) error {
	sch, err := compiledProfileSchema()
	if err != nil {
		return err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader([]byte(raw)))
	if err != nil {
		return oops.Code("CACHE_PROFILE_UNPARSABLE").Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code("CACHE_PROFILE_INVALID").Wrap(err)
	}
	return nil
}
