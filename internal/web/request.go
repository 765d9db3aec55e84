// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// registerRequest is the body of POST /auth/register.
type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Username *string `json:"username,omitempty"`
}

// loginRequest is the body of POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// requestSchema is a JSON schema reflected from a request struct and
// compiled on first use. Fields without omitempty are required and unknown
// fields are rejected.
type requestSchema struct {
	name        string
	title       string
	description string
	sample      any

	once   sync.Once
	schema *jschema.Schema
	err    error
}

var (
	registerSchema = &requestSchema{
		name:        "register.schema.json",
		title:       "identityd register request",
		description: "Body of POST /auth/register",
		sample:      &registerRequest{},
	}
	loginSchema = &requestSchema{
		name:        "login.schema.json",
		title:       "identityd login request",
		description: "Body of POST /auth/login",
		sample:      &loginRequest{},
	}
)

// RequestSchemas returns the JSON schemas of the request bodies, keyed by
// file name.
func RequestSchemas() (map[string][]byte, error) {
	out := make(map[string][]byte, 2)
	for _, s := range []*requestSchema{registerSchema, loginSchema} {
		data, err := s.document()
		if err != nil {
			return nil, err
		}
		out[s.name] = data
	}
	return out, nil
}

func (s *requestSchema) document() ([]byte, error) {
	r := jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(s.sample)
	schema.Title = s.title
	schema.Description = s.description

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.With("schema", s.name).Wrap(err)
	}
	return data, nil
}

func (s *requestSchema) compiled() (*jschema.Schema, error) {
	s.once.Do(func() {
		data, err := s.document()
		if err != nil {
			s.err = err
			return
		}

		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			s.err = oops.With("schema", s.name).Wrap(err)
			return
		}

		c := jschema.NewCompiler()
		if err := c.AddResource(s.name, doc); err != nil {
			s.err = oops.With("schema", s.name).Wrap(err)
			return
		}
		s.schema, s.err = c.Compile(s.name)
		if s.err != nil {
			s.err = oops.With("schema", s.name).Wrap(s.err)
		}
	})
	return s.schema, s.err
}

// decodeBody reads a size-limited JSON body, checks it against schema and
// decodes it into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, schema *requestSchema, dst any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return oops.Code(CodeRequestTooLarge).With("limit", tooLarge.Limit).Wrap(err)
		}
		return oops.Code(CodeRequestInvalid).With("operation", "read body").Wrap(err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return oops.Code(CodeRequestInvalid).With("operation", "parse body").Wrap(err)
	}

	sch, err := schema.compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(CodeRequestInvalid).
			With("operation", "validate body").
			With("schema", schema.name).
			Wrap(err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return oops.Code(CodeRequestInvalid).With("operation", "decode body").Wrap(err)
	}
	return nil
}
