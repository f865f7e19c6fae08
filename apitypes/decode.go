package apitypes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrShape reports a payload that does not match a declared type exactly.
var ErrShape = errors.New("apitypes: shape mismatch")

// DecodeUser parses data as a User. Every declared field must be present, no
// other field is allowed, and name must be a string or null.
func DecodeUser(data []byte) (User, error) {
	fields, err := objectFields(data, "id", "email", "name")
	if err != nil {
		return User{}, fmt.Errorf("user: %w", err)
	}
	return userFromFields(fields)
}

// DecodeAuthResponse parses data as an AuthResponse with the same rules as
// DecodeUser, applied to the nested user.
func DecodeAuthResponse(data []byte) (AuthResponse, error) {
	fields, err := objectFields(data, "token", "user")
	if err != nil {
		return AuthResponse{}, fmt.Errorf("auth response: %w", err)
	}
	token, err := stringField(fields, "token")
	if err != nil {
		return AuthResponse{}, fmt.Errorf("auth response: %w", err)
	}
	user, err := DecodeUser(fields["user"])
	if err != nil {
		return AuthResponse{}, fmt.Errorf("auth response: %w", err)
	}
	return AuthResponse{Token: token, User: user}, nil
}

func userFromFields(fields map[string]json.RawMessage) (User, error) {
	id, err := stringField(fields, "id")
	if err != nil {
		return User{}, fmt.Errorf("user: %w", err)
	}
	email, err := stringField(fields, "email")
	if err != nil {
		return User{}, fmt.Errorf("user: %w", err)
	}
	user := User{ID: id, Email: email}
	raw := bytes.TrimSpace(fields["name"])
	if !bytes.Equal(raw, []byte("null")) {
		name, err := stringField(fields, "name")
		if err != nil {
			return User{}, fmt.Errorf("user: %w", err)
		}
		user.Name = &name
	}
	return user, nil
}

func objectFields(data []byte, want ...string) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrShape)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShape, err)
	}
	allowed := make(map[string]struct{}, len(want))
	var missing []string
	for _, name := range want {
		allowed[name] = struct{}{}
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrShape, strings.Join(missing, ", "))
	}
	var unknown []string
	for name := range fields {
		if _, ok := allowed[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown %s", ErrShape, strings.Join(unknown, ", "))
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw := bytes.TrimSpace(fields[name])
	if len(raw) == 0 || raw[0] != '"' {
		return "", fmt.Errorf("%w: %s must be a string", ErrShape, name)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrShape, name, err)
	}
	return value, nil
}
