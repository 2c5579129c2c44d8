package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/core"
)

const (
	// OwnerHeader names the caller. Authentication happens upstream.
	OwnerHeader = "X-Owner-ID"

	IdempotencyKeyHeader = "Idempotency-Key"

	maxBodyBytes = 1 << 20
	maxOwnerLen  = 128
)

var errMissingOwner = fmt.Errorf("%w: %s header is required", core.ErrValidation, OwnerHeader)

// ownerFrom returns the caller's owner id.
func ownerFrom(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" || len(owner) > maxOwnerLen {
		return "", errMissingOwner
	}
	return owner, nil
}

// readBody reads at most maxBodyBytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: request body exceeds %d bytes", core.ErrValidation, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: read body: %v", core.ErrValidation, err)
	}
	return body, nil
}

// decodeBody strictly decodes JSON into v. Decode failures are
// validation errors, so the caller answers 400.
func decodeBody(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, core.ErrValidation) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body: %v", core.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", core.ErrValidation)
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return decodeBody(body, v)
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", core.ErrValidation, name)
	}
	return n, nil
}

// queryDate parses an optional YYYY-MM-DD parameter.
func queryDate(r *http.Request, name string) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(v)
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", core.ErrValidation, name)
	}
	return b, nil
}
