package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"fintrack/internal/services"
)

const maxBodyBytes = 1 << 20

// saveBody is the JSON payload of POST /api/{resource}.
type saveBody struct {
	UserID string         `json:"userId"`
	Key    string         `json:"key"`
	Fields map[string]any `json:"fields"`
	Remove []string       `json:"remove"`
}

var errBadRequest = errors.New("bad request")

// parseSaveRequest decodes a JSON save payload for resource.
func parseSaveRequest(w http.ResponseWriter, r *http.Request, resource string) (services.SaveRequest, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return services.SaveRequest{}, fmt.Errorf("%w: reading body: %v", errBadRequest, err)
	}
	// The decoder would silently replace invalid bytes with U+FFFD.
	if !utf8.Valid(raw) {
		return services.SaveRequest{}, fmt.Errorf("%w: body is not valid UTF-8", errBadRequest)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body saveBody
	if err := dec.Decode(&body); err != nil {
		return services.SaveRequest{}, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return services.SaveRequest{}, fmt.Errorf("%w: unexpected data after JSON body", errBadRequest)
	}

	remove := make([]string, 0, len(body.Remove))
	for _, f := range body.Remove {
		if f = strings.TrimSpace(f); f != "" {
			remove = append(remove, f)
		}
	}

	return services.SaveRequest{
		Resource: resource,
		UserID:   requestUserID(r, body.UserID),
		Key:      strings.TrimSpace(body.Key),
		Fields:   body.Fields,
		Remove:   remove,
	}, nil
}

// parseEntryForm decodes the dashboard's single-field entry form.
func parseEntryForm(r *http.Request) (services.SaveRequest, error) {
	if err := r.ParseForm(); err != nil {
		return services.SaveRequest{}, fmt.Errorf("%w: invalid form", errBadRequest)
	}

	field := sanitizeInput(r.PostForm.Get("field"))
	if field == "" {
		return services.SaveRequest{}, fmt.Errorf("%w: field name is required", errBadRequest)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r.PostForm.Get("amount")))
	if err != nil {
		return services.SaveRequest{}, fmt.Errorf("%w: invalid amount", errBadRequest)
	}

	return services.SaveRequest{
		Resource: sanitizeInput(r.PostForm.Get("resource")),
		UserID:   requestUserID(r, r.PostForm.Get("userId")),
		Key:      sanitizeInput(r.PostForm.Get("key")),
		Fields:   map[string]any{field: amount.Round(2).InexactFloat64()},
	}, nil
}
