package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Decoder: turns raw frames into validated Inbound events
type Decoder struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

func NewDecoder() *Decoder {
	return &Decoder{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sanitizer: bluemonday.StrictPolicy(), // removes all HTML/scripts
	}
}

// Decode: parses the envelope, checks the event type, sanitizes free text
// and validates required fields for the event's payload schema
func (d *Decoder) Decode(msg []byte) (*Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("%w: unmarshal envelope: %v", ErrInvalidPayload, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}

	r, ok := rules[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Type)
	}

	if len(bytes.TrimSpace(env.Payload)) == 0 {
		return nil, fmt.Errorf("%w: %s: missing payload", ErrInvalidPayload, env.Type)
	}
	var data map[string]any
	if err := json.Unmarshal(env.Payload, &data); err != nil || data == nil {
		return nil, fmt.Errorf("%w: %s: payload must be an object", ErrInvalidPayload, env.Type)
	}

	if r.sanitize {
		data = d.sanitizeMap(data)
	}

	schema := r.schema()
	if err := mapToStruct(data, schema); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}
	if err := d.validate.Struct(schema); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, formatValidationErrors(validationErrors))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Type, err)
	}

	in := &Inbound{Type: env.Type, Data: data}
	switch p := schema.(type) {
	case *JoinPayload:
		in.ProjectID = p.ProjectID
		in.Join = p
	case *LeavePayload:
		in.ProjectID = p.ProjectID
		in.Leave = p
	case *CanvasUpdatePayload:
		in.ProjectID = p.ProjectID
		in.Update = p
	case *ChatPayload:
		in.ProjectID = p.ProjectID
	case *ProjectPayload:
		in.ProjectID = p.ProjectID
	}
	return in, nil
}

// mapToStruct: converts a map to a typed struct using JSON marshaling
func mapToStruct(data map[string]any, target any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

// sanitizeMap recursively sanitizes all string values in a map
func (d *Decoder) sanitizeMap(data map[string]any) map[string]any {
	result := make(map[string]any, len(data))

	for key, value := range data {
		result[key] = d.sanitizeValue(value)
	}

	return result
}

func (d *Decoder) sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		// markup is stripped; the remaining text goes out as plain text,
		// not HTML-escaped
		return html.UnescapeString(d.sanitizer.Sanitize(v))
	case map[string]any:
		return d.sanitizeMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = d.sanitizeValue(item)
		}
		return result
	default:
		return value
	}
}

// formatValidationErrors reports the first failing field
func formatValidationErrors(errs validator.ValidationErrors) error {
	if len(errs) == 0 {
		return errors.New("validation failed")
	}
	return fmt.Errorf("validation failed: %s", formatSingleError(errs[0]))
}

func formatSingleError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("'%s' is required", field)
	case "min", "max":
		return fmt.Sprintf("'%s' value out of allowed range", field)
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}
