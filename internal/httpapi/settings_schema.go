package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

const settingsPayloadSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "emails": {
      "type": "array",
      "maxItems": 100,
      "items": {"type": "string", "maxLength": 320}
    },
    "webhooks": {
      "type": "array",
      "maxItems": 100,
      "items": {"type": "string", "maxLength": 2048}
    },
    "message_template": {
      "type": "string",
      "maxLength": 1000
    }
  }
}`

var errSettingsPayloadInvalid = errors.New("httpapi: settings payload does not match schema")

var settingsSchema = mustCompileSettingsSchema()

type settingsRequest struct {
	Emails          []string `json:"emails"`
	Webhooks        []string `json:"webhooks"`
	MessageTemplate string   `json:"message_template"`
}

// settingsValidationError carries the schema violations for the response body.
type settingsValidationError struct {
	Details []string
}

func (validationError *settingsValidationError) Error() string {
	return fmt.Sprintf("%s: %v", errSettingsPayloadInvalid.Error(), validationError.Details)
}

func (validationError *settingsValidationError) Unwrap() error {
	return errSettingsPayloadInvalid
}

func mustCompileSettingsSchema() *gojsonschema.Schema {
	schema, schemaErr := gojsonschema.NewSchema(gojsonschema.NewStringLoader(settingsPayloadSchema))
	if schemaErr != nil {
		panic(fmt.Sprintf("httpapi: compile settings schema: %v", schemaErr))
	}
	return schema
}

// decodeSettingsPayload validates the raw body against the settings schema and decodes it.
// Missing lists decode as empty.
func decodeSettingsPayload(body []byte) (model.SettingsInput, error) {
	result, validateErr := settingsSchema.Validate(gojsonschema.NewBytesLoader(body))
	if validateErr != nil {
		return model.SettingsInput{}, &settingsValidationError{Details: []string{validateErr.Error()}}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}
		return model.SettingsInput{}, &settingsValidationError{Details: details}
	}

	var request settingsRequest
	if decodeErr := json.Unmarshal(body, &request); decodeErr != nil {
		return model.SettingsInput{}, &settingsValidationError{Details: []string{decodeErr.Error()}}
	}
	return model.SettingsInput{
		Emails:          request.Emails,
		Webhooks:        request.Webhooks,
		MessageTemplate: request.MessageTemplate,
	}, nil
}
