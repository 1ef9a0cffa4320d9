package automation

import (
	"errors"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const resultSchemaJSON = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "tasksCreated": {"type": ["integer", "null"]},
    "boardId": {"type": ["string", "integer", "null"]},
    "timestamp": {"type": ["string", "null"]},
    "error": {"type": ["string", "null"]},
    "tasks": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "priority": {"type": ["string", "null"]},
          "hours": {"type": ["number", "null"]},
          "assignee": {"type": ["string", "null"]},
          "budget": {"type": ["number", "null"]},
          "province": {"type": ["string", "null"]},
          "timeframe": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var resultSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultSchemaJSON))
	if err != nil {
		panic("automation: bad result schema: " + err.Error())
	}
	return s
}()

// validateResult checks a raw response body against the result schema.
func validateResult(body []byte) error {
	res, err := resultSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
