// internal/qc/schema.go
package qc

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Awign-PM-Prod/securepath-pro-sub002/internal/common/errors"
)

const submissionSchema = `{
	"type": "object",
	"required": ["caseId", "submittedBy", "answers"],
	"properties": {
		"caseId":      {"type": "string", "minLength": 1},
		"submittedBy": {"type": "string", "minLength": 1},
		"answers":     {"type": "object"},
		"evidenceRefs": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		}
	}
}`

const reviewSchema = `{
	"type": "object",
	"required": ["submissionId", "reviewerId", "result", "qualityScore"],
	"properties": {
		"submissionId": {"type": "string", "minLength": 1},
		"reviewerId":   {"type": "string", "minLength": 1},
		"result":       {"type": "string", "enum": ["pass", "reject", "rework"]},
		"qualityScore": {"type": "integer", "minimum": 0, "maximum": 100},
		"reasonCodes": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		},
		"comments": {"type": "string"}
	}
}`

var (
	compiledSubmissionSchema = gojsonschema.NewStringLoader(submissionSchema)
	compiledReviewSchema     = gojsonschema.NewStringLoader(reviewSchema)
)

// ValidateSubmissionPayload checks a raw submission document against the
// submission schema.
func ValidateSubmissionPayload(doc []byte) error {
	return validate(compiledSubmissionSchema, doc)
}

// ValidateReviewPayload checks a raw review document against the review
// schema. Reason code requirements per verdict are enforced by the service,
// not the schema.
func ValidateReviewPayload(doc []byte) error {
	return validate(compiledReviewSchema, doc)
}

func validate(schema gojsonschema.JSONLoader, doc []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.NewReviewValidationError("payload is not valid JSON: " + err.Error())
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.NewReviewValidationError(strings.Join(msgs, "; "))
}
