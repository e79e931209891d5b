package httpapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Request-body schemas for the mutation routes. Validation failures never
// reach the queue; a malformed body is the caller's bug, not a retryable
// ledger condition.

const giveItemsSchema = `{
  "type": "object",
  "required": ["address", "itemIds"],
  "additionalProperties": false,
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "itemIds": {"type": "array", "minItems": 1, "items": {"type": "integer", "minimum": 0}}
  }
}`

const removeItemSchema = `{
  "type": "object",
  "required": ["address", "itemId"],
  "additionalProperties": false,
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "itemId": {"type": "integer", "minimum": 0}
  }
}`

const transferItemSchema = `{
  "type": "object",
  "required": ["from", "to", "itemId"],
  "additionalProperties": false,
  "properties": {
    "from": {"type": "string", "minLength": 1},
    "to": {"type": "string", "minLength": 1},
    "itemId": {"type": "integer", "minimum": 0}
  }
}`

const putOfferSchema = `{
  "type": "object",
  "required": ["address", "itemId", "price"],
  "additionalProperties": false,
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "itemId": {"type": "integer", "minimum": 0},
    "price": {"type": "integer", "minimum": 1}
  }
}`

const offerActionSchema = `{
  "type": "object",
  "required": ["address", "offerId"],
  "additionalProperties": false,
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "offerId": {"type": "string", "pattern": "^offer[0-9]+$"}
  }
}`

func compileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("request schema: %v", err))
	}
	return schema
}

var (
	validateGiveItems    = compileSchema(giveItemsSchema)
	validateRemoveItem   = compileSchema(removeItemSchema)
	validateTransferItem = compileSchema(transferItemSchema)
	validatePutOffer     = compileSchema(putOfferSchema)
	validateOfferAction  = compileSchema(offerActionSchema)
)

// validateBody checks raw JSON against a compiled schema and returns a
// caller-readable description of every violation.
func validateBody(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
