package tools

// JSON Schemas for tool arguments. Args are validated after coercion
// (alias keys, metric synonyms, timestamp trimming) has been applied.

const listProductsSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 500}
  },
  "additionalProperties": false
}`

const topProductsSchema = `{
  "type": "object",
  "required": ["metric", "startDate", "endDate"],
  "properties": {
    "metric": {"enum": ["sales", "units", "sessions", "conversion_rate"]},
    "startDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "endDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 100}
  },
  "additionalProperties": false
}`

const timeseriesSchema = `{
  "type": "object",
  "required": ["metric", "productIds", "startDate", "endDate"],
  "properties": {
    "metric": {"enum": ["sales", "units", "sessions", "conversion_rate"]},
    "productIds": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string"}
    },
    "startDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "endDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "grain": {"enum": ["day"]}
  },
  "additionalProperties": false
}`

const benchmarkSchema = `{
  "type": "object",
  "required": ["metric", "category", "startDate", "endDate"],
  "properties": {
    "metric": {"enum": ["sales", "units", "sessions", "conversion_rate"]},
    "category": {"type": "string"},
    "startDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "endDate": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
  },
  "additionalProperties": false
}`

const computeChangesSchema = `{
  "type": "object",
  "required": ["points"],
  "properties": {
    "points": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["value"],
        "properties": {
          "date": {"type": "string"},
          "value": {"type": "number"}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
