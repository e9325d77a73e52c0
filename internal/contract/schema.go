package contract

// Schema names accepted by Validate.
const (
	SchemaUpload     = "upload.json"
	SchemaSubmission = "submission.json"
	SchemaList       = "list.json"
	SchemaError      = "error.json"
)

func nullableString() map[string]any {
	return map[string]any{"type": []any{"string", "null"}}
}

func qualityProp() map[string]any {
	return map[string]any{"enum": []any{"good", "fair", "poor", nil}}
}

func statusProp() map[string]any {
	return map[string]any{"type": "string", "enum": []any{"pending", "processed", "failed"}}
}

func timestampProp() map[string]any {
	return map[string]any{"type": "string", "format": "date-time"}
}

// successShape ties extractionSuccess to the presence of text and quality.
func successShape() []any {
	return []any{
		map[string]any{
			"if":   map[string]any{"properties": map[string]any{"extractionSuccess": map[string]any{"const": true}}},
			"then": map[string]any{"properties": map[string]any{"extractedText": map[string]any{"type": "string", "minLength": 1}, "quality": map[string]any{"type": "string"}, "status": map[string]any{"const": "processed"}}},
			"else": map[string]any{"properties": map[string]any{"extractedText": map[string]any{"type": "null"}, "quality": map[string]any{"type": "null"}}},
		},
	}
}

func submissionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":                map[string]any{"type": "string", "format": "uuid"},
			"extractedText":     nullableString(),
			"extractionSuccess": map[string]any{"type": "boolean"},
			"quality":           qualityProp(),
			"thumbnailUrl":      nullableString(),
			"status":            statusProp(),
			"createdAt":         timestampProp(),
			"approach":          map[string]any{"type": "string"},
		},
		"required": []any{"id", "extractedText", "extractionSuccess", "quality", "thumbnailUrl", "status", "createdAt"},
		"allOf":    successShape(),
	}
}

func uploadSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":                map[string]any{"type": "string", "format": "uuid"},
			"status":            statusProp(),
			"extractedText":     nullableString(),
			"extractionSuccess": map[string]any{"type": "boolean"},
			"quality":           qualityProp(),
			"processedAt":       timestampProp(),
			"thumbnailUrl":      map[string]any{"type": "string"},
			"approach":          map[string]any{"type": "string"},
			"message":           map[string]any{"type": "string"},
		},
		"required": []any{"id", "status", "extractedText", "extractionSuccess", "quality", "processedAt"},
		"allOf":    successShape(),
	}
}

func listSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"submissions": map[string]any{"type": "array", "items": submissionSchema()},
			"page":        map[string]any{"type": "integer", "minimum": 1},
			"limit":       map[string]any{"type": "integer", "minimum": 1},
			"total":       map[string]any{"type": "integer", "minimum": 0},
			"totalPages":  map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []any{"submissions", "page", "limit", "total", "totalPages"},
	}
}

func errorSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"error": map[string]any{"type": "string", "minLength": 1}},
		"required":             []any{"error"},
		"additionalProperties": false,
	}
}

func schemas() map[string]map[string]any {
	return map[string]map[string]any{
		SchemaUpload:     uploadSchema(),
		SchemaSubmission: submissionSchema(),
		SchemaList:       listSchema(),
		SchemaError:      errorSchema(),
	}
}
