package main

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("public/docs/v1/openapi.yml")
	require.NoError(t, err)
	return doc
}

func TestOpenAPIDocumentIsValid(t *testing.T) {
	doc := loadAPIDoc(t)
	require.NoError(t, doc.Validate(context.Background()))
}

func TestOpenAPIDocumentCoversRoutes(t *testing.T) {
	doc := loadAPIDoc(t)

	// Keep the published document in step with the installed routes.
	expected := map[string]string{
		"/api/v1/token-status":                     "GET",
		"/api/v1/refresh-token":                    "POST",
		"/api/v1/marketplace/connect":              "GET",
		"/api/v1/marketplace/callback":             "GET",
		"/api/v1/sync/run":                         "POST",
		"/api/v1/sync/item/{externalId}":           "POST",
		"/api/v1/sync/jobs":                        "GET",
		"/api/v1/sync/jobs/{id}":                   "GET",
		"/api/v1/sync/state":                       "GET",
		"/webhooks/payment/{secretToken}":          "POST",
		"/api/v1/admin/webhook-events/exhausted":   "GET",
		"/api/v1/admin/webhook-events/{id}/replay": "POST",
	}

	for path, method := range expected {
		item := doc.Paths.Value(path)
		require.NotNilf(t, item, "path %s missing from the API document", path)
		assert.NotNilf(t, item.GetOperation(method), "operation %s %s missing", method, path)
	}
}

func TestOpenAPISyncJobStatusesMatchModel(t *testing.T) {
	doc := loadAPIDoc(t)

	schema := doc.Components.Schemas["SyncJob"]
	require.NotNil(t, schema)
	statuses := schema.Value.Properties["status"].Value.Enum

	var got []string
	for _, s := range statuses {
		got = append(got, s.(string))
	}
	assert.ElementsMatch(t, []string{"queued", "running", "success", "failed", "partial"}, got)
}
