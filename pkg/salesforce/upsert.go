package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// UpsertRecord performs an external-id upsert after validating the configured
// object and field names. The external id value is folded into the record
// under the external id field, as go-salesforce expects.
func UpsertRecord(ctx context.Context, c Client, object, externalIDField, externalID string, fields map[string]any) (string, error) {
	if externalID == "" {
		return "", eris.New("sf: external id is required")
	}
	if len(fields) == 0 {
		return "", eris.New("sf: no fields to upsert")
	}
	if err := ValidateIdentifier(object); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(externalIDField); err != nil {
		return "", err
	}

	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record[externalIDField] = externalID

	id, err := c.UpsertOne(ctx, object, externalIDField, record)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: upsert %s %s", object, externalID))
	}
	return id, nil
}
