package leadstore

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	sf "github.com/sells-group/outreach-cli/pkg/salesforce"
)

// SalesforceMapping names the CRM objects and fields the store reads and
// writes. Zero values fall back to the org defaults.
type SalesforceMapping struct {
	LeadObject      string // source object, default "Lead"
	PlaceIDField    string // custom field carrying the place id, default "Place_ID__c"
	OutputObject    string // personalization object, default "Outreach_Personalisation__c"
	ExternalIDField string // external-id field on the output object, default "Lead_ID__c"
}

func (m SalesforceMapping) withDefaults() SalesforceMapping {
	if m.LeadObject == "" {
		m.LeadObject = "Lead"
	}
	if m.PlaceIDField == "" {
		m.PlaceIDField = "Place_ID__c"
	}
	if m.OutputObject == "" {
		m.OutputObject = "Outreach_Personalisation__c"
	}
	if m.ExternalIDField == "" {
		m.ExternalIDField = "Lead_ID__c"
	}
	return m
}

// SalesforceStore keeps leads in Salesforce. Upserts go through the
// external-id field, so the write is atomic on the CRM side.
type SalesforceStore struct {
	client  sf.Client
	mapping SalesforceMapping
}

// NewSalesforce creates a SalesforceStore with the given object mapping.
func NewSalesforce(client sf.Client, mapping SalesforceMapping) *SalesforceStore {
	return &SalesforceStore{client: client, mapping: mapping.withDefaults()}
}

func (s *SalesforceStore) ReadAllLeads(ctx context.Context) ([]model.Lead, error) {
	fields := []string{"Id", "Company", "Website", "Phone", "Email", "Street", "Name", s.mapping.PlaceIDField}

	records, err := sf.FetchRecords(ctx, s.client, s.mapping.LeadObject, fields)
	if err != nil {
		return nil, eris.Wrap(err, "leadstore: read salesforce leads")
	}

	leads := make([]model.Lead, 0, len(records))
	for _, rec := range records {
		leads = append(leads, model.Lead{
			ID:        rec.StringField(s.mapping.PlaceIDField),
			Business:  rec.StringField("Company"),
			Website:   rec.StringField("Website"),
			Phone:     rec.StringField("Phone"),
			Email:     rec.StringField("Email"),
			Address:   rec.StringField("Street"),
			OwnerName: rec.StringField("Name"),
		})
	}
	return leads, nil
}

func (s *SalesforceStore) ReadProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	values, err := sf.FetchFieldValues(ctx, s.client, s.mapping.OutputObject, s.mapping.ExternalIDField)
	if err != nil {
		return nil, eris.Wrap(err, "leadstore: read processed salesforce ids")
	}

	ids := make(map[string]struct{}, len(values))
	for _, v := range values {
		ids[v] = struct{}{}
	}
	return ids, nil
}

func (s *SalesforceStore) Upsert(ctx context.Context, p model.Personalization) error {
	fields := map[string]any{
		"Name":          p.Name,
		"Owner_Name__c": p.Owner,
		"DM_Opener__c":  p.DMOpener,
	}
	if p.CallScript != "" {
		fields["Call_Script__c"] = p.CallScript
	}
	if p.EmailOpener != "" {
		fields["Email_Opener__c"] = p.EmailOpener
	}
	if p.Notes != "" {
		fields["Notes__c"] = p.Notes
	}

	if _, err := sf.UpsertRecord(ctx, s.client, s.mapping.OutputObject, s.mapping.ExternalIDField, p.LeadID, fields); err != nil {
		return eris.Wrapf(err, "leadstore: upsert %s", p.LeadID)
	}
	return nil
}
