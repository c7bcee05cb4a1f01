package salesforce

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is a raw Salesforce record keyed by field API name.
type Record map[string]any

// StringField returns the named field as a string.
// Absent, nil, and non-string values all read as "".
func (r Record) StringField(name string) string {
	v, ok := r[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

var identifierRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateIdentifier rejects object and field names that are not plain
// Salesforce API identifiers. SOQL here is assembled from configured names,
// so they must never carry quoting or whitespace.
func ValidateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return eris.New(fmt.Sprintf("sf: invalid identifier %q", name))
	}
	return nil
}

// FetchRecords queries every record of the given object, selecting the named
// fields. Object and field names are validated before SOQL assembly.
func FetchRecords(ctx context.Context, c Client, object string, fields []string) ([]Record, error) {
	if err := ValidateIdentifier(object); err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := ValidateIdentifier(f); err != nil {
			return nil, err
		}
	}

	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(fields, ", "), object)

	var records []Record
	if err := c.Query(ctx, soql, &records); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: fetch %s records", object))
	}
	return records, nil
}

// FetchFieldValues queries a single field across the object and returns the
// non-empty values in query order.
func FetchFieldValues(ctx context.Context, c Client, object, field string) ([]string, error) {
	records, err := FetchRecords(ctx, c, object, []string{field})
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(records))
	for _, r := range records {
		if v := r.StringField(field); v != "" {
			values = append(values, v)
		}
	}
	return values, nil
}
