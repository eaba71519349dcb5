package domains

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"signup-api/internal/signup/models"
)

// DefaultOrgName is used when the record notes do not name an organisation.
const DefaultOrgName = "Local Authority"

const localAuthorityType = "local_authority"

// maxSourceBytes bounds how much of the upstream body is read.
const maxSourceBytes = 8 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type sourceRecord struct {
	DomainPattern      string `json:"domain_pattern"`
	OrganisationTypeID string `json:"organisation_type_id"`
	Notes              string `json:"notes"`
}

var orgSuffix = regexp.MustCompile(`\b(?:Combined Authority|Council|Authority|Borough|Corporation)\b`)

func fetchSource(ctx context.Context, client HTTPDoer, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build domain source request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch domain source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch domain source: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("read domain source: %w", err)
	}
	return body, nil
}

// parseSource turns the upstream JSON array into the allowlist. Anything other
// than an array rejects the whole payload, as does an array with no usable
// local authority records.
func parseSource(body []byte) ([]models.DomainInfo, error) {
	var records []sourceRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse domain source: %w", err)
	}
	if records == nil {
		return nil, fmt.Errorf("parse domain source: expected a JSON array")
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]models.DomainInfo, 0, len(records))
	for _, rec := range records {
		domain := strings.ToLower(strings.TrimSpace(rec.DomainPattern))
		if domain == "" || rec.OrganisationTypeID != localAuthorityType {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, models.DomainInfo{Domain: domain, OrgName: orgName(rec.Notes)})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("parse domain source: no local authority domains in %d records", len(records))
	}
	return out, nil
}

// orgName extracts the organisation name from free-text notes such as
// "Email domain for Leeds City Council" or "Primary: Greater Manchester
// Combined Authority (staff)".
func orgName(notes string) string {
	text := strings.TrimSpace(notes)
	if i := strings.LastIndex(text, " for "); i >= 0 {
		text = text[i+len(" for "):]
	} else if i := strings.Index(text, ": "); i >= 0 {
		text = text[i+len(": "):]
	}
	if i := strings.IndexAny(text, "(,;"); i >= 0 {
		text = text[:i]
	}

	matches := orgSuffix.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return DefaultOrgName
	}
	name := strings.Join(strings.Fields(text[:matches[len(matches)-1][1]]), " ")
	if !strings.Contains(name, " ") {
		return DefaultOrgName
	}
	return name
}
