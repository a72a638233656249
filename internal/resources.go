package internal

import (
	"encoding/json"
	"slices"
	"strings"
)

// IdentifierSet is a normalized list of external (Shopify) product
// identifiers.
type IdentifierSet []string

// NewIdentifierSet trims whitespace and drops empty identifiers. Duplicates
// are kept.
func NewIdentifierSet(ids ...string) IdentifierSet {
	set := IdentifierSet{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		set = append(set, id)
	}
	return set
}

// Sorted returns a lexically sorted copy of the set.
func (s IdentifierSet) Sorted() IdentifierSet {
	sorted := slices.Clone(s)
	slices.Sort(sorted)
	return sorted
}

// ResolutionMethod records which lookup produced a provider identifier.
type ResolutionMethod string

// Lookup strategies, in the order they're attempted.
const (
	ByExternalID ResolutionMethod = "by-external-id"
	ByHandle     ResolutionMethod = "by-handle"
	Unresolved   ResolutionMethod = "unresolved"
)

// ResolvedProduct maps an external identifier to Judge.me's product ID.
// ProviderID is zero when Method is Unresolved.
type ResolvedProduct struct {
	ExternalID string
	ProviderID int64
	Method     ResolutionMethod
}

// ReviewRecord is a review exactly as Judge.me returned it.
type ReviewRecord = json.RawMessage

// ItemResult is the outcome for one identifier in a batch. A non-empty Error
// means the item failed and Reviews should be ignored.
type ItemResult struct {
	ShopifyID        string         `json:"shopifyId"`
	JudgeMeProductID int64          `json:"judgeMeProductId,omitempty"`
	Reviews          []ReviewRecord `json:"reviews,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// MarshalJSON always emits a reviews array for items which didn't fail, so an
// unresolved product serializes as {"shopifyId": ..., "reviews": []}.
func (r ItemResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			ShopifyID        string `json:"shopifyId"`
			JudgeMeProductID int64  `json:"judgeMeProductId,omitempty"`
			Error            string `json:"error"`
		}{r.ShopifyID, r.JudgeMeProductID, r.Error})
	}
	reviews := r.Reviews
	if reviews == nil {
		reviews = []ReviewRecord{}
	}
	return json.Marshal(struct {
		ShopifyID        string         `json:"shopifyId"`
		JudgeMeProductID int64          `json:"judgeMeProductId,omitempty"`
		Reviews          []ReviewRecord `json:"reviews"`
	}{r.ShopifyID, r.JudgeMeProductID, reviews})
}

// batchResource is the envelope returned when more than one identifier was
// requested. Count always equals len(Results).
type batchResource struct {
	Count   int          `json:"count"`
	Results []ItemResult `json:"results"`
}

// faultResource is returned instead of a review payload when the whole
// request failed.
type faultResource struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
