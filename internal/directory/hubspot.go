package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

const (
	defaultHubSpotBaseURL = "https://api.hubapi.com"
	tagProperty           = "customer_tag"
	batchReadLimit        = 100
)

// HubSpot talks to the HubSpot CRM v3 contacts API.
type HubSpot struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHubSpot(baseURL, token string, client *http.Client) *HubSpot {
	if baseURL == "" {
		baseURL = defaultHubSpotBaseURL
	}
	return &HubSpot{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type hubSpotContact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type hubSpotFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type hubSpotSearchRequest struct {
	FilterGroups []struct {
		Filters []hubSpotFilter `json:"filters"`
	} `json:"filterGroups"`
	Properties []string `json:"properties"`
	Limit      int      `json:"limit"`
}

type hubSpotSearchResponse struct {
	Results []hubSpotContact `json:"results"`
}

type hubSpotObjectID struct {
	ID string `json:"id"`
}

type hubSpotBatchReadRequest struct {
	Properties []string          `json:"properties"`
	Inputs     []hubSpotObjectID `json:"inputs"`
}

func (h *HubSpot) FindByEmail(ctx context.Context, email string) (*ContactRef, error) {
	req := hubSpotSearchRequest{
		Properties: []string{"email", "firstname", "lastname", tagProperty},
		Limit:      1,
	}
	req.FilterGroups = append(req.FilterGroups, struct {
		Filters []hubSpotFilter `json:"filters"`
	}{Filters: []hubSpotFilter{{PropertyName: "email", Operator: "EQ", Value: email}}})

	var resp hubSpotSearchResponse
	if err := h.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	ref := toContactRef(resp.Results[0])
	return &ref, nil
}

// ReadContacts batch-reads contacts, at most batchReadLimit ids per call.
func (h *HubSpot) ReadContacts(ctx context.Context, ids []string) ([]ContactRef, error) {
	out := make([]ContactRef, 0, len(ids))
	for chunk := range slices.Chunk(ids, batchReadLimit) {
		req := hubSpotBatchReadRequest{
			Properties: []string{"email", "firstname", "lastname", tagProperty},
			Inputs:     make([]hubSpotObjectID, 0, len(chunk)),
		}
		for _, id := range chunk {
			req.Inputs = append(req.Inputs, hubSpotObjectID{ID: id})
		}
		var resp hubSpotSearchResponse
		if err := h.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/batch/read", req, &resp); err != nil {
			return nil, err
		}
		for _, c := range resp.Results {
			out = append(out, toContactRef(c))
		}
	}
	return out, nil
}

func (h *HubSpot) Upsert(ctx context.Context, ref *ContactRef, attrs Attributes) (ContactRef, error) {
	props := map[string]string{}
	if attrs.Email != "" {
		props["email"] = attrs.Email
	}
	if attrs.FirstName != "" {
		props["firstname"] = attrs.FirstName
	}
	if attrs.LastName != "" {
		props["lastname"] = attrs.LastName
	}
	if len(attrs.Tags) > 0 {
		props[tagProperty] = strings.Join(attrs.Tags, ",")
	}
	body := map[string]any{"properties": props}

	var out hubSpotContact
	var err error
	if ref != nil && ref.ID != "" {
		err = h.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+ref.ID, body, &out)
	} else {
		err = h.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", body, &out)
	}
	if err != nil {
		return ContactRef{}, err
	}
	return toContactRef(out), nil
}

func (h *HubSpot) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hubspot %s %s failed: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toContactRef(c hubSpotContact) ContactRef {
	ref := ContactRef{
		ID:        c.ID,
		Email:     c.Properties["email"],
		FirstName: c.Properties["firstname"],
		LastName:  c.Properties["lastname"],
	}
	if tags := c.Properties[tagProperty]; tags != "" {
		ref.Tags = MergeTags(nil, strings.Split(tags, ",")...)
	}
	return ref
}
