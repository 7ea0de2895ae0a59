package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeTags(t *testing.T) {
	assert.Equal(t, []string{"vip", "lead-pmp", "auto-captured"}, MergeTags([]string{"vip", " lead-pmp"}, "lead-pmp", "auto-captured", ""))
	assert.Equal(t, "lead-pmi-cp", LeadTag("PMI-CP"))
}

func TestSyncLead_CreatesWhenMissing(t *testing.T) {
	var created map[string]map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts/search":
			_, _ = w.Write([]byte(`{"results":[]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"id":"501","properties":{}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	h := NewHubSpot(srv.URL, "token", srv.Client())
	id, err := SyncLead(context.Background(), h, Attributes{
		Email: "jane@acme.com", FirstName: "Jane", LastName: "Doe",
		Tags: []string{LeadTag("CAPM"), TagAutoCaptured},
	})
	require.NoError(t, err)

	assert.Equal(t, "501", id)
	assert.Equal(t, "jane@acme.com", created["properties"]["email"])
	assert.Equal(t, "lead-capm,auto-captured", created["properties"]["customer_tag"])
}

func TestSyncLead_MergesTagsOnExisting(t *testing.T) {
	var patched map[string]map[string]string
	var patchPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"results":[{"id":"77","properties":{"firstname":"Jane","customer_tag":"vip,lead-capm"}}]}`))
		case http.MethodPatch:
			patchPath = r.URL.Path
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
			_, _ = w.Write([]byte(`{"id":"77","properties":{}}`))
		}
	}))
	defer srv.Close()

	h := NewHubSpot(srv.URL, "token", srv.Client())
	id, err := SyncLead(context.Background(), h, Attributes{
		Email: "jane@acme.com", FirstName: "Janet",
		Tags: []string{LeadTag("CAPM"), TagAutoCaptured},
	})
	require.NoError(t, err)

	assert.Equal(t, "77", id)
	assert.Equal(t, "/crm/v3/objects/contacts/77", patchPath)
	assert.Equal(t, "vip,lead-capm,auto-captured", patched["properties"]["customer_tag"])
	_, hasName := patched["properties"]["firstname"]
	assert.False(t, hasName)
}

func TestHubSpot_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHubSpot(srv.URL, "token", srv.Client()).FindByEmail(context.Background(), "x@y.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNoop(t *testing.T) {
	ref, err := Noop{}.FindByEmail(context.Background(), "x@y.com")
	assert.NoError(t, err)
	assert.Nil(t, ref)
}

func TestHubSpot_ReadContactsBatches(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/crm/v3/objects/contacts/batch/read", r.URL.Path)
		var req hubSpotBatchReadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Properties, "email")
		batches = append(batches, len(req.Inputs))

		resp := hubSpotSearchResponse{}
		for _, in := range req.Inputs {
			resp.Results = append(resp.Results, hubSpotContact{
				ID:         in.ID,
				Properties: map[string]string{"email": in.ID + "@acme.com", "firstname": "F" + in.ID},
			})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	ids := make([]string, 0, 230)
	for i := range 230 {
		ids = append(ids, strconv.Itoa(i))
	}
	contacts, err := NewHubSpot(srv.URL, "token", srv.Client()).ReadContacts(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 30}, batches)
	require.Len(t, contacts, 230)
	assert.Equal(t, "7@acme.com", contacts[7].Email)
	assert.Equal(t, "F7", contacts[7].FirstName)
}

func TestCanRead(t *testing.T) {
	assert.False(t, CanRead(nil))
	assert.False(t, CanRead(Noop{}))
	assert.True(t, CanRead(NewHubSpot("", "token", http.DefaultClient)))

	contacts, err := Noop{}.ReadContacts(context.Background(), []string{"1"})
	assert.NoError(t, err)
	assert.Empty(t, contacts)
}
