package sync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapstream-io/tap-sailthru/pkg/catalog"
	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/config"
	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
	"github.com/tapstream-io/tap-sailthru/pkg/state"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.APIKey = "k"
	cfg.APISecret = "s"
	cfg.StartDate = "2021-01-01T00:00:00Z"
	cfg.Retry = config.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 2.0}
	cfg.JobPollInterval = time.Millisecond
	cfg.JobPollTimeout = time.Second
	return cfg
}

func testEngine(t *testing.T, server *httptest.Server, st *state.State) (*Engine, *bytes.Buffer) {
	t.Helper()
	cfg := testConfig()
	client := clients.NewSailthruClient(cfg)
	client.SetBaseURL(server.URL)

	var out bytes.Buffer
	return NewEngine(cfg, client, st, &out), &out
}

func parseMessages(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	for _, line := range strings.Split(strings.TrimRight(out.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var msg map[string]interface{}
		require.NoError(t, jsonpool.Unmarshal([]byte(line), &msg), line)
		msgs = append(msgs, msg)
	}
	return msgs
}

func entryFor(name string) catalog.Entry {
	return catalog.Entry{Stream: name, TapStreamID: name}
}

func TestSyncBlastsEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blast", r.URL.Path)
		if strings.Contains(r.URL.Query().Get("json"), "sent") {
			fmt.Fprint(w, `{"blasts":[
				{"blast_id":10,"name":"feb","modify_time":"Wed, 03 Feb 2021 16:59:09 -0500"},
				{"blast_id":11,"name":"mar","modify_time":"Mon, 01 Mar 2021 00:00:00 -0000"}
			]}`)
			return
		}
		fmt.Fprint(w, `{"blasts":[]}`)
	}))
	defer server.Close()

	engine, out := testEngine(t, server, state.New())
	cat := &catalog.Catalog{Streams: []catalog.Entry{entryFor("blasts")}}
	require.NoError(t, engine.Run(context.Background(), cat))

	msgs := parseMessages(t, out)
	require.Len(t, msgs, 4)

	assert.Equal(t, "SCHEMA", msgs[0]["type"])
	assert.Equal(t, "blasts", msgs[0]["stream"])
	assert.Equal(t, []interface{}{"blast_id"}, msgs[0]["key_properties"])
	assert.Equal(t, []interface{}{"modify_time"}, msgs[0]["bookmark_properties"])

	assert.Equal(t, "RECORD", msgs[1]["type"])
	record := msgs[1]["record"].(map[string]interface{})
	assert.Equal(t, "2021-02-03T21:59:09Z", record["modify_time"])
	assert.Equal(t, "sent", record["status"])
	assert.NotEmpty(t, msgs[1]["time_extracted"])

	assert.Equal(t, "RECORD", msgs[2]["type"])

	assert.Equal(t, "STATE", msgs[3]["type"])
	value := msgs[3]["value"].(map[string]interface{})
	bookmarks := value["bookmarks"].(map[string]interface{})
	blasts := bookmarks["blasts"].(map[string]interface{})
	assert.Equal(t, "2021-03-01T00:00:00Z", blasts["modify_time"])
}

func TestSyncBookmarkNeverRegresses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"blasts":[]}`)
	}))
	defer server.Close()

	st := state.New()
	st.SetBookmark("blasts", "modify_time", "2022-06-01T00:00:00Z")

	engine, out := testEngine(t, server, st)
	cat := &catalog.Catalog{Streams: []catalog.Entry{entryFor("blasts")}}
	require.NoError(t, engine.Run(context.Background(), cat))

	msgs := parseMessages(t, out)
	last := msgs[len(msgs)-1]
	require.Equal(t, "STATE", last["type"])

	bookmarks := last["value"].(map[string]interface{})["bookmarks"].(map[string]interface{})
	blasts := bookmarks["blasts"].(map[string]interface{})
	assert.Equal(t, "2022-06-01T00:00:00Z", blasts["modify_time"])
}

func TestSyncContinuesPastFailingStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list":
			// Record missing its list_id key property.
			fmt.Fprint(w, `{"lists":[{"name":"broken"}]}`)
		case "/ad/plan":
			fmt.Fprint(w, `{"ad_plans":[{"plan_id":"p1"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	engine, out := testEngine(t, server, state.New())
	cat := &catalog.Catalog{Streams: []catalog.Entry{
		entryFor("lists"),
		entryFor("ad_targeter_plans"),
	}}

	err := engine.Run(context.Background(), cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lists")
	assert.Contains(t, err.Error(), "key property")
	assert.NotContains(t, err.Error(), "ad_targeter_plans")

	var emitted []string
	for _, msg := range parseMessages(t, out) {
		if msg["type"] == "RECORD" {
			emitted = append(emitted, msg["stream"].(string))
		}
	}
	assert.Equal(t, []string{"ad_targeter_plans"}, emitted)
}

func TestSyncRejectsInvalidRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"blasts":[{"blast_id":"not-a-number","modify_time":"Mon, 01 Mar 2021 00:00:00 -0000"}]}`)
	}))
	defer server.Close()

	engine, _ := testEngine(t, server, state.New())
	cat := &catalog.Catalog{Streams: []catalog.Entry{entryFor("blasts")}}

	err := engine.Run(context.Background(), cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blasts")
}

func TestSyncDropsDeselectedFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"lists":[{"list_id":"1","name":"newsletter","vars":{"secret":"x"}}]}`)
	}))
	defer server.Close()

	entry := entryFor("lists")
	entry.Metadata = []catalog.Metadata{
		{Breadcrumb: []string{}, Metadata: map[string]interface{}{"selected": true}},
		{Breadcrumb: []string{"properties", "vars"}, Metadata: map[string]interface{}{"selected": false}},
	}

	engine, out := testEngine(t, server, state.New())
	require.NoError(t, engine.Run(context.Background(), &catalog.Catalog{Streams: []catalog.Entry{entry}}))

	msgs := parseMessages(t, out)
	record := msgs[1]["record"].(map[string]interface{})
	assert.Equal(t, "newsletter", record["name"])
	assert.NotContains(t, record, "vars")
}

func TestSyncUnknownStreamInCatalog(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	engine, _ := testEngine(t, server, state.New())
	cat := &catalog.Catalog{Streams: []catalog.Entry{entryFor("nope")}}

	err := engine.Run(context.Background(), cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestDiscoverBuildsCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/settings", r.URL.Path)
		fmt.Fprint(w, `{"domain":"example.com"}`)
	}))
	defer server.Close()

	cfg := testConfig()
	client := clients.NewSailthruClient(cfg)
	client.SetBaseURL(server.URL)

	cat, err := Discover(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, cat.Streams, 8)

	byName := map[string]catalog.Entry{}
	for _, e := range cat.Streams {
		byName[e.TapStreamID] = e
		assert.True(t, e.IsSelected(), e.TapStreamID)
		assert.NotEmpty(t, e.Schema, e.TapStreamID)
		assert.NotEmpty(t, e.Metadata, e.TapStreamID)
	}

	blasts := byName["blasts"]
	assert.Equal(t, "INCREMENTAL", blasts.ReplicationMethod)
	assert.Equal(t, "modify_time", blasts.ReplicationKey)
	assert.Equal(t, []string{"blast_id"}, blasts.KeyProperties)

	lists := byName["lists"]
	assert.Equal(t, "FULL_TABLE", lists.ReplicationMethod)
	assert.Empty(t, lists.ReplicationKey)

	// Key properties carry automatic inclusion in the field metadata.
	var found bool
	for _, m := range blasts.Metadata {
		if len(m.Breadcrumb) == 2 && m.Breadcrumb[1] == "blast_id" {
			found = true
			assert.Equal(t, "automatic", m.Metadata["inclusion"])
		}
	}
	assert.True(t, found)

	out, err := CatalogJSON(cat)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"tap_stream_id"`)
}

func TestDiscoverFailsOnBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":2,"errormsg":"Invalid API key"}`)
	}))
	defer server.Close()

	cfg := testConfig()
	client := clients.NewSailthruClient(cfg)
	client.SetBaseURL(server.URL)

	_, err := Discover(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential")
}
