package notion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDBURL = "https://www.notion.so/team/Tasks-0123456789abcdef0123456789abcdef?v=fedcba9876543210fedcba9876543210"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Token:     "secret",
		BaseURL:   srv.URL,
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestClient_SendsAuthAndVersionHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, defaultAPIVersion, r.Header.Get("Notion-Version"))
		assert.Equal(t, "/v1/pages/abc", r.URL.Path)
		w.Write([]byte(`{"id":"abc","properties":{}}`))
	})

	page, err := c.GetPage(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", page.ID)
}

func TestClient_RetriesRateLimited(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"object":"error","status":429,"code":"rate_limited","message":"slow down"}`))
			return
		}
		w.Write([]byte(`{"id":"p1","properties":{}}`))
	})

	page, err := c.GetPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", page.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotReplayCreateOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"object":"error","status":502,"code":"bad_gateway","message":"upstream"}`))
	})

	_, err := c.InsertIntoDatabase(context.Background(), testDBURL, map[string]PropertyValue{}, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "page creation must not be replayed")
}

func TestClient_RetriesCreateWhenRateLimited(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"object":"error","status":429,"code":"rate_limited","message":"slow down"}`))
			return
		}
		w.Write([]byte(`{"id":"new","properties":{}}`))
	})

	page, err := c.InsertIntoDatabase(context.Background(), testDBURL, map[string]PropertyValue{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", page.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_RetriesQueryOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"results":[],"has_more":false}`))
	})

	_, err := c.QueryDatabase(context.Background(), testDBURL, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_ReturnsAPIError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"Could not find page"}`))
	})

	_, err := c.GetPage(context.Background(), "missing")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "object_not_found", apiErr.Code)
	assert.Equal(t, "Could not find page", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestGetPropertiesForInteraction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/databases/0123456789abcdef0123456789abcdef", r.URL.Path)
		w.Write([]byte(`{
			"id": "0123456789abcdef0123456789abcdef",
			"properties": {
				"Status": {"id": "s", "name": "Status", "type": "status", "status": {"options": [{"name": "Todo"}, {"name": "Done"}]}},
				"Created": {"id": "c", "name": "Created", "type": "created_time", "created_time": {}},
				"Owner": {"id": "o", "name": "Owner", "type": "people", "people": {}},
				"Name": {"id": "title", "name": "Name", "type": "title", "title": {}},
				"Score": {"id": "f", "name": "Score", "type": "formula", "formula": {}},
				"Tags": {"id": "t", "name": "Tags", "type": "multi_select", "multi_select": {"options": []}}
			}
		}`))
	})

	props, err := c.GetPropertiesForInteraction(context.Background(), testDBURL)
	require.NoError(t, err)

	var names []string
	for _, p := range props {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Name", "Status", "Owner", "Tags"}, names)
	assert.Equal(t, []string{"Todo", "Done"}, props[1].Options)
	assert.True(t, props[3].Enumerated())
	assert.Empty(t, props[3].Options)
}

func TestQueryDatabase_FollowsCursor(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Nil(t, body["start_cursor"])
			w.Write([]byte(`{"results":[{"id":"a"},{"id":"b"}],"has_more":true,"next_cursor":"c2"}`))
			return
		}
		assert.Equal(t, "c2", body["start_cursor"])
		w.Write([]byte(`{"results":[{"id":"c"}],"has_more":false,"next_cursor":null}`))
	})

	n, err := c.CountPages(context.Background(), testDBURL)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSearchInDatabase_Filters(t *testing.T) {
	tests := []struct {
		name     string
		propType string
		term     string
		want     map[string]any
	}{
		{"title contains", TypeTitle, "bug", map[string]any{"contains": "bug"}},
		{"status equals", TypeStatus, "Done", map[string]any{"equals": "Done"}},
		{"select equals", TypeSelect, "High", map[string]any{"equals": "High"}},
		{"number equals", TypeNumber, "3,5", map[string]any{"equals": 3.5}},
		{"date equals", TypeDate, "15/01/2024", map[string]any{"equals": "2024-01-15"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Filter map[string]any `json:"filter"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "Prop", body.Filter["property"])
				assert.Equal(t, tt.want, body.Filter[tt.propType])
				w.Write([]byte(`{"results":[{"id":"x"}]}`))
			})

			pages, err := c.SearchInDatabase(context.Background(), testDBURL, tt.term, "Prop", tt.propType)
			require.NoError(t, err)
			assert.Len(t, pages, 1)
		})
	}
}

func TestSearchInDatabase_UnknownPersonSkipsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users" {
			t.Errorf("unexpected call to %s", r.URL.Path)
		}
		w.Write([]byte(`{"results":[{"id":"u1","name":"Ana Souza","type":"person","person":{"email":"ana@example.com"}}]}`))
	})

	pages, err := c.SearchInDatabase(context.Background(), testDBURL, "Bruno", "Owner", TypePeople)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestMatchUser(t *testing.T) {
	users := []User{
		{ID: "u1", Name: "Ana Souza", Person: &PersonDetail{Email: "ana@example.com"}},
		{ID: "u2", Name: "Bruno Lima", Person: &PersonDetail{Email: "Bruno@Example.com"}},
	}

	assert.Equal(t, "u1", MatchUser(users, "souza"))
	assert.Equal(t, "u2", MatchUser(users, "bruno@example.com"))
	assert.Equal(t, "", MatchUser(users, "example"))
	assert.Equal(t, "", MatchUser(users, "  "))
}

func TestBuildPageProperties(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"u1","name":"Ana Souza"}]}`))
	})

	schema := []PropertySchema{
		{Name: "Name", Type: TypeTitle},
		{Name: "Status", Type: TypeStatus},
		{Name: "Tags", Type: TypeMultiSelect},
		{Name: "Owner", Type: TypePeople},
		{Name: "Notes", Type: TypeRichText},
		{Name: "Empty", Type: TypeRichText},
	}
	values := map[string]string{
		"Status": "Doing",
		"Tags":   "api, bot ,",
		"Owner":  "ana, nobody",
		"Notes":  "hello",
		"Empty":  "  ",
	}

	props, err := c.BuildPageProperties(context.Background(), schema, "Fix bug", values)
	require.NoError(t, err)

	assert.Equal(t, "Fix bug", props["Name"].Title[0].Text.Content)
	assert.Equal(t, "Doing", props["Status"].Status.Name)
	assert.Equal(t, []SelectOption{{Name: "api"}, {Name: "bot"}}, props["Tags"].MultiSelect)
	require.Len(t, props["Owner"].People, 1)
	assert.Equal(t, "u1", props["Owner"].People[0].ID)
	assert.Equal(t, "hello", props["Notes"].RichText[0].Text.Content)
	assert.NotContains(t, props, "Empty")

	raw, err := json.Marshal(props["Status"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":{"name":"Doing"}}`, string(raw))
}

func TestValueFor_RejectsBadInput(t *testing.T) {
	_, err := ValueFor(TypeNumber, "abc")
	assert.Error(t, err)
	_, err = ValueFor(TypeDate, "2024/13/45")
	assert.Error(t, err)
	_, err = ValueFor(TypeFormula, "x")
	assert.Error(t, err)
}

func TestDeletePage_Archives(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"archived":true}`, string(body))
		w.Write([]byte(`{"id":"p1"}`))
	})

	require.NoError(t, c.DeletePage(context.Background(), "p1"))
}

func TestAppendBlocks_Batches(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/blocks/p1/children", r.URL.Path)
		w.Write([]byte(`{}`))
	})

	blocks := make([]Block, 150)
	for i := range blocks {
		blocks[i] = ParagraphBlock("line")
	}

	require.NoError(t, c.AppendBlocks(context.Background(), "p1", blocks))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
