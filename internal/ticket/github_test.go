package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestGitHub(t *testing.T, handler http.HandlerFunc) *GitHubClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewGitHubClient("mossland", "sandbox", "test-token")
	c.baseURL = srv.URL
	c.http = srv.Client()
	return c
}

func TestGitHubCreate(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any
	c := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 42, "title": "Token tip jar", "labels": [{"name": "type:idea"}], "html_url": "https://example.com/42", "state": "open"}`))
	})

	tk, err := c.Create(context.Background(), "Token tip jar", "body", []string{"type:idea"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if gotPath != "POST /repos/mossland/sandbox/issues" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotPayload["title"] != "Token tip jar" {
		t.Errorf("payload title = %v", gotPayload["title"])
	}
	if tk.Number != 42 || !tk.HasLabel("type:idea") {
		t.Errorf("ticket = %+v", tk)
	}
}

func TestGitHubSearchFiltersPullRequests(t *testing.T) {
	c := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labels"); got != "type:idea,promote:to-plan" {
			t.Errorf("labels query = %q", got)
		}
		w.Write([]byte(`[
			{"number": 1, "title": "idea", "labels": [{"name": "type:idea"}], "state": "open"},
			{"number": 2, "title": "pr", "labels": [{"name": "type:idea"}], "state": "open", "pull_request": {}}
		]`))
	})

	tickets, err := c.Search(context.Background(), []string{"type:idea", "promote:to-plan"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(tickets) != 1 || tickets[0].Number != 1 {
		t.Fatalf("tickets = %+v, want only issue #1", tickets)
	}
}

func TestGitHubRemoveLabelMissingIsNoError(t *testing.T) {
	c := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Label does not exist"}`))
	})

	if err := c.RemoveLabel(context.Background(), 7, "promote:to-plan"); err != nil {
		t.Fatalf("RemoveLabel on missing label should be a no-op, got %v", err)
	}
}

func TestGitHubEnsureLabelsTreatsExistingAsSuccess(t *testing.T) {
	calls := 0
	c := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message": "Validation Failed"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	})

	specs := []LabelSpec{
		{Name: "type:idea", Color: "0e8a16"},
		{Name: "status:backlog", Color: "ededed"},
	}
	if err := c.EnsureLabels(context.Background(), specs); err != nil {
		t.Fatalf("EnsureLabels: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGitHubErrorSurfacesStatus(t *testing.T) {
	c := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message": "rate limited"}`))
	})

	_, err := c.Get(context.Background(), 1)
	if err == nil {
		t.Fatal("Get should fail on 403")
	}
	var apiErr *apiError
	if !asAPIError(err, &apiErr) || apiErr.status != http.StatusForbidden {
		t.Errorf("error = %v, want apiError 403", err)
	}
}

func TestMemoryClientLabelLifecycle(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	tk, err := m.Create(ctx, "idea", "body", []string{"type:idea", "status:backlog"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddLabels(ctx, tk.Number, []string{"promote:to-plan"}); err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveLabel(ctx, tk.Number, "status:backlog"); err != nil {
		t.Fatal(err)
	}

	got, err := m.Get(ctx, tk.Number)
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasLabel("promote:to-plan") || got.HasLabel("status:backlog") {
		t.Errorf("labels = %v", got.Labels)
	}

	found, err := m.Search(ctx, []string{"type:idea", "promote:to-plan"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 {
		t.Errorf("search results = %d, want 1", len(found))
	}
}
