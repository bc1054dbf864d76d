package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailstorm/composer/internal/session"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	sess := session.New("test-token", "tester")
	return NewClient(srv.URL, sess, 5*time.Second), sess
}

func TestClientAuthHeader(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Campaign{ID: 1, Name: "spring"})
	})

	c, err := client.Campaign(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "spring" {
		t.Errorf("name = %q", c.Name)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestClientClosedSession(t *testing.T) {
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	})
	sess.Close()

	if _, err := client.Campaign(context.Background(), 1); err != session.ErrClosed {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestUpdateSendInfoPatchesSubset(t *testing.T) {
	var gotBody map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/mail-sendinfo/by-campaign/42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(SendInfo{Subject: "hello"})
	})

	subject := "hello"
	si, err := client.UpdateSendInfo(context.Background(), 42, &SendInfoPatch{Subject: &subject})
	if err != nil {
		t.Fatal(err)
	}
	if si.Subject != "hello" {
		t.Errorf("subject = %q", si.Subject)
	}
	if len(gotBody) != 1 {
		t.Errorf("patch body should carry only set fields, got %v", gotBody)
	}
	if gotBody["subject"] != "hello" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestRecipientCount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mail-groups/count/9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte("123"))
	})

	n, err := client.RecipientCount(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if n != 123 {
		t.Errorf("count = %d", n)
	}
}

func TestSendRequestBody(t *testing.T) {
	var got SendRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mail/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	req := &SendRequest{
		CampaignID: 5,
		Type:       SendTypeScheduled,
		ExecuteAt:  "2025-08-20T18:00:00+09:00",
	}
	if err := client.Send(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if got != *req {
		t.Errorf("server saw %+v, want %+v", got, *req)
	}
}

func TestClientAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "no such campaign"})
	})

	_, err := client.Campaign(context.Background(), 404)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "API error: no such campaign"; err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
}
