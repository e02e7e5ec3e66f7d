package http

import (
	stdhttp "net/http"
	"testing"
)

func TestChangeProfile(t *testing.T) {
	ts := newTestServer(t)

	aliceToken := registerUser(t, ts, "alice")
	registerUser(t, ts, "bobby")

	status, _ := apiCall(t, ts, stdhttp.MethodPatch, "/api/v1/users/name", aliceToken,
		ChangeNameRequest{FullName: "Alice Q"})
	if status != stdhttp.StatusNoContent {
		t.Fatalf("change name: expected 204, got %d", status)
	}
	status, _ = apiCall(t, ts, stdhttp.MethodPatch, "/api/v1/users/email", aliceToken,
		ChangeEmailRequest{Email: "alice.q@example.com"})
	if status != stdhttp.StatusNoContent {
		t.Fatalf("change email: expected 204, got %d", status)
	}

	me := whoAmI(t, ts, aliceToken)
	if me.FullName != "Alice Q" {
		t.Fatalf("name not updated: %+v", me)
	}

	// Another user's email cannot be claimed.
	status, _ = apiCall(t, ts, stdhttp.MethodPatch, "/api/v1/users/email", aliceToken,
		ChangeEmailRequest{Email: "bobby@example.com"})
	if status != stdhttp.StatusConflict {
		t.Fatalf("duplicate email: expected 409, got %d", status)
	}

	// Malformed email is rejected by binding.
	status, _ = apiCall(t, ts, stdhttp.MethodPatch, "/api/v1/users/email", aliceToken,
		ChangeEmailRequest{Email: "not-an-email"})
	if status != stdhttp.StatusBadRequest {
		t.Fatalf("bad email: expected 400, got %d", status)
	}

	// Profile updates require authentication.
	status, _ = apiCall(t, ts, stdhttp.MethodPatch, "/api/v1/users/name", "",
		ChangeNameRequest{FullName: "Nobody"})
	if status != stdhttp.StatusUnauthorized {
		t.Fatalf("unauthenticated: expected 401, got %d", status)
	}
}
