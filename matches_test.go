package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

// ============================================================================
// MATCH STORE TEST SUITE
// ============================================================================

func TestMatchStoreSuite(t *testing.T) {
	requireDB(t)

	t.Run("CreateAndDedupe", func(t *testing.T) {
		testCreateAndDedupe(t)
	})

	t.Run("InvalidPair", func(t *testing.T) {
		testInvalidPair(t)
	})

	t.Run("StatusTransitions", func(t *testing.T) {
		testStatusTransitions(t)
	})

	t.Run("MatchListing", func(t *testing.T) {
		testMatchListing(t)
	})
}

func testCreateAndDedupe(t *testing.T) {
	userA := createTestUser(t, "store_a", "store_a@example.com", TestProfile{})
	userB := createTestUser(t, "store_b", "store_b@example.com", TestProfile{})
	defer cleanupTestUsers(userA.UserID, userB.UserID)

	t.Run("First Creation Is Pending", func(t *testing.T) {
		w := doJSON(t, matchesHandler(db), http.MethodPost, "/matches", userA.Token,
			map[string]interface{}{"matched_user_id": userB.UserID, "compatibility_score": 81.5})
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}

		var match MatchRecord
		json.NewDecoder(w.Body).Decode(&match)
		if match.Status != StatusPending {
			t.Errorf("expected pending status, got %q", match.Status)
		}
		if match.CompatibilityScore != 81.5 {
			t.Errorf("expected score 81.5, got %v", match.CompatibilityScore)
		}
		if match.MatchID == "" {
			t.Error("expected a match_id to be assigned")
		}
	})

	t.Run("Reversed Pair Returns Same Record", func(t *testing.T) {
		// Create once more from B's side with a different score
		w := doJSON(t, matchesHandler(db), http.MethodPost, "/matches", userB.Token,
			map[string]interface{}{"matched_user_id": userA.UserID, "compatibility_score": 12.0})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for existing match, got %d: %s", w.Code, w.Body.String())
		}

		var match MatchRecord
		json.NewDecoder(w.Body).Decode(&match)
		// The original score stays the record of truth
		if match.CompatibilityScore != 81.5 {
			t.Errorf("expected original score 81.5 retained, got %v", match.CompatibilityScore)
		}
	})

	t.Run("Direct Store Calls Report wasCreated", func(t *testing.T) {
		cleanupTestUsers(userA.UserID)
		userA = createTestUser(t, "store_a", "store_a@example.com", TestProfile{})

		first, created, err := createOrGetMatch(context.Background(), db, userA.UserID, userB.UserID, 50.0)
		if err != nil || !created {
			t.Fatalf("expected fresh creation, got created=%v err=%v", created, err)
		}
		second, created, err := createOrGetMatch(context.Background(), db, userB.UserID, userA.UserID, 99.0)
		if err != nil || created {
			t.Fatalf("expected existing match, got created=%v err=%v", created, err)
		}
		if first.MatchID != second.MatchID {
			t.Errorf("expected one canonical record, got %s and %s", first.MatchID, second.MatchID)
		}
		if second.CompatibilityScore != 50.0 {
			t.Errorf("expected first score retained, got %v", second.CompatibilityScore)
		}
	})

	t.Run("Mixed Case Pair", func(t *testing.T) {
		// "Case_B" sorts before "case_a" bytewise but after it under a
		// locale collation; the stored pair must follow the bytewise order.
		upper := createTestUser(t, "Case_B", "case_upper@example.com", TestProfile{})
		lower := createTestUser(t, "case_a", "case_lower@example.com", TestProfile{})
		defer cleanupTestUsers(upper.UserID, lower.UserID)

		match, created, err := createOrGetMatch(context.Background(), db, lower.UserID, upper.UserID, 42.0)
		if err != nil {
			t.Fatalf("mixed-case pair should store cleanly, got %v", err)
		}
		if !created {
			t.Fatal("expected a fresh match")
		}
		a, b := canonicalPair(lower.UserID, upper.UserID)
		if match.UserAID != a || match.UserBID != b {
			t.Errorf("expected stored pair (%s, %s), got (%s, %s)", a, b, match.UserAID, match.UserBID)
		}

		again, created, err := createOrGetMatch(context.Background(), db, upper.UserID, lower.UserID, 7.0)
		if err != nil || created {
			t.Fatalf("expected dedupe on the reversed pair, got created=%v err=%v", created, err)
		}
		if again.MatchID != match.MatchID {
			t.Errorf("expected one canonical record, got %s and %s", match.MatchID, again.MatchID)
		}
	})

	t.Run("Unknown Target", func(t *testing.T) {
		w := doJSON(t, matchesHandler(db), http.MethodPost, "/matches", userA.Token,
			map[string]interface{}{"matched_user_id": "no_such_user", "compatibility_score": 50.0})
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unknown target, got %d", w.Code)
		}
	})
}

func testInvalidPair(t *testing.T) {
	userA := createTestUser(t, "pair_a", "pair_a@example.com", TestProfile{})
	defer cleanupTestUsers(userA.UserID)

	w := doJSON(t, matchesHandler(db), http.MethodPost, "/matches", userA.Token,
		map[string]interface{}{"matched_user_id": userA.UserID, "compatibility_score": 100.0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for self-match, got %d", w.Code)
	}

	_, _, err := createOrGetMatch(context.Background(), db, userA.UserID, userA.UserID, 10.0)
	if !errors.Is(err, ErrInvalidPair) {
		t.Errorf("expected ErrInvalidPair, got %v", err)
	}
}

func testStatusTransitions(t *testing.T) {
	userA := createTestUser(t, "trans_a", "trans_a@example.com", TestProfile{})
	userB := createTestUser(t, "trans_b", "trans_b@example.com", TestProfile{})
	userC := createTestUser(t, "trans_c", "trans_c@example.com", TestProfile{})
	defer cleanupTestUsers(userA.UserID, userB.UserID, userC.UserID)

	match, _, err := createOrGetMatch(context.Background(), db, userA.UserID, userB.UserID, 70.0)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Invalid Status Always Rejected", func(t *testing.T) {
		// Unknown status fails identically for existing and missing matches
		if _, err := transitionStatus(context.Background(), db, match.MatchID, "friendzoned", userA.UserID); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus, got %v", err)
		}
		if _, err := transitionStatus(context.Background(), db, uuid.NewString(), "friendzoned", userA.UserID); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus for missing match too, got %v", err)
		}
		// Status strings are case-sensitive
		if _, err := transitionStatus(context.Background(), db, match.MatchID, "Accepted", userA.UserID); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus for wrong case, got %v", err)
		}
	})

	t.Run("Unknown Match", func(t *testing.T) {
		if _, err := transitionStatus(context.Background(), db, uuid.NewString(), StatusAccepted, userA.UserID); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Outsider Not Authorized", func(t *testing.T) {
		if _, err := transitionStatus(context.Background(), db, match.MatchID, StatusAccepted, userC.UserID); !errors.Is(err, ErrNotAuthorized) {
			t.Errorf("expected ErrNotAuthorized, got %v", err)
		}
	})

	t.Run("Either Party May Transition", func(t *testing.T) {
		target := fmt.Sprintf("/matches/%s/status", match.MatchID)
		w := doJSON(t, updateMatchStatusHandler(db), http.MethodPatch, target, userB.Token,
			map[string]string{"status": StatusAccepted})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var updated MatchRecord
		json.NewDecoder(w.Body).Decode(&updated)
		if updated.Status != StatusAccepted {
			t.Errorf("expected accepted, got %q", updated.Status)
		}
	})

	t.Run("No Terminal State Lock", func(t *testing.T) {
		// rejected -> accepted is allowed on purpose
		if _, err := transitionStatus(context.Background(), db, match.MatchID, StatusRejected, userA.UserID); err != nil {
			t.Fatal(err)
		}
		updated, err := transitionStatus(context.Background(), db, match.MatchID, StatusAccepted, userA.UserID)
		if err != nil {
			t.Fatalf("re-opening a rejected match should succeed, got %v", err)
		}
		if updated.Status != StatusAccepted {
			t.Errorf("expected accepted after re-open, got %q", updated.Status)
		}

		// cancelled -> pending as well
		if _, err := transitionStatus(context.Background(), db, match.MatchID, StatusCancelled, userB.UserID); err != nil {
			t.Fatal(err)
		}
		if _, err := transitionStatus(context.Background(), db, match.MatchID, StatusPending, userB.UserID); err != nil {
			t.Fatalf("cancelled -> pending should succeed, got %v", err)
		}
	})
}

func testMatchListing(t *testing.T) {
	userA := createTestUser(t, "list_a", "list_a@example.com", TestProfile{})
	userB := createTestUser(t, "list_b", "list_b@example.com", TestProfile{})
	userC := createTestUser(t, "list_c", "list_c@example.com", TestProfile{})
	userD := createTestUser(t, "list_d", "list_d@example.com", TestProfile{})
	defer cleanupTestUsers(userA.UserID, userB.UserID, userC.UserID, userD.UserID)

	ctx := context.Background()
	mB, _, _ := createOrGetMatch(ctx, db, userA.UserID, userB.UserID, 40.0)
	mC, _, _ := createOrGetMatch(ctx, db, userC.UserID, userA.UserID, 60.0)
	mD, _, _ := createOrGetMatch(ctx, db, userA.UserID, userD.UserID, 30.0)
	if _, err := transitionStatus(ctx, db, mC.MatchID, StatusAccepted, userA.UserID); err != nil {
		t.Fatal(err)
	}
	if _, err := transitionStatus(ctx, db, mD.MatchID, StatusRejected, userA.UserID); err != nil {
		t.Fatal(err)
	}

	t.Run("Default Filter Pending And Accepted", func(t *testing.T) {
		w := doJSON(t, matchesHandler(db), http.MethodGet, "/matches", userA.Token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}

		var resp struct {
			Total   int            `json:"total"`
			Matches []MatchSummary `json:"matches"`
		}
		json.NewDecoder(w.Body).Decode(&resp)

		if resp.Total != 2 {
			t.Fatalf("expected 2 matches, got %d (%+v)", resp.Total, resp.Matches)
		}
		// Newest first: the C match was created after the B match
		if resp.Matches[0].MatchID != mC.MatchID || resp.Matches[1].MatchID != mB.MatchID {
			t.Errorf("expected newest-first order [%s %s], got %+v", mC.MatchID, mB.MatchID, resp.Matches)
		}
		// Counterpart resolved no matter which side of the pair A is on
		if resp.Matches[0].OtherUser.UserID != userC.UserID {
			t.Errorf("expected other_user %s, got %s", userC.UserID, resp.Matches[0].OtherUser.UserID)
		}
		if resp.Matches[0].OtherUser.Name != "User "+userC.UserID {
			t.Errorf("expected counterpart name resolved, got %q", resp.Matches[0].OtherUser.Name)
		}
	})

	t.Run("Explicit Status Filter", func(t *testing.T) {
		w := doJSON(t, matchesHandler(db), http.MethodGet, "/matches?status=rejected", userA.Token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var resp struct {
			Total   int            `json:"total"`
			Matches []MatchSummary `json:"matches"`
		}
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Total != 1 || resp.Matches[0].MatchID != mD.MatchID {
			t.Errorf("expected only the rejected match, got %+v", resp.Matches)
		}
	})

	t.Run("Bad Status Filter", func(t *testing.T) {
		w := doJSON(t, matchesHandler(db), http.MethodGet, "/matches?status=ghosted", userA.Token, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown status filter, got %d", w.Code)
		}
	})
}
