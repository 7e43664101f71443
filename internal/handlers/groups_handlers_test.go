package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/thrdstr/backend/internal/models"
)

func TestCreateGroup(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := createTestUser(t, env.db, "frank", models.UserRoleUser)

	t.Run("creates group with default banner and auto-subscription", func(t *testing.T) {
		resp := performFormRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]string{
			"name":        "gophers",
			"description": "a place for gophers",
		}, nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)

		data := body["data"].(map[string]any)
		if data["bannerPath"] != models.DefaultBannerPath {
			t.Fatalf("expected default banner %q, got %v", models.DefaultBannerPath, data["bannerPath"])
		}

		var membershipCount int64
		groupID := uuid.MustParse(data["id"].(string))
		err := env.db.Model(&models.GroupMembership{}).
			Where("user_id = ? AND group_id = ?", owner.ID, groupID).
			Count(&membershipCount).Error
		if err != nil {
			t.Fatalf("failed counting memberships: %v", err)
		}
		if membershipCount != 1 {
			t.Fatalf("expected creator to be subscribed, found %d memberships", membershipCount)
		}
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		resp := performFormRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]string{
			"name": "gophers",
		}, nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "group name already taken")
	})

	t.Run("rejects missing name", func(t *testing.T) {
		resp := performFormRequest(t, env.app, http.MethodPost, "/api/groups/", map[string]string{
			"description": "nameless",
		}, nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "name is required")
	})
}

func TestListGroups(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "grace", models.UserRoleUser)
	_, token := createTestUser(t, env.db, "heidi", models.UserRoleUser)

	fresh := createTestGroup(t, env.db, "fresh-group", owner)
	stale := createTestGroup(t, env.db, "stale-group", owner)

	err := env.db.Model(&models.Group{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-8*24*time.Hour)).Error
	if err != nil {
		t.Fatalf("failed backdating group: %v", err)
	}

	resp := performRequest(t, env.app, http.MethodGet, "/api/groups/", nil, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := body["data"].(map[string]any)
	all := data["all"].([]any)
	recent := data["recent"].([]any)
	subscribed := data["subscribed"].([]any)

	if len(all) != 2 {
		t.Fatalf("expected 2 groups in the catalog, got %d", len(all))
	}
	if len(subscribed) != 0 {
		t.Fatalf("expected no subscriptions for a fresh user, got %d", len(subscribed))
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent group, got %d", len(recent))
	}
	if recent[0].(map[string]any)["id"] != fresh.ID.String() {
		t.Fatalf("expected recent view to hold %s, got %v", fresh.ID, recent[0].(map[string]any)["id"])
	}
}

func TestListMine(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "ivan", models.UserRoleUser)
	other, _ := createTestUser(t, env.db, "judy", models.UserRoleUser)

	owned := createTestGroup(t, env.db, "ivans-group", owner)
	foreign := createTestGroup(t, env.db, "judys-group", other)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+foreign.ID.String()+"/subscribe", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/groups/mine", nil, authHeaders(ownerToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)

	data := body["data"].(map[string]any)
	ownedList := data["owned"].([]any)
	subscribedList := data["subscribed"].([]any)

	if len(ownedList) != 1 || ownedList[0].(map[string]any)["id"] != owned.ID.String() {
		t.Fatalf("expected owned list to hold %s, got %v", owned.ID, ownedList)
	}
	if len(subscribedList) != 2 {
		t.Fatalf("expected 2 subscriptions (own group plus judys), got %d", len(subscribedList))
	}
}

func TestGetGroup(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := createTestUser(t, env.db, "kate", models.UserRoleUser)
	group := createTestGroup(t, env.db, "kates-group", owner)

	t.Run("returns group with subscriber count", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String(), nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		data := body["data"].(map[string]any)
		if data["name"] != "kates-group" {
			t.Fatalf("expected group name kates-group, got %v", data["name"])
		}
		if count := data["subscriberCount"].(float64); count != 1 {
			t.Fatalf("expected 1 subscriber, got %v", count)
		}
		if data["isSubscribed"] != true {
			t.Fatalf("expected the owner to be marked subscribed, got %v", data["isSubscribed"])
		}
	})

	t.Run("non-member is marked unsubscribed", func(t *testing.T) {
		_, outsiderToken := createTestUser(t, env.db, "kate-outsider", models.UserRoleUser)
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+group.ID.String(), nil, authHeaders(outsiderToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		if body["data"].(map[string]any)["isSubscribed"] != false {
			t.Fatalf("expected isSubscribed=false for a non-member")
		}
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/"+uuid.NewString(), nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "group not found")
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/groups/not-a-uuid", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusBadRequest)
	})
}

func TestUpdateGroup(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "liam", models.UserRoleUser)
	_, otherToken := createTestUser(t, env.db, "mona", models.UserRoleUser)
	group := createTestGroup(t, env.db, "liams-group", owner)

	t.Run("non-owner is forbidden", func(t *testing.T) {
		resp := performFormRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]string{
			"name": "hijacked",
		}, nil, authHeaders(otherToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "only the group owner can edit the group")
	})

	t.Run("owner updates name and description", func(t *testing.T) {
		resp := performFormRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]string{
			"name":        "liams-renamed-group",
			"description": "now with a description",
		}, nil, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		data := body["data"].(map[string]any)
		if data["name"] != "liams-renamed-group" {
			t.Fatalf("expected renamed group, got %v", data["name"])
		}
		if data["description"] != "now with a description" {
			t.Fatalf("expected description to be set, got %v", data["description"])
		}
	})

	t.Run("rename collision is 409", func(t *testing.T) {
		createTestGroup(t, env.db, "taken-name", owner)
		resp := performFormRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]string{
			"name": "taken-name",
		}, nil, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "group name already taken")
	})

	t.Run("clear sentinel wins over a co-submitted banner upload", func(t *testing.T) {
		resp := performFormRequest(t, env.app, http.MethodPut, "/api/groups/"+group.ID.String(), map[string]string{
			"clearBanner": "true",
		}, map[string]string{
			"banner": "new-banner.jpg",
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		data := body["data"].(map[string]any)
		if data["bannerPath"] != models.DefaultBannerPath {
			t.Fatalf("expected banner reset to %q, got %v", models.DefaultBannerPath, data["bannerPath"])
		}
	})
}

func TestDeleteGroup(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := createTestUser(t, env.db, "nina", models.UserRoleUser)
	member, memberToken := createTestUser(t, env.db, "oscar", models.UserRoleUser)
	group := createTestGroup(t, env.db, "ninas-group", owner)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/subscribe", nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusOK)
	post := createTestPost(t, env.db, member, group, "a post")
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/posts/"+post.ID.String()+"/like", nil, authHeaders(memberToken))
	assertStatus(t, resp, http.StatusOK)

	t.Run("non-owner is forbidden", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(memberToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "only the group owner can delete the group")
	})

	t.Run("owner delete cascades posts likes and memberships", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/groups/"+group.ID.String(), nil, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)

		var groups, posts, likes, memberships int64
		env.db.Model(&models.Group{}).Where("id = ?", group.ID).Count(&groups)
		env.db.Model(&models.Post{}).Where("group_id = ?", group.ID).Count(&posts)
		env.db.Model(&models.PostLike{}).Where("post_id = ?", post.ID).Count(&likes)
		env.db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&memberships)

		if groups != 0 || posts != 0 || likes != 0 || memberships != 0 {
			t.Fatalf("expected full cascade, got groups=%d posts=%d likes=%d memberships=%d",
				groups, posts, likes, memberships)
		}
	})
}

func TestSubscribe(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := createTestUser(t, env.db, "pat", models.UserRoleUser)
	subscriber, token := createTestUser(t, env.db, "quinn", models.UserRoleUser)
	group := createTestGroup(t, env.db, "pats-group", owner)

	t.Run("double subscribe keeps a single membership", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/subscribe", nil, authHeaders(token))
			assertStatus(t, resp, http.StatusOK)
		}

		var count int64
		err := env.db.Model(&models.GroupMembership{}).
			Where("user_id = ? AND group_id = ?", subscriber.ID, group.ID).
			Count(&count).Error
		if err != nil {
			t.Fatalf("failed counting memberships: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected exactly one membership, got %d", count)
		}
	})

	t.Run("unsubscribe removes the membership", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/unsubscribe", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		var count int64
		env.db.Model(&models.GroupMembership{}).
			Where("user_id = ? AND group_id = ?", subscriber.ID, group.ID).
			Count(&count)
		if count != 0 {
			t.Fatalf("expected membership gone, got %d", count)
		}
	})

	t.Run("unsubscribe while not a member is a no-op", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+group.ID.String()+"/unsubscribe", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("subscribe to unknown group is 404", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/"+uuid.NewString()+"/subscribe", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusNotFound)
	})
}
