package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUserPublicDropsCredentials(t *testing.T) {
	user := User{ID: "u1", Username: "alice", PasswordHash: "hash", RefreshToken: "refresh"}
	public := user.Public()
	if public.PasswordHash != "" || public.RefreshToken != "" {
		t.Fatalf("expected credentials stripped, got %+v", public)
	}
	if user.PasswordHash != "hash" {
		t.Fatalf("Public must not mutate the receiver")
	}

	payload, err := json.Marshal(public)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(payload), "passwordHash") || strings.Contains(string(payload), "refreshToken") {
		t.Fatalf("credential keys leaked into payload: %s", payload)
	}
}

func TestVideoJSONUsesAssetFieldNames(t *testing.T) {
	video := Video{ID: "v1", VideoURL: "https://cdn/upload/video/a.mp4", ThumbnailURL: "https://cdn/upload/image/b.png"}
	payload, err := json.Marshal(video)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["videofile"] != video.VideoURL {
		t.Fatalf("expected videofile key, got %v", decoded)
	}
	if decoded["thumbnail"] != video.ThumbnailURL {
		t.Fatalf("expected thumbnail key, got %v", decoded)
	}
	if _, ok := decoded["owner"]; ok {
		t.Fatalf("owner should be omitted when not populated")
	}
}
