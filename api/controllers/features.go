package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/api/responses"
)

// The generation and community services live outside this codebase. These
// handlers stand in for them so the entitlement middleware has real
// routes to protect; they acknowledge the request with a tracking id.
func acceptFeatureRequest(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{
			"id":   uuid.NewString(),
			"kind": kind,
		})
	}
}

func GenerateRecipe() http.HandlerFunc {
	return acceptFeatureRequest("recipe")
}

func GenerateVideo() http.HandlerFunc {
	return acceptFeatureRequest("video")
}

func CreateCommunityPost() http.HandlerFunc {
	return acceptFeatureRequest("community_post")
}

func CreateCommunityComment() http.HandlerFunc {
	return acceptFeatureRequest("community_comment")
}
