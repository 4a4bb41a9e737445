package enums

import "fmt"

// FeatureType identifies a meterable product feature.
type FeatureType string

const (
	FeatureTypeRecipeGeneration FeatureType = "recipe_generation"
	FeatureTypeVideoGeneration  FeatureType = "video_generation"
	FeatureTypeCommunityPost    FeatureType = "community_post"
	FeatureTypeCommunityComment FeatureType = "community_comment"
)

var validFeatureTypes = []FeatureType{
	FeatureTypeRecipeGeneration,
	FeatureTypeVideoGeneration,
	FeatureTypeCommunityPost,
	FeatureTypeCommunityComment,
}

// AllFeatureTypes returns every known feature in a stable order.
func AllFeatureTypes() []FeatureType {
	out := make([]FeatureType, len(validFeatureTypes))
	copy(out, validFeatureTypes)
	return out
}

// String implements fmt.Stringer.
func (f FeatureType) String() string {
	return string(f)
}

// IsValid reports whether the value is known.
func (f FeatureType) IsValid() bool {
	for _, candidate := range validFeatureTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeatureType validates the raw value.
func ParseFeatureType(raw string) (FeatureType, error) {
	candidate := FeatureType(raw)
	if !candidate.IsValid() {
		return "", fmt.Errorf("unknown feature type %q", raw)
	}
	return candidate, nil
}
