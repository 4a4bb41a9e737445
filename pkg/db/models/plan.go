package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/quanghuyng/feastly-backend/pkg/enums"
)

// Plan is an immutable catalog entry describing a paid tier and its
// per-cycle feature ceilings. Administered outside this core; read-only here.
type Plan struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string           `gorm:"column:name;not null;uniqueIndex"`
	Status       enums.PlanStatus `gorm:"column:status;not null;default:'active'"`
	MonthlyPrice decimal.Decimal  `gorm:"column:monthly_price;type:numeric(14,2);not null"`
	YearlyPrice  *decimal.Decimal `gorm:"column:yearly_price;type:numeric(14,2)"`
	CurrencyCode string           `gorm:"column:currency_code;not null;default:'VND'"`
	SortOrder    int              `gorm:"column:sort_order;not null;default:0"`

	MaxRecipeGenerations int `gorm:"column:max_recipe_generations;not null;default:0"`
	MaxVideoGenerations  int `gorm:"column:max_video_generations;not null;default:0"`
	MaxCommunityPosts    int `gorm:"column:max_community_posts;not null;default:0"`
	MaxCommunityComments int `gorm:"column:max_community_comments;not null;default:0"`

	Capabilities pq.StringArray `gorm:"column:capabilities;type:text[]"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// FeatureLimit returns the per-cycle ceiling for the feature. Zero disables it.
func (p *Plan) FeatureLimit(feature enums.FeatureType) int {
	switch feature {
	case enums.FeatureTypeRecipeGeneration:
		return p.MaxRecipeGenerations
	case enums.FeatureTypeVideoGeneration:
		return p.MaxVideoGenerations
	case enums.FeatureTypeCommunityPost:
		return p.MaxCommunityPosts
	case enums.FeatureTypeCommunityComment:
		return p.MaxCommunityComments
	default:
		return 0
	}
}

// HasCapability reports whether the plan carries the boolean flag.
func (p *Plan) HasCapability(capability enums.Capability) bool {
	for _, c := range p.Capabilities {
		if c == string(capability) {
			return true
		}
	}
	return false
}
