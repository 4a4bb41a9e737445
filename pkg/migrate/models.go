package migrate

import "github.com/quanghuyng/feastly-backend/pkg/db/models"

func allModels() []any {
	return []any{
		&models.Plan{},
		&models.Subscription{},
		&models.UsageQuota{},
		&models.PaymentTransaction{},
	}
}
