package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/quanghuyng/feastly-backend/api/responses"
	"github.com/quanghuyng/feastly-backend/internal/usage"
	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/logger"
	"github.com/quanghuyng/feastly-backend/pkg/metrics"
)

// Requirement declares what a protected route needs from the caller's
// plan. Feature gates a metered quota; Capability gates a boolean plan
// flag. Either side may be left empty.
type Requirement struct {
	Feature    enums.FeatureType
	Capability enums.Capability
}

// usageGuard is the slice of the usage service the interceptor needs.
type usageGuard interface {
	Check(ctx context.Context, userID uuid.UUID, feature enums.FeatureType) (*usage.CheckResult, error)
	Decrement(ctx context.Context, userID uuid.UUID, feature enums.FeatureType, amount int) error
	HasCapability(ctx context.Context, userID uuid.UUID, capability enums.Capability) (bool, error)
}

type denialDetails struct {
	Message        string `json:"message"`
	SuggestedPlan  string `json:"suggestedPlan,omitempty"`
	FeatureType    string `json:"featureType,omitempty"`
	RemainingQuota int    `json:"remainingQuota"`
	TotalQuota     int    `json:"totalQuota"`
}

// RequireEntitlement checks the caller's plan before the handler runs and
// consumes one quota unit after it succeeds. The quota is only charged
// when the handler reports success; a failed handler costs nothing.
func RequireEntitlement(guard usageGuard, req Requirement, accessMetrics *metrics.AccessMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID, err := uuid.Parse(UserIDFromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			if req.Capability != "" {
				ok, err := guard.HasCapability(ctx, userID, req.Capability)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if !ok {
					if accessMetrics != nil {
						accessMetrics.IncDenied(string(req.Capability))
					}
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "plan upgrade required").
						WithDetails(denialDetails{
							Message:       "your current plan does not include this capability",
							SuggestedPlan: "Premium",
						}))
					return
				}
			}

			if req.Feature == "" {
				if accessMetrics != nil {
					accessMetrics.IncAllowed(string(req.Capability))
				}
				next.ServeHTTP(w, r)
				return
			}

			check, err := guard.Check(ctx, userID, req.Feature)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !check.CanUse {
				if accessMetrics != nil {
					accessMetrics.IncDenied(string(req.Feature))
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeQuotaExceeded, "usage limit reached for this billing cycle").
					WithDetails(denialDetails{
						Message:        "usage limit reached for this billing cycle",
						SuggestedPlan:  check.SuggestedPlan,
						FeatureType:    string(req.Feature),
						RemainingQuota: check.Remaining,
						TotalQuota:     check.Total,
					}))
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusBadRequest {
				return
			}

			if accessMetrics != nil {
				accessMetrics.IncAllowed(string(req.Feature))
			}

			// The response is already on the wire, so a failed charge can
			// only be logged. The charge runs on a detached context because
			// a client hanging up would otherwise cancel it every time. The
			// conditional update in the ledger keeps a concurrent burst
			// from driving the counter below zero.
			cctx := context.WithoutCancel(ctx)
			if err := guard.Decrement(cctx, userID, req.Feature, 1); err != nil && logg != nil {
				dctx := logg.WithFeature(cctx, string(req.Feature))
				logg.Error(dctx, "usage.charge_failed", err)
			}
		})
	}
}
