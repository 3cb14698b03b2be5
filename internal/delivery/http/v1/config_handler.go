package v1

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"cod-fulfillment/internal/cod"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/cache"
	"cod-fulfillment/pkg/utils"
)

type ConfigHandler struct {
	cache cache.CacheService
	feeUC *usecase.FeeRuleUsecase
}

func NewConfigHandler(c cache.CacheService, feeUC *usecase.FeeRuleUsecase) *ConfigHandler {
	return &ConfigHandler{cache: c, feeUC: feeUC}
}

// GET /api/v1/config/cod-enums
func (h *ConfigHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	response, err := cache.Remember(h.cache, cache.KeyCODEnums, time.Hour, func() (map[string]interface{}, error) {
		rules, err := h.feeUC.ActiveRules(r.Context())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"codStatuses":          domain.CODStatuses,
			"verificationTypes":    domain.VerificationTypes,
			"verificationOutcomes": domain.VerificationOutcomes,
			"attemptStatuses":      domain.AttemptStatuses,
			"collectionMethods":    domain.CollectionMethods,
			"collectionStatuses":   domain.CollectionStatuses,
			"feeTypes":             domain.FeeTypes,
			"deliveryPreferences":  domain.DeliveryPreferences,
			"codProvinces":         provinces(rules, time.Now()),
		}, nil
	})
	if err != nil {
		writeUsecaseError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	utils.WriteJSON(w, http.StatusOK, response)
}

// provinces lists provinces with a rule in effect at now.
func provinces(rules []domain.CODFeeConfig, now time.Time) []string {
	seen := map[string]bool{}
	out := []string{}
	for i := range rules {
		rule := &rules[i]
		if !cod.InEffect(rule, now) {
			continue
		}
		key := strings.ToLower(rule.Province)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rule.Province)
	}
	sort.Strings(out)
	return out
}
