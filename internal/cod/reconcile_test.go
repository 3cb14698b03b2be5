package cod

import (
	"testing"

	"cod-fulfillment/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile(t *testing.T) {
	t.Run("matched", func(t *testing.T) {
		rec, err := Reconcile(dec("8300"), dec("8300.00"), "")
		require.NoError(t, err)
		assert.Equal(t, domain.CollectionStatusMatched, rec.Status)
		assert.True(t, rec.Discrepancy.IsZero())
	})

	t.Run("short without reason is rejected", func(t *testing.T) {
		rec, err := Reconcile(dec("8300"), dec("8000"), "  ")
		assert.ErrorIs(t, err, domain.ErrDiscrepancyReasonRequired)
		assert.Equal(t, domain.CollectionStatusDiscrepancy, rec.Status)
		assert.True(t, rec.Discrepancy.Equal(dec("-300")))
	})

	t.Run("short with reason", func(t *testing.T) {
		rec, err := Reconcile(dec("8300"), dec("8000"), "customer short on change")
		require.NoError(t, err)
		assert.Equal(t, domain.CollectionStatusDiscrepancy, rec.Status)
		assert.True(t, rec.Discrepancy.Equal(dec("-300")))
		assert.Equal(t, "customer short on change", rec.Reason)
	})

	t.Run("over collected", func(t *testing.T) {
		rec, err := Reconcile(dec("8300"), dec("8500"), "tip")
		require.NoError(t, err)
		assert.True(t, rec.Discrepancy.Equal(dec("200")))
	})

	t.Run("negative collected", func(t *testing.T) {
		_, err := Reconcile(dec("8300"), dec("-1"), "x")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("discrepancy always collected minus expected", func(t *testing.T) {
		for _, c := range []string{"0", "1", "8299.99", "8300", "8300.01", "99999"} {
			rec, _ := Reconcile(dec("8300"), dec(c), "reason")
			assert.True(t, rec.Discrepancy.Equal(dec(c).Sub(dec("8300"))), c)
		}
	})
}

func TestClosesOrder(t *testing.T) {
	assert.True(t, ClosesOrder(domain.CollectionStatusMatched))
	assert.True(t, ClosesOrder(domain.CollectionStatusDeposited))
	assert.False(t, ClosesOrder(domain.CollectionStatusDiscrepancy))
	assert.False(t, ClosesOrder(domain.CollectionStatusPendingDeposit))
}
