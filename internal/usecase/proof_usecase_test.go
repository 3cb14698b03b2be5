package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cod-fulfillment/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	keys []string
}

func (s *fakeStorage) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.keys = append(s.keys, key)
	return "https://cdn.test/" + key, nil
}

func newProofUsecase(f *fixture, storage ProofStorage) *ProofUsecase {
	u := NewProofUsecase(f.store.CODOrders(), f.store.DeliveryAttempts(), storage)
	u.process = func(r io.Reader) ([]byte, string, error) {
		b, err := io.ReadAll(r)
		if err != nil || len(b) == 0 {
			return nil, "", errors.New("empty image")
		}
		return b, "image/webp", nil
	}
	return u
}

func TestProofUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storage := &fakeStorage{}
	u := newProofUsecase(f, storage)

	f.putOrder("order-1", 8000, 350)
	o := f.create(t, "order-1")

	_, err := u.Upload(ctx, agent, "order-1", ProofKindPhoto, strings.NewReader("img"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "no attempt is out yet")

	f.verify(t, "order-1")
	f.dispatch(t, "order-1")

	res, err := u.Upload(ctx, agent, "order-1", "Signature", strings.NewReader("img"))
	require.NoError(t, err)
	assert.Equal(t, ProofKindSignature, res.Kind)
	assert.Equal(t, 1, res.AttemptNumber)
	require.Len(t, storage.keys, 1)
	assert.True(t, strings.HasPrefix(storage.keys[0], "proofs/"+o.ID+"/attempt-1/signature-"))
	assert.True(t, strings.HasSuffix(res.URL, ".webp"))

	_, err = u.Upload(ctx, agent, "order-1", "selfie", strings.NewReader("img"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = u.Upload(ctx, agent, "order-1", ProofKindPhoto, strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
