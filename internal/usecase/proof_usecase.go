package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cod-fulfillment/internal/domain"
	"cod-fulfillment/pkg/logger"
	"cod-fulfillment/pkg/utils"

	"github.com/google/uuid"
)

// Proof kinds an agent can attach to an attempt
const (
	ProofKindPhoto     = "photo"
	ProofKindSignature = "signature"
)

// ProofStorage stores an object and returns its public URL.
type ProofStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ProofUsecase stores delivery proof images for the attempt in progress. The
// returned URL is then submitted with the delivery outcome.
type ProofUsecase struct {
	codRepo     domain.CODOrderRepository
	attemptRepo domain.DeliveryAttemptRepository
	storage     ProofStorage
	process     func(r io.Reader) ([]byte, string, error)
}

func NewProofUsecase(codRepo domain.CODOrderRepository, attemptRepo domain.DeliveryAttemptRepository, storage ProofStorage) *ProofUsecase {
	return &ProofUsecase{
		codRepo:     codRepo,
		attemptRepo: attemptRepo,
		storage:     storage,
		process: func(r io.Reader) ([]byte, string, error) {
			return utils.ProcessImage(r, utils.MaxProofWidth)
		},
	}
}

type ProofUpload struct {
	URL           string `json:"url"`
	Kind          string `json:"kind"`
	AttemptNumber int    `json:"attemptNumber"`
}

func (u *ProofUsecase) Upload(ctx context.Context, actor *domain.User, orderID, kind string, file io.Reader) (*ProofUpload, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind != ProofKindPhoto && kind != ProofKindSignature {
		return nil, domain.ValidationError("kind", "must be photo or signature")
	}

	o, err := u.codRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != domain.CODStatusOutForDelivery {
		return nil, fmt.Errorf("%w: proof can only be attached while out for delivery, order is %s", domain.ErrInvalidTransition, o.Status)
	}
	attempt, err := u.attemptRepo.GetLatest(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	data, contentType, err := u.process(file)
	if err != nil {
		return nil, domain.ValidationError("file", "not a readable image")
	}

	key := fmt.Sprintf("proofs/%s/attempt-%d/%s-%s%s", o.ID, attempt.AttemptNumber, kind, uuid.NewString(), utils.ExtensionFor(contentType))
	url, err := u.storage.Upload(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info().
		Str("order_id", o.OrderID).
		Int("attempt", attempt.AttemptNumber).
		Str("kind", kind).
		Str("agent_id", actorID(actor)).
		Int("bytes", len(data)).
		Msg("Delivery proof stored")

	return &ProofUpload{URL: url, Kind: kind, AttemptNumber: attempt.AttemptNumber}, nil
}
