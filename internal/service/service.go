package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventpass/internal/auth"
	"eventpass/internal/checkin"
	"eventpass/internal/dto"
	"eventpass/internal/model"
	"eventpass/internal/repo"
	"eventpass/internal/ticket"
	"eventpass/internal/uploads"
)

const maxImageSize = 5 << 20

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetAllEvents(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	UpdateEvent(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)

	Register(ctx *ginext.Context)
	Validate(ctx *ginext.Context)
	Decode(ctx *ginext.Context)
	EventRegistrations(ctx *ginext.Context)
	AllRegistrations(ctx *ginext.Context)
	EventSummaries(ctx *ginext.Context)

	Login(ctx *ginext.Context)
	Logout(ctx *ginext.Context)
	Health(ctx *ginext.Context)
}

type Desk interface {
	Register(ctx context.Context, in checkin.RegisterInput) (*model.Registration, error)
	Validate(ctx context.Context, token string) (*model.Attendee, error)
}

type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error)
	Logout(ctx context.Context, p *auth.Principal) error
}

type service struct {
	repo    repo.Repository
	desk    Desk
	auth    Authenticator
	images  uploads.ImageStore
	decoder *ticket.QRDecoder
	log     *zerolog.Logger
}

func NewService(r repo.Repository, desk Desk, a Authenticator, images uploads.ImageStore, logger *zerolog.Logger) Service {
	return &service{
		repo:    r,
		desk:    desk,
		auth:    a,
		images:  images,
		decoder: ticket.NewQRDecoder(),
		log:     logger,
	}
}

func (s *service) Health(ctx *ginext.Context) {
	dto.SuccessResponse(ctx, dto.MessageResponse{Message: "ok"})
}
