package service

import (
	"errors"

	"github.com/wb-go/wbf/ginext"

	"eventpass/internal/checkin"
	"eventpass/internal/dto"
	"eventpass/internal/ticket"
	"eventpass/pkg/validator"
)

func (s *service) Register(ctx *ginext.Context) {
	var req dto.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	req.Email = checkin.NormalizeEmail(req.Email)

	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	reg, err := s.desk.Register(ctx.Request.Context(), checkin.RegisterInput{
		EventID: req.EventID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkin.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, checkin.ErrDuplicateRegistration):
			dto.RegistrationDuplicateError(ctx)
		default:
			s.log.Error().Err(err).Str("event_id", req.EventID).Msg("failed to register")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessCreatedResponse(ctx, dto.RegisterResponse{
		Token:          reg.Token,
		CodeImage:      reg.QRCode,
		RegistrationID: reg.ID,
	})
}

func (s *service) Validate(ctx *ginext.Context) {
	var req dto.ValidateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	att, err := s.desk.Validate(ctx.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, checkin.ErrInvalidToken):
			dto.InvalidTokenError(ctx)
		case errors.Is(err, checkin.ErrAlreadyCheckedIn):
			dto.AlreadyCheckedInError(ctx)
		default:
			s.log.Error().Err(err).Msg("failed to validate ticket")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, att)
}

// Decode reads a ticket code out of an uploaded snapshot, for stations that
// cannot decode locally.
func (s *service) Decode(ctx *ginext.Context) {
	var req dto.DecodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	token, err := s.decoder.DecodeDataURL(req.Image)
	if err != nil {
		switch {
		case errors.Is(err, ticket.ErrNoCode):
			dto.BadResponseError(ctx, dto.QRNotFound, "No QR code found in image")
		case errors.Is(err, ticket.ErrBadPicture):
			dto.FieldBadFormatError(ctx, "image")
		default:
			s.log.Error().Err(err).Msg("failed to decode QR image")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, dto.DecodeResponse{Token: token})
}

func (s *service) EventRegistrations(ctx *ginext.Context) {
	event, ok := s.loadEvent(ctx, ctx.Param("eventId"))
	if !ok {
		return
	}

	dto.SuccessResponse(ctx, dto.EventRegistrationsResponse{
		EventID:       event.ID,
		EventName:     event.Name,
		EventDate:     event.When(),
		EventVenue:    event.Venue,
		Registrations: event.Registrations,
	})
}

func (s *service) AllRegistrations(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get registrations")
		dto.InternalServerError(ctx)
		return
	}

	resp := []dto.RegistrationListItem{}
	for i := range events {
		e := &events[i]
		for _, r := range e.Registrations {
			resp = append(resp, dto.RegistrationListItem{
				RegistrationID: r.ID,
				Name:           r.Name,
				Email:          r.Email,
				Phone:          r.Phone,
				EventID:        e.ID,
				EventName:      e.Name,
				EventVenue:     e.Venue,
				EventDate:      e.When(),
				CheckedIn:      r.CheckedIn,
				RegisteredAt:   r.RegisteredAt,
				CheckedInAt:    r.CheckedInAt,
			})
		}
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) EventSummaries(ctx *ginext.Context) {
	events, err := s.repo.ListEventSummaries(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, events)
}
