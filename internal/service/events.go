package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wb-go/wbf/ginext"

	"eventpass/internal/dto"
	"eventpass/internal/model"
	"eventpass/internal/repo"
	"eventpass/internal/uploads"
	"eventpass/pkg/validator"
)

func toEventResponse(e *model.Event) dto.EventResponse {
	return dto.EventResponse{
		ID:                e.ID,
		Name:              e.Name,
		Date:              e.Date,
		Time:              e.Time,
		Venue:             e.Venue,
		Image:             e.Image,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		RegistrationCount: len(e.Registrations),
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var form dto.EventForm
	if err := ctx.ShouldBind(&form); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form data")
		return
	}
	trimEventForm(&form.Name, &form.Date, &form.Time, &form.Venue)

	if verr := validator.Validate(ctx.Request.Context(), form); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	image, ok := s.saveUpload(ctx)
	if !ok {
		return
	}

	event := &model.Event{
		Name:  form.Name,
		Date:  form.Date,
		Time:  form.Time,
		Venue: form.Venue,
		Image: image,
	}
	if err := s.repo.CreateEvent(ctx.Request.Context(), event); err != nil {
		s.discardUpload(ctx, image)
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", event.ID).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, toEventResponse(event))
}

func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetAllEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get events")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, toEventResponse(&events[i]))
	}
	dto.SuccessResponse(ctx, resp)
}

func (s *service) GetEvent(ctx *ginext.Context) {
	event, ok := s.loadEvent(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	dto.SuccessResponse(ctx, toEventResponse(event))
}

// UpdateEvent applies only the fields present in the form; the stored image is
// kept unless a new one is uploaded.
func (s *service) UpdateEvent(ctx *ginext.Context) {
	var form dto.EventUpdateForm
	if err := ctx.ShouldBind(&form); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid form data")
		return
	}
	trimEventForm(&form.Name, &form.Date, &form.Time, &form.Venue)

	if verr := validator.Validate(ctx.Request.Context(), form); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	event, ok := s.loadEvent(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	image, ok := s.saveUpload(ctx)
	if !ok {
		return
	}
	previous := event.Image
	if image != "" {
		event.Image = image
	}
	if form.Name != "" {
		event.Name = form.Name
	}
	if form.Date != "" {
		event.Date = form.Date
	}
	if form.Time != "" {
		event.Time = form.Time
	}
	if form.Venue != "" {
		event.Venue = form.Venue
	}

	if err := s.repo.UpdateEvent(ctx.Request.Context(), event); err != nil {
		s.discardUpload(ctx, image)
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", event.ID).Msg("failed to update event")
		dto.InternalServerError(ctx)
		return
	}

	if image != "" && previous != "" {
		s.discardUpload(ctx, previous)
	}

	s.log.Info().Str("event_id", event.ID).Msg("event updated successfully")
	dto.SuccessResponse(ctx, toEventResponse(event))
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := s.repo.DeleteEvent(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("event_id", id).Msg("failed to delete event")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", id).Msg("event deleted")
	dto.SuccessResponse(ctx, dto.MessageResponse{Message: "Event deleted successfully"})
}

func (s *service) loadEvent(ctx *ginext.Context, id string) (*model.Event, bool) {
	event, err := s.repo.GetEventByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return nil, false
		}
		s.log.Error().Err(err).Str("event_id", id).Msg("failed to get event")
		dto.InternalServerError(ctx)
		return nil, false
	}
	return event, true
}

// saveUpload stores the image field of a multipart request, if any. The
// returned reference is empty when nothing was uploaded.
func (s *service) saveUpload(ctx *ginext.Context) (string, bool) {
	fh, err := ctx.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", true
	}
	if err != nil {
		dto.FieldBadFormatError(ctx, "image")
		return "", false
	}
	if fh.Size > maxImageSize {
		dto.BadResponseError(ctx, dto.FieldBadFormat, fmt.Sprintf("Image exceeds %d MB", maxImageSize>>20))
		return "", false
	}

	f, err := fh.Open()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to open uploaded image")
		dto.InternalServerError(ctx)
		return "", false
	}
	defer f.Close()

	ref, err := s.images.Save(ctx.Request.Context(), f)
	if err != nil {
		if errors.Is(err, uploads.ErrUnsupportedType) {
			dto.FieldBadFormatError(ctx, "image")
			return "", false
		}
		s.log.Error().Err(err).Msg("failed to store uploaded image")
		dto.InternalServerError(ctx)
		return "", false
	}
	return ref, true
}

// discardUpload removes a stored image that no event points to.
func (s *service) discardUpload(ctx *ginext.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.images.Delete(ctx.Request.Context(), ref); err != nil {
		s.log.Warn().Err(err).Str("image", ref).Msg("failed to remove unused image")
	}
}

func trimEventForm(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}
