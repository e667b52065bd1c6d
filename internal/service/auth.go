package service

import (
	"errors"

	"github.com/wb-go/wbf/ginext"

	"eventpass/internal/auth"
	"eventpass/internal/dto"
	"eventpass/pkg/validator"
)

func (s *service) Login(ctx *ginext.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx.Request.Context(), req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	token, expiresAt, err := s.auth.Login(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.log.Warn().Str("username", req.Username).Msg("failed admin login")
			dto.UnauthorizedError(ctx, "Invalid credentials")
			return
		}
		s.log.Error().Err(err).Msg("failed to log in")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.LoginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *service) Logout(ctx *ginext.Context) {
	p, ok := auth.PrincipalFrom(ctx.Request.Context())
	if !ok {
		dto.UnauthorizedError(ctx, "Authorization token is required")
		return
	}
	if err := s.auth.Logout(ctx.Request.Context(), p); err != nil {
		s.log.Error().Err(err).Msg("failed to log out")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.MessageResponse{Message: "Logged out"})
}
