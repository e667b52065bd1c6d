package dto

import (
	"net/http"
	"time"

	"github.com/wb-go/wbf/ginext"

	"eventpass/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound         = "EVENT_NOT_FOUND"
	InvalidToken          = "INVALID_TOKEN"
	RegistrationDuplicate = "REGISTRATION_DUPLICATE"
	AlreadyCheckedIn      = "ALREADY_CHECKED_IN"
	QRNotFound            = "QR_NOT_FOUND"
	Unauthorized          = "UNAUTHORIZED"
	Forbidden             = "FORBIDDEN"
)

type RegisterRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=255"`
	Email   string `json:"email" validate:"required,email,max=255"`
	Phone   string `json:"phone" validate:"required,phone"`
	EventID string `json:"eventId" validate:"required"`
}

type RegisterResponse struct {
	Token          string `json:"token"`
	CodeImage      string `json:"codeImage"`
	RegistrationID string `json:"registrationId"`
}

type ValidateRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type DecodeRequest struct {
	Image string `json:"image" validate:"required"`
}

type DecodeResponse struct {
	Token string `json:"token"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=255"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EventForm is the multipart form of event create and update. On update every
// field is optional and an empty one keeps the stored value.
type EventForm struct {
	Name  string `form:"name" validate:"required,max=255"`
	Date  string `form:"date" validate:"required,date"`
	Time  string `form:"time" validate:"required,clock"`
	Venue string `form:"venue" validate:"required,max=255"`
}

type EventUpdateForm struct {
	Name  string `form:"name" validate:"omitempty,max=255"`
	Date  string `form:"date" validate:"omitempty,date"`
	Time  string `form:"time" validate:"omitempty,clock"`
	Venue string `form:"venue" validate:"omitempty,max=255"`
}

// EventResponse is the public view of an event; registrations are only
// visible to admins.
type EventResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Date              string    `json:"date"`
	Time              string    `json:"time"`
	Venue             string    `json:"venue"`
	Image             string    `json:"image,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	RegistrationCount int       `json:"registrationCount"`
}

type EventRegistrationsResponse struct {
	EventID       string               `json:"eventId"`
	EventName     string               `json:"eventName"`
	EventDate     string               `json:"eventDate"`
	EventVenue    string               `json:"eventVenue"`
	Registrations []model.Registration `json:"registrations"`
}

// RegistrationListItem is one row of the admin listing across all events.
type RegistrationListItem struct {
	RegistrationID string     `json:"registrationId"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	EventID        string     `json:"eventId"`
	EventName      string     `json:"eventName"`
	EventVenue     string     `json:"eventVenue"`
	EventDate      string     `json:"eventDate"`
	CheckedIn      bool       `json:"checkedIn"`
	RegisteredAt   time.Time  `json:"registeredAt"`
	CheckedInAt    *time.Time `json:"checkedInAt"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func FieldIncorrectError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldIncorrect, "Field '"+fieldName+"' is incorrect")
}

func EventNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, EventNotFound, "Event not found")
}

func InvalidTokenError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, InvalidToken, "Invalid QR code")
}

func RegistrationDuplicateError(c *ginext.Context) {
	BadResponseError(c, RegistrationDuplicate, "You have already registered for this event")
}

func AlreadyCheckedInError(c *ginext.Context) {
	BadResponseError(c, AlreadyCheckedIn, "This QR code has already been scanned")
}

func UnauthorizedError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, desc)
}

func ForbiddenError(c *ginext.Context) {
	ErrorResponse(c, http.StatusForbidden, Forbidden, "Admin access required")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
