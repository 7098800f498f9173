package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"je-portal/backend/internal/apperr"
	"je-portal/backend/internal/auth"
	"je-portal/backend/internal/messaging"
	"je-portal/backend/internal/models"
	"je-portal/backend/internal/notify"
)

const requestTimeout = 5 * time.Second

type UserDirectory interface {
	Get(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	ListExcept(ctx context.Context, id string) ([]models.User, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionCounter interface {
	ConnectionCount() int
}

type API struct {
	Users        UserDirectory
	Auth         *auth.Service
	Notify       *notify.Service
	Messaging    *messaging.Service
	DB           Pinger
	Hub          ConnectionCounter
	Log          *zap.Logger
	CookieSecure bool

	validate *validator.Validate
}

func NewAPI(users UserDirectory, authService *auth.Service, notifier *notify.Service, messenger *messaging.Service, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		Users:     users,
		Auth:      authService,
		Notify:    notifier,
		Messaging: messenger,
		Log:       log.Named("api"),
		validate:  newValidator(),
	}
}

// newValidator reports json field names rather than Go ones.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps a service error onto the response and logs internal ones.
func (a *API) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		a.Log.Error(fallback, zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, apperr.PublicMessage(err, fallback))
}

func readJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// decodeAndValidate reads the body into dst and applies its validate tags.
func (a *API) decodeAndValidate(r *http.Request, dst any) error {
	if err := readJSON(r, dst); err != nil {
		return apperr.Validation("invalid request")
	}
	if err := a.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			if fieldErrs[0].Tag() == "required" {
				return apperr.Validation("missing field")
			}
			return apperr.Validation("invalid field: " + fieldErrs[0].Field())
		}
		return apperr.Validation("invalid request")
	}
	return nil
}

func currentUser(r *http.Request) (auth.User, bool) {
	return auth.UserFromContext(r.Context())
}

func parseLimit(r *http.Request, fallback int) int {
	if value := r.URL.Query().Get("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
