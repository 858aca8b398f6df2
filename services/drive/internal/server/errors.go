package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"drivex/internal/util"
	"drivex/services/drive/internal/app"
)

const (
	msgUnauthenticated = "User not authenticated"
	msgInvalidIdentity = "Invalid Google credentials"
	msgFileRequired    = "No file uploaded"
	msgInvalidFileType = "Invalid file type. Only images and videos are accepted."
	msgNameRequired    = "New file name is required"
	msgNameTooLong     = "File name must be at most 255 characters"
	msgFileNotFound    = "File not found or not authorized"
	msgUserNotFound    = "User not found"
	msgUploadFailed    = "Failed to upload file"
	msgRenameFailed    = "Failed to rename file"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

// writeAppError maps application errors onto HTTP. Anything unrecognised is a
// dependency failure: the cause is logged and the client gets fallback.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, msgUnauthenticated)
	case errors.Is(err, app.ErrInvalidIdentity):
		writeError(w, http.StatusUnauthorized, msgInvalidIdentity)
	case errors.Is(err, app.ErrFileRequired):
		writeError(w, http.StatusBadRequest, msgFileRequired)
	case errors.Is(err, app.ErrInvalidFileType):
		writeError(w, http.StatusBadRequest, msgInvalidFileType)
	case errors.Is(err, app.ErrFileTooLarge), errors.As(err, &maxErr):
		writeError(w, http.StatusBadRequest, tooLargeMessage(s.app.MaxUploadBytes()))
	case errors.Is(err, app.ErrNameRequired):
		writeError(w, http.StatusBadRequest, msgNameRequired)
	case errors.Is(err, app.ErrNameTooLong):
		writeError(w, http.StatusBadRequest, msgNameTooLong)
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, msgFileNotFound)
	case errors.Is(err, app.ErrUserNotFound):
		writeError(w, http.StatusNotFound, msgUserNotFound)
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeValidationError(w http.ResponseWriter, err error) {
	if errors.Is(err, errInvalidJSON) {
		writeError(w, http.StatusBadRequest, errInvalidJSON.Error())
		return
	}
	writeError(w, http.StatusBadRequest, validationMessage(err))
}

func tooLargeMessage(maxBytes int64) string {
	if maxBytes%(1<<20) == 0 {
		return fmt.Sprintf("File too large. Maximum size is %d MB.", maxBytes>>20)
	}
	return fmt.Sprintf("File too large. Maximum size is %d bytes.", maxBytes)
}

func errorCodeFor(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == strings.ToLower(msgUnauthenticated):
		return "AUTH_INVALID_TOKEN"
	case message == strings.ToLower(msgInvalidIdentity):
		return "AUTH_INVALID_IDENTITY"
	case message == strings.ToLower(msgFileRequired), message == "invalid form data":
		return "FILE_REQUIRED"
	case message == strings.ToLower(msgInvalidFileType):
		return "FILE_INVALID_TYPE"
	case strings.HasPrefix(message, "file too large"):
		return "FILE_TOO_LARGE"
	case message == strings.ToLower(msgNameRequired):
		return "FILE_NAME_REQUIRED"
	case message == strings.ToLower(msgNameTooLong):
		return "FILE_NAME_TOO_LONG"
	case message == strings.ToLower(msgFileNotFound):
		return "FILE_NOT_FOUND"
	case message == strings.ToLower(msgUserNotFound):
		return "USER_NOT_FOUND"
	case message == "invalid json body":
		return "REQUEST_INVALID_JSON"
	case message == "too many requests":
		return "SYSTEM_RATE_LIMITED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_INVALID"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
