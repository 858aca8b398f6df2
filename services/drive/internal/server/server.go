package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"drivex/internal/ratelimit"
	"drivex/internal/util"
	"drivex/pkg/domain"
	"drivex/services/drive/internal/app"
)

const (
	bannerText = "Google Drive Clone API is running!"

	// multipartOverhead leaves room for boundaries and part headers on top of
	// the file itself before the request body is cut off.
	multipartOverhead = 1 << 20

	healthTimeout = 2 * time.Second
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	AllowedOrigins []string
	TrustedProxies *util.TrustedProxies
	// AuthLimiter and UploadLimiter are optional; nil disables limiting.
	AuthLimiter   ratelimit.Limiter
	UploadLimiter ratelimit.Limiter
	RetryAfter    time.Duration
}

// Server exposes the drive HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	allowedOrigins []string
	trusted        *util.TrustedProxies
	authLimiter    ratelimit.Limiter
	uploadLimiter  ratelimit.Limiter
	retryAfter     string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	retryAfter := cfg.RetryAfter
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		trusted:        cfg.TrustedProxies,
		authLimiter:    cfg.AuthLimiter,
		uploadLimiter:  cfg.UploadLimiter,
		retryAfter:     strconv.Itoa(int(retryAfter.Round(time.Second) / time.Second)),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("drive", util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleBanner)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("POST /api/auth/google", s.handleGoogleSignIn)
	s.mux.Handle("POST /api/auth/logout", s.withUser(s.handleLogout))
	s.mux.Handle("GET /api/users/me", s.withUser(s.handleMe))

	// files
	s.mux.Handle("POST /api/files/upload", s.withUser(s.handleUpload))
	s.mux.Handle("GET /api/files", s.withUser(s.handleListFiles))
	s.mux.Handle("GET /api/files/trash", s.withUser(s.handleListTrash))
	s.mux.Handle("GET /api/files/{id}", s.withUser(s.handleGetFile))
	s.mux.Handle("GET /api/files/{id}/content", s.withUser(s.handleFileContent))
	s.mux.Handle("PATCH /api/files/{id}/rename", s.withUser(s.handleRename))
	s.mux.Handle("PATCH /api/files/{id}/star", s.withUser(s.handleStar))
	s.mux.Handle("POST /api/files/{id}/trash", s.withUser(s.handleTrash))
	s.mux.Handle("POST /api/files/{id}/restore", s.withUser(s.handleRestore))
	s.mux.Handle("DELETE /api/files/{id}", s.withUser(s.handleDelete))

	// read-only blob mount
	s.mux.HandleFunc("GET /uploads/{key}", s.handleUploads)

	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, bannerText)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

// withUser resolves the caller from the bearer session token. The user ID is
// never read from the request body or query.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "drive.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		userID, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, "drive.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", userID))
		next(w, r.WithContext(ctx), userID)
	})
}

// auth handlers
func (s *Server) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.authLimiter, "auth") {
		return
	}
	var req googleSignInRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeValidationError(w, err)
		return
	}
	res, err := s.app.SignInWithGoogle(r.Context(), app.GoogleSignIn{
		AccessToken: req.AccessToken,
		TokenType:   req.TokenType,
		ExpiresIn:   req.ExpiresIn,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidIdentity) {
			s.audit(r, "drive.signin", "fail", "reason", err.Error())
		}
		s.writeAppError(w, r, err, "Failed to sign in with Google")
		return
	}
	s.audit(r, "drive.signin", "success", "user_id", res.User.ID, "created", res.Created)
	status, msg := http.StatusOK, "User updated successfully"
	if res.Created {
		status, msg = http.StatusCreated, "User created successfully"
	}
	writeJSON(w, status, signInResponse{
		Success: true,
		Message: msg,
		Token:   res.Token,
		User:    res.User,
	})
}

type signInResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, userID string) {
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		s.writeAppError(w, r, err, "Failed to log out")
		return
	}
	s.audit(r, "drive.logout", "success", "user_id", userID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := s.app.CurrentUser(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// file handlers
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, userID string) {
	if !s.allowRate(w, r, s.uploadLimiter, "upload") {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, msgFileRequired)
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.writeAppError(w, r, app.ErrFileTooLarge, msgUploadFailed)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		file, err := s.app.UploadFile(r.Context(), userID, app.UploadInput{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			s.writeAppError(w, r, err, msgUploadFailed)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "File uploaded successfully",
			"file":    file,
		})
		return
	}
	writeError(w, http.StatusBadRequest, msgFileRequired)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, userID string) {
	files, err := s.app.ListFiles(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch files")
		return
	}
	writeList(w, files)
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request, userID string) {
	files, err := s.app.ListTrash(r.Context(), userID)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to fetch files")
		return
	}
	writeList(w, files)
}

func writeList(w http.ResponseWriter, files []domain.File) {
	if files == nil {
		files = []domain.File{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": files,
		"count": len(files),
	})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request, userID string) {
	file, err := s.app.GetFile(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err, "Failed to get file details")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request, userID string) {
	file, obj, err := s.app.OpenContent(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err, "Failed to get file details")
		return
	}
	defer obj.Close()
	w.Header().Set("Content-Type", file.FileType)
	w.Header().Set("Content-Disposition", contentDisposition(file.FileName))
	w.Header().Set("Cache-Control", "private, no-cache")
	http.ServeContent(w, r, "", obj.ModTime, obj)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request, userID string) {
	var req renameRequest
	if err := decodeAndValidate(r, &req); err != nil {
		// Length is checked by the app after trimming.
		if _, _, ok := firstViolation(err); ok {
			s.writeAppError(w, r, app.ErrNameRequired, msgRenameFailed)
			return
		}
		writeValidationError(w, err)
		return
	}
	file, err := s.app.RenameFile(r.Context(), userID, r.PathValue("id"), req.NewFileName)
	if err != nil {
		s.writeAppError(w, r, err, msgRenameFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "File renamed successfully",
		"file":    file,
	})
}

func (s *Server) handleStar(w http.ResponseWriter, r *http.Request, userID string) {
	var req starRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeValidationError(w, err)
		return
	}
	file, err := s.app.SetStarred(r.Context(), userID, r.PathValue("id"), *req.Starred)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to update file")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request, userID string) {
	file, err := s.app.TrashFile(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err, "Failed to move file to trash")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request, userID string) {
	file, err := s.app.RestoreFile(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err, "Failed to restore file")
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, userID string) {
	if _, err := s.app.DeleteFile(r.Context(), userID, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err, "Failed to delete file")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	obj, err := s.app.OpenUpload(r.Context(), key)
	if err != nil {
		s.writeAppError(w, r, err, "Failed to get file details")
		return
	}
	defer obj.Close()
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	http.ServeContent(w, r, "", obj.ModTime, obj)
}

// contentDisposition builds an inline disposition with an ASCII fallback name
// and the exact UTF-8 name in filename*.
func contentDisposition(name string) string {
	ext := strings.ToLower(path.Ext(name))
	fallback := slug.Make(strings.TrimSuffix(name, path.Ext(name)))
	if fallback == "" {
		fallback = "file"
	}
	if slug.IsSlug(strings.TrimPrefix(ext, ".")) {
		fallback += ext
	}
	return fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`, fallback, encodeRFC5987(name))
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			strings.IndexByte("!#$&+-.^_`|~", c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter, scope string) bool {
	if limiter == nil {
		return true
	}
	key := scope + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	s.audit(r, "drive.ratelimit", "fail", "scope", scope)
	w.Header().Set("Retry-After", s.retryAfter)
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
