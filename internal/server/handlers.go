package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"kila/internal"
	"kila/internal/auth"
	"kila/internal/pipeline"
	"kila/internal/storage"
)

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string   `json:"token"`
	User  userInfo `json:"user"`
}

type userInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Email == "" || len(creds.Password) < 8 {
		writeError(w, http.StatusBadRequest, "username, email y password (mínimo 8 caracteres) son requeridos")
		return
	}

	if _, err := s.db.GetUserByEmail(creds.Email); err == nil {
		writeError(w, http.StatusConflict, "el email ya está registrado")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.internalError(w, err)
		return
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		s.internalError(w, err)
		return
	}
	user, err := s.db.InsertUser(creds.Username, creds.Email, hash)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeSession(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "cuerpo JSON inválido")
		return
	}

	user, err := s.db.GetUserByEmail(strings.ToLower(strings.TrimSpace(creds.Email)))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "credenciales inválidas")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, creds.Password) {
		writeError(w, http.StatusUnauthorized, "credenciales inválidas")
		return
	}

	s.writeSession(w, http.StatusOK, *user)
}

func (s *Server) writeSession(w http.ResponseWriter, status int, user internal.UserRow) {
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, status, sessionResponse{
		Token: token,
		User:  userInfo{ID: user.ID, Username: user.Username, Email: user.Email},
	})
}

// handleValidate accepts either a multipart upload (field "file") or a raw
// JSON body and runs the full validation pipeline.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	raw, filename, err := readInvoiceBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var userID *int64
	if claims := claimsFrom(r.Context()); claims != nil {
		userID = &claims.UserID
	}

	result, err := s.service.Validate(r.Context(), pipeline.ValidateInput{
		Raw:      raw,
		Filename: filename,
		UserID:   userID,
	})
	var bad *pipeline.ErrBadDocument
	if errors.As(err, &bad) {
		writeError(w, http.StatusBadRequest, bad.Error())
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func readInvoiceBody(r *http.Request) (json.RawMessage, string, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if strings.HasPrefix(contentType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("falta el archivo en el campo 'file'")
		}
		defer file.Close()

		if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".json" {
			return nil, "", errors.New("solo se aceptan archivos .json")
		}
		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("no se pudo leer el archivo")
		}
		return raw, header.Filename, nil
	}

	if contentType != "" && contentType != "application/json" {
		return nil, "", errors.New("Content-Type no soportado, se espera application/json")
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errors.New("no se pudo leer el cuerpo de la solicitud")
	}
	return raw, "", nil
}

func (s *Server) handleListValidations(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	limit := s.cfg.HistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= s.cfg.HistoryLimit {
			limit = n
		}
	}

	rows, err := s.db.ListValidations(&claims.UserID, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if rows == nil {
		rows = []internal.ValidationRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": toSummaries(rows)})
}

type validationSummary struct {
	ValidationID  string             `json:"validation_id"`
	InvoiceNumber string             `json:"invoice_number"`
	Filename      string             `json:"filename,omitempty"`
	Passed        bool               `json:"passed"`
	Status        string             `json:"status"`
	Source        string             `json:"source"`
	ConflictCount int                `json:"conflict_count"`
	Errors        []internal.Finding `json:"errors"`
	Warnings      []internal.Finding `json:"warnings"`
	CreatedAt     string             `json:"created_at"`
}

func toSummaries(rows []internal.ValidationRow) []validationSummary {
	out := make([]validationSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSummary(row))
	}
	return out
}

func toSummary(row internal.ValidationRow) validationSummary {
	if row.Errors == nil {
		row.Errors = []internal.Finding{}
	}
	if row.Warnings == nil {
		row.Warnings = []internal.Finding{}
	}
	return validationSummary{
		ValidationID:  row.ValidationID,
		InvoiceNumber: row.InvoiceNumber,
		Filename:      row.Filename,
		Passed:        row.Passed,
		Status:        row.Status,
		Source:        row.Source,
		ConflictCount: row.ConflictCount,
		Errors:        row.Errors,
		Warnings:      row.Warnings,
		CreatedAt:     row.CreatedAt,
	}
}

func (s *Server) ownedValidation(w http.ResponseWriter, r *http.Request) *internal.ValidationRow {
	claims := claimsFrom(r.Context())
	row, err := s.db.GetValidation(chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "validación no encontrada")
		return nil
	}
	if err != nil {
		s.internalError(w, err)
		return nil
	}
	if row.UserID == nil || *row.UserID != claims.UserID {
		writeError(w, http.StatusNotFound, "validación no encontrada")
		return nil
	}
	return row
}

func (s *Server) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	row := s.ownedValidation(w, r)
	if row == nil {
		return
	}

	summary := toSummary(*row)
	writeJSON(w, http.StatusOK, map[string]any{
		"validation":   summary,
		"invoice_data": json.RawMessage(row.InvoiceJSON),
	})
}

func (s *Server) handleDeleteValidation(w http.ResponseWriter, r *http.Request) {
	row := s.ownedValidation(w, r)
	if row == nil {
		return
	}

	if err := s.db.DeleteValidation(row.ValidationID); err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": row.ValidationID})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	stats, err := s.db.GetStats(&claims.UserID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if stats.PerDay == nil {
		stats.PerDay = []internal.DayCount{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("handler error")
	writeError(w, http.StatusInternalServerError, "error interno")
}
