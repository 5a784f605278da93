package handler

import (
	"net/http"
	"strconv"
	"time"

	"app/internal/api/v1/dto"
	"app/internal/apperr"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100

	defaultSignedURLSeconds = 3600

	// Multipart bodies above this spill to temp files.
	maxMultipartMemory = 32 << 20
)

// FileHandler handles the API-key file endpoints.
type FileHandler struct {
	fileSvc  service.FileService
	subSvc   service.SubscriptionService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(fileSvc service.FileService, subSvc service.SubscriptionService, validate *validator.Validate, logger zerolog.Logger) *FileHandler {
	return &FileHandler{fileSvc: fileSvc, subSvc: subSvc, validate: validate, logger: logger}
}

// RegisterRoutes registers the file endpoints. authed is the API-key chain;
// graced additionally rejects users in a grace period and guards only the
// upload route, so deletes stay possible while over quota.
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux, authed, graced func(http.Handler) http.Handler) {
	mux.Handle("POST /files", graced(http.HandlerFunc(h.Upload)))
	mux.Handle("GET /files", authed(http.HandlerFunc(h.List)))
	mux.Handle("GET /files/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /files/{id}", authed(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /files/{id}/signed-url", authed(http.HandlerFunc(h.SignedURL)))
	mux.Handle("GET /folders", authed(http.HandlerFunc(h.FolderContents)))
}

// Upload accepts a multipart upload and admits it against the owner's plan.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperr.Unauthorized())
		return
	}

	if key.Type == model.KeyTypePublic {
		origin := r.Header.Get("Origin")
		if origin == "" || !key.OriginAllowed(origin) {
			writeError(w, h.logger, apperr.Forbidden("Origin not allowed for this API key"))
			return
		}
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, h.logger, apperr.BadRequest("Invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, apperr.BadRequest("Missing file field"))
		return
	}
	defer file.Close()

	var folder *string
	if v := r.FormValue("folder"); v != "" {
		folder = &v
	}
	private := r.FormValue("private") == "true"
	if private && key.Type != model.KeyTypeSecret {
		writeError(w, h.logger, apperr.Forbidden("Private uploads require a secret API key"))
		return
	}

	plan, err := h.subSvc.PlanForUser(r.Context(), key.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	created, err := h.fileSvc.Upload(r.Context(), key.UserID, plan, service.UploadInput{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: contentType,
		Body:        file,
		Folder:      folder,
		Private:     private,
		Expires:     r.FormValue("expires"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewFileResponse(created, h.fileSvc.FileURL(created)))
}

// List returns the caller's files, newest first.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	q := r.URL.Query()

	files, next, err := h.fileSvc.ListFiles(r.Context(), userID, q.Get("folder"), pageSize(q.Get("limit")), q.Get("cursor"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ListFilesResponse{
		Files:      h.fileResponses(files),
		Pagination: dto.Pagination{NextCursor: next, HasMore: next != ""},
	})
}

// Get returns one file's metadata.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	f, err := h.fileSvc.GetFile(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewFileResponse(f, h.fileSvc.FileURL(f)))
}

// Delete removes a file and releases its storage usage.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.fileSvc.DeleteFile(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignedURL mints a time-limited download URL. Secret keys only.
func (h *FileHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.APIKeyFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperr.Unauthorized())
		return
	}
	if key.Type != model.KeyTypeSecret {
		writeError(w, h.logger, apperr.Forbidden("Signed URLs require a secret API key"))
		return
	}

	req := dto.SignedURLRequest{ExpiresIn: defaultSignedURLSeconds}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
		if req.ExpiresIn == 0 {
			req.ExpiresIn = defaultSignedURLSeconds
		}
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.logger, apperr.BadRequest("expires_in must be between 60 and 604800 seconds"))
		return
	}

	expiresIn := time.Duration(req.ExpiresIn) * time.Second
	url, err := h.fileSvc.CreateSignedURL(r.Context(), key.UserID, r.PathValue("id"), expiresIn)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SignedURLResponse{
		URL:       url,
		ExpiresAt: time.Now().Add(expiresIn),
	})
}

// FolderContents returns the direct subfolders and files at a folder level.
func (h *FileHandler) FolderContents(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	q := r.URL.Query()

	var folder *string
	if v := q.Get("folder"); v != "" {
		folder = &v
	}

	folders, files, next, err := h.fileSvc.ListFolderContents(r.Context(), userID, folder, pageSize(q.Get("limit")), q.Get("cursor"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	folderResponses := make([]dto.FolderResponse, 0, len(folders))
	for _, f := range folders {
		folderResponses = append(folderResponses, dto.FolderResponse{Name: f.Name, Size: f.SizeBytes, FileCount: f.FileCount})
	}
	writeJSON(w, http.StatusOK, dto.FolderContentsResponse{
		Folders:    folderResponses,
		Files:      h.fileResponses(files),
		Pagination: dto.Pagination{NextCursor: next, HasMore: next != ""},
	})
}

func (h *FileHandler) fileResponses(files []model.StoredFile) []dto.FileResponse {
	responses := make([]dto.FileResponse, 0, len(files))
	for i := range files {
		responses = append(responses, dto.NewFileResponse(&files[i], h.fileSvc.FileURL(&files[i])))
	}
	return responses
}

// pageSize parses a limit query parameter with default and cap.
func pageSize(raw string) int {
	if raw == "" {
		return defaultPageSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
