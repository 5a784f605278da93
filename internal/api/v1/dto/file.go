package dto

import (
	"time"

	"app/internal/model"
)

// FileResponse is the API shape of a stored file.
type FileResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Folder    *string    `json:"folder,omitempty"`
	Size      int64      `json:"size"`
	MimeType  string     `json:"mime_type"`
	IsPrivate bool       `json:"is_private"`
	URL       string     `json:"url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewFileResponse maps a model file to its API shape. url is empty for
// private files, which are only reachable through signed URLs.
func NewFileResponse(f *model.StoredFile, url string) FileResponse {
	resp := FileResponse{
		ID:        f.ID,
		Name:      f.Name,
		Folder:    f.Folder,
		Size:      f.SizeBytes,
		MimeType:  f.MimeType,
		IsPrivate: f.IsPrivate,
		ExpiresAt: f.ExpiresAt,
		CreatedAt: f.CreatedAt,
	}
	if !f.IsPrivate {
		resp.URL = url
	}
	return resp
}

// Pagination carries the opaque cursor for the next page.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ListFilesResponse is the response to GET /files.
type ListFilesResponse struct {
	Files      []FileResponse `json:"files"`
	Pagination Pagination     `json:"pagination"`
}

// FolderResponse is one direct subfolder with aggregate statistics.
type FolderResponse struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	FileCount int    `json:"file_count"`
}

// FolderContentsResponse is the response to GET /folders.
type FolderContentsResponse struct {
	Folders    []FolderResponse `json:"folders"`
	Files      []FileResponse   `json:"files"`
	Pagination Pagination       `json:"pagination"`
}

// SignedURLRequest is the body of POST /files/{id}/signed-url. ExpiresIn is
// in seconds, bounded between one minute and seven days.
type SignedURLRequest struct {
	ExpiresIn int `json:"expires_in" validate:"omitempty,min=60,max=604800"`
}

// SignedURLResponse carries a freshly minted signed URL.
type SignedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
