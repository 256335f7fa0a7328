package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/inferchain/inferchain/internal/handler/dto"
	"github.com/inferchain/inferchain/internal/ipfs"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// Pinner pins files to IPFS.
type Pinner interface {
	Configured() bool
	PinFile(ctx context.Context, fileName string, content []byte) (*ipfs.PinResult, error)
}

// IPFSHandler handles file uploads.
type IPFSHandler struct {
	pinner   Pinner
	maxBytes int64
	logger   *slog.Logger
}

// NewIPFSHandler creates a new IPFSHandler.
func NewIPFSHandler(pinner Pinner, maxBytes int64, logger *slog.Logger) *IPFSHandler {
	return &IPFSHandler{pinner: pinner, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /ipfs/upload with a multipart "file" field.
func (h *IPFSHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.pinner == nil || !h.pinner.Configured() {
		writeError(w, http.StatusServiceUnavailable, "IPFS_DISABLED", ipfs.ErrNotConfigured.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", "Expected multipart/form-data")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "No file provided")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read upload")
		return
	}

	fileName := filepath.Base(header.Filename)
	pinned, err := h.pinner.PinFile(r.Context(), fileName, content)
	if err != nil {
		h.logger.Error("ipfs upload failed", "file_name", fileName, "size", len(content), "error", err)
		writeErrorDetails(w, http.StatusInternalServerError, "IPFS_UPLOAD_FAILED", "Failed to upload file to IPFS", err.Error())
		return
	}

	h.logger.Info("file pinned", "file_name", fileName, "cid", pinned.Hash, "size", pinned.Size)
	writeJSON(w, http.StatusOK, dto.UploadResponse{
		Success:  true,
		Hash:     pinned.Hash,
		Path:     "ipfs://" + pinned.Hash,
		FileName: fileName,
		Size:     pinned.Size,
	})
}
