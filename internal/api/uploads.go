package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vidhub/internal/apperr"
	"vidhub/internal/observability/logging"
	"vidhub/internal/videos"
)

const (
	videoField     = "videofile"
	thumbnailField = "thumbnail"

	// TempFilePrefix marks spooled uploads so the sweeper can find leftovers.
	TempFilePrefix = "vidhub-upload-"

	maxFormValueBytes = 64 << 10
)

func (h *Handler) uploadVideo(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	in, err := h.spoolMultipart(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	video, err := h.videos.Upload(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, video, "Video uploaded")
}

// spoolMultipart streams the upload form to temp files. On error every file
// written so far is removed; on success the service owns them.
func (h *Handler) spoolMultipart(r *http.Request) (in videos.UploadInput, err error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return videos.UploadInput{}, apperr.Wrap(apperr.KindInvalidInput, "invalid multipart payload", err)
	}
	defer func() {
		if err != nil {
			h.removeSpooled(r, in.VideoPath, in.ThumbnailPath)
			in = videos.UploadInput{}
		}
	}()

	for {
		part, partErr := reader.NextPart()
		if errors.Is(partErr, io.EOF) {
			break
		}
		if partErr != nil {
			return in, multipartError(partErr)
		}
		name := part.FormName()
		switch {
		case name == "":
			_ = part.Close()
		case name == videoField || name == thumbnailField:
			target := &in.VideoPath
			if name == thumbnailField {
				target = &in.ThumbnailPath
			}
			if *target != "" || part.FileName() == "" {
				_ = part.Close()
				continue
			}
			path, saveErr := h.saveMultipartFile(part)
			if saveErr != nil {
				return in, saveErr
			}
			*target = path
		default:
			value, readErr := io.ReadAll(io.LimitReader(part, maxFormValueBytes))
			_ = part.Close()
			if readErr != nil {
				return in, multipartError(readErr)
			}
			switch name {
			case "title":
				in.Title = strings.TrimSpace(string(value))
			case "description":
				in.Description = strings.TrimSpace(string(value))
			case "duration":
				in.Duration = strings.TrimSpace(string(value))
			}
		}
	}
	return in, nil
}

// saveMultipartFile writes part to the upload dir, keeping the client's
// extension so the media adapter can classify it.
func (h *Handler) saveMultipartFile(part *multipart.Part) (string, error) {
	defer part.Close()
	ext := strings.ToLower(filepath.Ext(filepath.Base(part.FileName())))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	tmp, err := os.CreateTemp(h.uploadDir, TempFilePrefix+"*"+ext)
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("create temp file: %w", err))
	}
	if _, err := io.Copy(tmp, part); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", multipartError(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", apperr.Internal(fmt.Errorf("close temp file: %w", err))
	}
	return tmp.Name(), nil
}

func (h *Handler) removeSpooled(r *http.Request, paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WithContext(r.Context(), h.logger).Warn("remove spooled upload", "path", path, "error", err)
		}
	}
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.InvalidInput("upload exceeds size limit")
	}
	return apperr.Wrap(apperr.KindInvalidInput, "read multipart data", err)
}
