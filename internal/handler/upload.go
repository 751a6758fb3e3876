package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pavelanni/studyhall/internal/model"
)

const (
	maxUploadSize = 32 << 20
	maxJSONBody   = 1 << 20
)

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// parseUpload reads every file of the "files" field. Requests without a
// multipart body carry no files and fall back to URL-encoded form values.
func parseUpload(r *http.Request) ([]model.UploadedFile, error) {
	if !isMultipart(r) {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		return nil, nil
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}
	var files []model.UploadedFile
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// parseImage reads the single image file of field. A missing file is not an
// error; the submission is then text only.
func parseImage(r *http.Request, field string) (*model.ImageBlob, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, fmt.Errorf("parse upload: %w", err)
	}
	_, fh, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	f, err := readFile(fh)
	if err != nil {
		return nil, err
	}
	return &model.ImageBlob{MediaType: f.MediaType, Data: f.Data}, nil
}

func readFile(fh *multipart.FileHeader) (model.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return model.UploadedFile{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

// formList collects a repeated form field; a single value may also hold a
// comma-separated list.
func formList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.Form[key] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
