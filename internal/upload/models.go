package upload

import (
	"strings"

	dErrors "chapel/pkg/domain-errors"
)

// Request is the body of POST /api/upload.
type Request struct {
	FileName string `json:"fileName"`
	FileData string `json:"fileData"`
	FileSize int64  `json:"fileSize"`
}

func (r *Request) Validate() error {
	r.FileName = strings.TrimSpace(r.FileName)
	if r.FileName == "" || r.FileData == "" || r.FileSize <= 0 {
		return dErrors.New(dErrors.CodeValidation, "fileName, fileData and fileSize are required")
	}
	return nil
}

type File struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type Response struct {
	File File `json:"file"`
}
