// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package portal

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bcem/portal/internal/models"
)

const (
	maxValueBytes = 64 << 10
	maxFiles      = 10
	maxValueParts = 200

	// maxFormBytes is the allowance for everything but file contents.
	maxFormBytes = 1 << 20
)

// bodyError maps a failed body read to a response status.
func bodyError(err error) (int, error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, errors.New("request body too large")
	}
	return http.StatusBadRequest, errors.New("invalid multipart body")
}

// decodeMultipart reads parts in the order the browser sent them so the
// ticket body lists fields in form order. File parts become attachments.
func (h *Handler) decodeMultipart(r *http.Request) (*models.FormSubmission, int, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, h.maxFileBytes*maxFiles+maxFormBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("invalid multipart body")
	}

	form := &models.FormSubmission{}
	values := 0
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			status, err := bodyError(err)
			return nil, status, err
		}

		name := strings.TrimSuffix(part.FormName(), "[]")
		if name == "" {
			part.Close()
			continue
		}

		if part.FileName() != "" {
			att, status, err := h.readAttachment(part.FileName(), part)
			part.Close()
			if err != nil {
				return nil, status, err
			}
			if att == nil {
				continue
			}
			if len(form.Attachments) >= maxFiles {
				return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("at most %d files may be attached", maxFiles)
			}
			form.Attachments = append(form.Attachments, *att)
			continue
		}

		values++
		if values > maxValueParts {
			part.Close()
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("at most %d form values may be sent", maxValueParts)
		}

		data, err := io.ReadAll(io.LimitReader(part, maxValueBytes+1))
		part.Close()
		if err != nil {
			status, err := bodyError(err)
			return nil, status, err
		}
		if len(data) > maxValueBytes {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("field %q is too long", name)
		}

		addValue(form, name, string(data))
	}

	return form, 0, nil
}

func (h *Handler) readAttachment(fileName string, body io.Reader) (*models.Attachment, int, error) {
	data, err := io.ReadAll(io.LimitReader(body, h.maxFileBytes+1))
	if err != nil {
		status, err := bodyError(err)
		return nil, status, fmt.Errorf("read file %q: %w", fileName, err)
	}
	if int64(len(data)) > h.maxFileBytes {
		return nil, http.StatusRequestEntityTooLarge,
			fmt.Errorf("file %q exceeds the %d MiB limit", fileName, h.maxFileBytes>>20)
	}
	if len(data) == 0 {
		return nil, 0, nil
	}

	return &models.Attachment{
		FileName: fileName,
		MimeType: mimetype.Detect(data).String(),
		Data:     base64.StdEncoding.EncodeToString(data),
	}, 0, nil
}

// addValue routes the requester fields to the submission header and
// appends everything else, keeping repeated names as one multi-value field.
func addValue(form *models.FormSubmission, name, value string) {
	switch name {
	case "requester_name":
		form.RequesterName = value
		return
	case "requester_email":
		form.RequesterEmail = value
		return
	case "request_type":
		form.RequestType = value
		return
	}

	for i := range form.Fields {
		if form.Fields[i].Name == name {
			form.Fields[i].Values = append(form.Fields[i].Values, value)
			return
		}
	}
	form.Fields = append(form.Fields, models.FormField{Name: name, Values: []string{value}})
}
