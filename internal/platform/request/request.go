// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package request provides utilities for extracting data from HTTP requests.

It covers the two body shapes the server accepts (JSON for the API, url-encoded
forms for pages) with bounded reads and consistent error handling.
*/
package requestutil

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/taibuivan/gatekeep/internal/platform/validate"
)

// MaxBodyBytes bounds every decoded request body.
const MaxBodyBytes = 64 << 10

/*
DecodeJSON reads the request body and decodes it into the target structure.

Parameters:
  - writer: http.ResponseWriter (used to enforce the body limit)
  - request: *http.Request
  - target: any (Pointer to the destination struct)

Returns:
  - error: validate.ErrInvalidJSON if decoding fails, otherwise nil
*/
func DecodeJSON(writer http.ResponseWriter, request *http.Request, target any) error {
	request.Body = http.MaxBytesReader(writer, request.Body, MaxBodyBytes)

	decoder := json.NewDecoder(request.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

/*
ParseForm parses a url-encoded body under the same size limit.

Returns:
  - error: validate.ErrInvalidForm if the body is unreadable
*/
func ParseForm(writer http.ResponseWriter, request *http.Request) error {
	request.Body = http.MaxBytesReader(writer, request.Body, MaxBodyBytes)
	if err := request.ParseForm(); err != nil {
		return validate.ErrInvalidForm
	}
	return nil
}

// Field returns a trimmed form value. Call [ParseForm] first.
func Field(request *http.Request, name string) string {
	return strings.TrimSpace(request.PostForm.Get(name))
}

// RawField returns an untrimmed form value, for passwords.
func RawField(request *http.Request, name string) string {
	return request.PostForm.Get(name)
}
