package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
}

func contentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

type multipartBody struct {
	contentType string
	payload     []byte
}

func buildMultipart(filename string, content []byte, fields map[string]string) (multipartBody, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	header.Set("Content-Type", contentTypeFor(filename))
	part, err := writer.CreatePart(header)
	if err != nil {
		return multipartBody{}, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return multipartBody{}, fmt.Errorf("write file part: %w", err)
	}
	for _, key := range []string{"document_type", "document_id", "client_id"} {
		if err := writer.WriteField(key, fields[key]); err != nil {
			return multipartBody{}, fmt.Errorf("write %s field: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return multipartBody{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return multipartBody{contentType: writer.FormDataContentType(), payload: buf.Bytes()}, nil
}

// postMultipart sends one attempt and decodes the JSON object the backend returns.
func (c *Client) postMultipart(ctx context.Context, body multipartBody, out *map[string]any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body.payload))
	if err != nil {
		return fmt.Errorf("create analysis request: %w", err)
	}
	req.Header.Set("Content-Type", body.contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  "process",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("malformed analysis response: %w", err)
	}
	return nil
}
