package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/document-intake/internal/infrastructure/webhook"
)

type callbackOptions struct {
	DocumentID   string
	Status       string
	DataJSON     string
	Confidence   float64
	ErrorMessage string
}

func signCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign [file]",
		Short: "Print the sha256= callback signature of a body read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("secret is required")
			}
			body, err := readBody(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signatureValue([]byte(secret), body))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", envOr("WEBHOOK_SECRET", ""), "Webhook secret (defaults to WEBHOOK_SECRET)")
	return cmd
}

func webhookCmd() *cobra.Command {
	var (
		baseURL string
		secret  string
		timeout time.Duration
		opts    callbackOptions
	)
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Send a signed analysis callback to a running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("secret is required")
			}
			body, err := buildCallback(opts)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, reply, err := postCallback(ctx, http.DefaultClient, baseURL, []byte(secret), body)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", status, strings.TrimSpace(string(reply)))
			if status >= http.StatusBadRequest {
				return fmt.Errorf("callback rejected with status %d", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Service base URL")
	cmd.Flags().StringVar(&secret, "secret", envOr("WEBHOOK_SECRET", ""), "Webhook secret (defaults to WEBHOOK_SECRET)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	cmd.Flags().StringVar(&opts.DocumentID, "document-id", "", "Document id")
	cmd.Flags().StringVar(&opts.Status, "status", "complete", "Reported status")
	cmd.Flags().StringVar(&opts.DataJSON, "data", "", "Extracted data as a JSON object")
	cmd.Flags().Float64Var(&opts.Confidence, "confidence", -1, "Confidence score; negative omits it")
	cmd.Flags().StringVar(&opts.ErrorMessage, "error", "", "Error message for failed callbacks")
	_ = cmd.MarkFlagRequired("document-id")
	return cmd
}

func buildCallback(opts callbackOptions) ([]byte, error) {
	if strings.TrimSpace(opts.DocumentID) == "" {
		return nil, errors.New("document id is required")
	}
	payload := map[string]any{
		"document_id": opts.DocumentID,
		"status":      opts.Status,
	}
	if opts.DataJSON != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(opts.DataJSON), &data); err != nil {
			return nil, fmt.Errorf("parse --data: %w", err)
		}
		payload["extracted_data"] = data
	}
	if opts.Confidence >= 0 {
		payload["confidence_score"] = opts.Confidence
	}
	if opts.ErrorMessage != "" {
		payload["error_message"] = opts.ErrorMessage
	}
	return json.Marshal(payload)
}

func postCallback(ctx context.Context, client *http.Client, baseURL string, secret, body []byte) (int, []byte, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/webhooks/analysis"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SignatureHeader, signatureValue(secret, body))

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, reply, nil
}

// signatureValue is the header value in the sha256=<hex> form.
func signatureValue(secret, body []byte) string {
	return "sha256=" + webhook.Sign(secret, body)
}

func readBody(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
