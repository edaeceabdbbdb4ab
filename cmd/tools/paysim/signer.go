package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/xrp-pay/backend/internal/logger"
)

// webhookBody mirrors what the signing provider posts after a sign or
// decline.
type webhookBody struct {
	Meta            map[string]any `json:"meta"`
	PayloadResponse struct {
		PayloadUUID string `json:"payload_uuidv4"`
		Signed      bool   `json:"signed"`
	} `json:"payloadResponse"`
}

func newBackendClient(target string) *resty.Client {
	return resty.New().
		SetBaseURL(target).
		SetTimeout(10 * time.Second).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
}

func webhookCmd() *cobra.Command {
	var (
		target string
		id     string
		signed bool
	)
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Post a signing result to the backend webhook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return errors.New("--id is required")
			}

			var body webhookBody
			body.Meta = map[string]any{"payload_uuidv4": id}
			body.PayloadResponse.PayloadUUID = id
			body.PayloadResponse.Signed = signed

			resp, err := newBackendClient(target).R().
				SetContext(cmd.Context()).
				SetBody(body).
				Post("/xaman/webhook")
			if err != nil {
				return fmt.Errorf("post webhook: %w", err)
			}
			logger.SW("payment_id", id).Infow("webhook delivered", "signed", signed, "status", resp.StatusCode(), "body", resp.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "http://localhost:3000", "payment backend base URL")
	cmd.Flags().StringVar(&id, "id", "", "signing payload id")
	cmd.Flags().BoolVar(&signed, "signed", true, "report the payload as signed (false means declined)")
	return cmd
}

func callbackCmd() *cobra.Command {
	var (
		target string
		id     string
	)
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Follow the payer's return from the signing provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id == "" {
				return errors.New("--id is required")
			}

			resp, err := newBackendClient(target).R().
				SetContext(cmd.Context()).
				SetQueryParam("paymentUuid", id).
				Get("/xaman/callback")
			if err != nil {
				return fmt.Errorf("get callback: %w", err)
			}
			if resp.StatusCode() != http.StatusFound {
				return fmt.Errorf("unexpected callback status %d", resp.StatusCode())
			}
			logger.SW("payment_id", id).Infow("callback redirected", "location", resp.Header().Get("Location"))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "http://localhost:3000", "payment backend base URL")
	cmd.Flags().StringVar(&id, "id", "", "signing payload id")
	return cmd
}
