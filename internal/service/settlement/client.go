package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/zhouzirui/xrp-pay/backend/internal/apperr"
)

// ErrUnavailable covers transport failures, non-2xx answers and unreadable
// bodies from the settlement service.
var ErrUnavailable = apperr.New(apperr.KindSettlementUnavailable, "settlement service unavailable")

// Options configures Client.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// Client talks to the settlement service over HTTP.
type Client struct {
	http *resty.Client
	log  *zap.SugaredLogger
}

// NewClient builds a Client. Transport errors and 5xx answers are retried
// with exponential backoff; every attempt carries the same idempotency key.
func NewClient(opts Options, log *zap.SugaredLogger) *Client {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	httpClient := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp != nil && resp.StatusCode() >= 500
		}).
		AddRetryHook(func(resp *resty.Response, err error) {
			status := 0
			if resp != nil {
				status = resp.StatusCode()
			}
			log.Warnw("retrying settlement call", "status", status, "error", err)
		})

	return &Client{http: httpClient, log: log}
}

// Initiate asks the settlement service for signing payloads. requestID is
// sent as the RequestId header.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest, requestID string) (InitiateResponse, error) {
	path := "/payments/initiate"
	if req.Batch {
		path = "/payments/initiate/batch"
	}

	var out InitiateResponse
	if err := c.post(ctx, path, req, map[string]string{"RequestId": requestID}, &out); err != nil {
		return InitiateResponse{}, err
	}
	if out.UserUUID == "" || out.UserRedirectURL == "" {
		return InitiateResponse{}, fmt.Errorf("%w: initiate response missing user leg", ErrUnavailable)
	}
	if req.Batch && (out.FeeUUID == "" || out.FeeRedirectURL == "") {
		return InitiateResponse{}, fmt.Errorf("%w: batch initiate response missing fee leg", ErrUnavailable)
	}
	return out, nil
}

// ReportSigned reports every leg as signed and returns the disposition.
func (c *Client) ReportSigned(ctx context.Context, report Report) (Disposition, error) {
	var (
		path string
		body any
	)
	if report.FeeID == "" {
		path = "/payments/callback"
		body = singleCallback{PaymentUUID: report.UserID, Status: StatusSigned}
	} else {
		path = "/payments/callback/batch"
		body = batchCallback{PaymentUUIDs: report.IDs(), Status: StatusSigned}
	}

	headers := map[string]string{}
	if report.IdempotencyKey != "" {
		headers["Idempotency-Key"] = report.IdempotencyKey
	}

	var out Disposition
	if err := c.post(ctx, path, body, headers, &out); err != nil {
		return Disposition{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("%w: POST %s: status %d", ErrUnavailable, path, resp.StatusCode())
	}
	if err := sonic.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrUnavailable, path, err)
	}
	return nil
}
