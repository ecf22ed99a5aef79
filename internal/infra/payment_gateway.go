package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scrappos/internal/settlement"

	"github.com/go-resty/resty/v2"
)

var (
	ErrGatewayUnauthorized = errors.New("payment gateway unauthorized")
	ErrGatewayNotFound     = errors.New("payment not found at gateway")
)

// GatewayError is a non-2xx answer from the payment gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("payment gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Body)
}

// paymentResponse is the subset of the gateway's payment resource we read.
type paymentResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail"`
}

// PaymentGateway queries the hosted payment function for the status of an
// externally initiated payment. It does not retry: the settlement poller owns
// the retry budget.
type PaymentGateway struct {
	http *resty.Client
}

func NewPaymentGateway(baseURL, token string) *PaymentGateway {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	if token != "" {
		c.SetAuthScheme("Bearer")
		c.SetAuthToken(token)
	}
	return &PaymentGateway{http: c}
}

// CheckStatus implements settlement.StatusChecker.
func (g *PaymentGateway) CheckStatus(ctx context.Context, paymentID string) (settlement.RemoteStatus, error) {
	var out paymentResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		SetResult(&out).
		Get("/v1/payments/{id}")
	if err != nil {
		return settlement.RemoteStatus{}, fmt.Errorf("payment gateway request: %w", err)
	}
	if resp.IsError() {
		return settlement.RemoteStatus{}, gatewayErrorFromResponse(resp)
	}
	return settlement.RemoteStatus{
		Status: settlement.Normalize(strings.ToLower(out.Status)),
		Raw:    json.RawMessage(resp.Body()),
	}, nil
}

func gatewayErrorFromResponse(resp *resty.Response) error {
	gwErr := &GatewayError{StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	switch resp.StatusCode() {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrGatewayUnauthorized, gwErr.Error())
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrGatewayNotFound, gwErr.Error())
	default:
		return gwErr
	}
}
