package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/httpclient"
)

// Client talks to the points, coupon and order services on behalf of a
// buyer. It implements the ledger, coupon, draft, verification and
// completion contracts the checkout depends on.
type Client struct {
	http *httpclient.Client
	conf config.BackendConfig
}

func CreateBackendClient(conf config.BackendConfig, http *httpclient.Client) *Client {
	return &Client{
		http: http,
		conf: conf,
	}
}

type call struct {
	method string
	url    string
	body   interface{}
	// rejection is the error kind a 4xx answer is reported as.
	rejection error
}

func send[T any](ctx context.Context, c *Client, buyer domain.Buyer, req call) (T, error) {
	var out T

	httpReq := httpclient.HttpRequest{
		URL:    req.url,
		Method: req.method,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
	token := buyer.Token
	if token == "" {
		token = c.conf.ServiceToken
	}
	if token != "" {
		httpReq.Headers["Authorization"] = "Bearer " + token
	}
	if req.body != nil {
		body, err := json.Marshal(req.body)
		if err != nil {
			return out, fmt.Errorf("error marshalling request: %w", err)
		}
		httpReq.Body = body
	}

	statusCode, body, err := c.http.SendRequest(ctx, httpReq)
	if err != nil {
		return out, fmt.Errorf("%w: %s %s: %v", errs.ErrUpstream, req.method, req.url, err)
	}

	var envelope dto.BackendResponse[json.RawMessage]
	var decodeErr error
	if len(body) > 0 {
		decodeErr = json.Unmarshal(body, &envelope)
	}

	switch {
	case statusCode >= http.StatusInternalServerError:
		return out, fmt.Errorf("%w: %s returned %d", errs.ErrUpstream, req.url, statusCode)
	case statusCode == http.StatusUnauthorized:
		return out, errs.ErrNotLoggedIn
	case statusCode == http.StatusNotFound:
		return out, errs.ErrNotFound
	case statusCode >= http.StatusBadRequest:
		kind := req.rejection
		if kind == nil {
			kind = errs.ErrClient
		}
		return out, errs.NewBusinessError(kind, envelope.Message)
	}

	if decodeErr != nil {
		return out, fmt.Errorf("%w: error unmarshalling response of %s: %v", errs.ErrUpstream, req.url, decodeErr)
	}

	if len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, &out); err != nil {
			return out, fmt.Errorf("%w: error unmarshalling data of %s: %v", errs.ErrUpstream, req.url, err)
		}
	}

	return out, nil
}
