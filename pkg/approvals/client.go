package approvals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"hostplane/internal/approvals"
	"hostplane/internal/common"
)

type NewClientOpts struct {
	// EngineUrl is the URL where the approval engine is accessible at
	EngineUrl string

	// BearerToken is the caller's JWT
	BearerToken string

	// Id will be included in the user-agent for identification
	Id string
}

func NewClient(opts NewClientOpts) (*Client, error) {
	engineUrl, err := url.Parse(opts.EngineUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse provided EngineUrl[%s]: %s", opts.EngineUrl, err)
	}
	if engineUrl.Scheme == "" {
		return nil, fmt.Errorf("failed to determine url scheme of EngineUrl[%s]", opts.EngineUrl)
	}
	return &Client{
		BearerToken: opts.BearerToken,
		EngineUrl:   engineUrl,
		HttpClient:  common.NewHttpClient(),
		Id:          opts.Id,
	}, nil
}

type Client struct {
	BearerToken string
	EngineUrl   *url.URL
	HttpClient  *http.Client
	Id          string
}

func (c *Client) do(method, urlPath string, body any, into any) error {
	var requestBody io.Reader
	if body != nil {
		bodyData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		requestBody = bytes.NewBuffer(bodyData)
	}
	pathUrl, err := url.Parse(urlPath)
	if err != nil {
		return fmt.Errorf("failed to parse path[%s]: %s", urlPath, err)
	}
	engineUrl := *c.EngineUrl
	engineUrl.Path = pathUrl.Path
	engineUrl.RawQuery = pathUrl.RawQuery
	httpRequest, err := http.NewRequest(method, engineUrl.String(), requestBody)
	if err != nil {
		return fmt.Errorf("failed to create http request for path[%s]: %s", urlPath, err)
	}
	common.AddHttpHeaders(httpRequest)
	httpRequest.Header.Set("User-Agent", fmt.Sprintf("hostplane-sdk/client-%s", c.Id))
	if c.BearerToken != "" {
		httpRequest.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.BearerToken))
	}
	httpResponse, err := c.HttpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("failed to execute http request for path[%s]: %s", urlPath, err)
	}
	defer httpResponse.Body.Close()
	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if httpResponse.StatusCode < http.StatusOK || httpResponse.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("failed to receive a successful response (status code: %v): %s", httpResponse.StatusCode, string(responseBody))
	}
	var response common.HttpResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return fmt.Errorf("failed to parse response from engine: %w", err)
	}
	if into == nil {
		return nil
	}
	responseData, err := json.Marshal(response.Data)
	if err != nil {
		return fmt.Errorf("failed to parse response data from engine: %w", err)
	}
	if err := json.Unmarshal(responseData, into); err != nil {
		return fmt.Errorf("failed to parse response from engine: %w", err)
	}
	return nil
}

// SubmitRequest creates a new approval request and returns the pending
// record including its server-issued id
func (c *Client) SubmitRequest(input SubmitRequestInput) (*approvals.Request, error) {
	var record approvals.Request
	if err := c.do(http.MethodPost, "/api/v1/requests", input, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) GetRequest(requestId string) (*approvals.Request, error) {
	var record approvals.Request
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/requests/%s", requestId), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) ListRequests(input ListRequestsInput) ([]approvals.Request, error) {
	urlPath := "/api/v1/requests"
	query := url.Values{}
	if input.Status != "" {
		query.Set("status", input.Status)
	}
	if input.RequesterId != "" {
		query.Set("requesterId", input.RequesterId)
	}
	if encoded := query.Encode(); encoded != "" {
		urlPath = urlPath + "?" + encoded
	}
	var records []approvals.Request
	if err := c.do(http.MethodGet, urlPath, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) ApproveRequest(requestId string) (*approvals.Request, error) {
	var record approvals.Request
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/approve", requestId), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) RejectRequest(requestId string) (*approvals.Request, error) {
	var record approvals.Request
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/reject", requestId), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) CancelRequest(requestId string) (*approvals.Request, error) {
	var record approvals.Request
	if err := c.do(http.MethodPost, fmt.Sprintf("/api/v1/requests/%s/cancel", requestId), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// VerifyRequest asks the engine to re-check every decision signature on
// a request
func (c *Client) VerifyRequest(requestId string) (*VerifyRequestOutput, error) {
	var output VerifyRequestOutput
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/v1/requests/%s/verify", requestId), nil, &output); err != nil {
		return nil, err
	}
	return &output, nil
}
