package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiResponse mirrors the server's envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// request performs one API call and decodes the envelope. A non-success
// envelope becomes an error carrying the server message.
func (c *apiClient) request(method, path string, body any) (jsoniter.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("bad response (%s): %w", resp.Status, err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("%s (%s)", envelope.Message, resp.Status)
	}
	return envelope.Data, nil
}

func (c *apiClient) get(path string, query url.Values) (jsoniter.RawMessage, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.request(http.MethodGet, path, nil)
}
