package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"coach/log"
)

// Client is the UI side of the bridge. It has no filesystem access of its
// own; every operation is a message to the Server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: &http.Client{}}
}

func (c *Client) OpenTextFile(ctx context.Context) (string, bool) {
	var text *string
	if err := c.call(ctx, Request{Channel: ChannelOpenFile}, &text); err != nil || text == nil {
		return "", false
	}
	return *text, true
}

func (c *Client) SaveFeedback(ctx context.Context, content string) bool {
	var ok bool
	if err := c.call(ctx, Request{Channel: ChannelSaveFeedback, Args: []string{content}}, &ok); err != nil {
		return false
	}
	return ok
}

func (c *Client) SaveAudio(ctx context.Context, remoteURL string) bool {
	var ok bool
	if err := c.call(ctx, Request{Channel: ChannelSaveAudio, Args: []string{remoteURL}}, &ok); err != nil {
		return false
	}
	return ok
}

func (c *Client) call(ctx context.Context, r Request, out any) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ipcPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		log.Errorf("bridge %s: %v", r.Channel, err)
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("bridge %s: status %d", r.Channel, resp.StatusCode)
		log.Error(err.Error())
		return err
	}

	var res Response
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Errorf("bridge %s: %v", r.Channel, err)
		return err
	}
	return json.Unmarshal(res.Result, out)
}
