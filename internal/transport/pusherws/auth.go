package pusherws

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type authResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// authorize asks the configured auth endpoint to sign a private or presence
// channel subscription for the current socket id.
func (s *Socket) authorize(channel string) (authResponse, error) {
	var out authResponse
	if s.opts.AuthEndpoint == "" {
		return out, fmt.Errorf("no auth endpoint configured for %q", channel)
	}
	form := url.Values{}
	form.Set("socket_id", s.SocketID())
	form.Set("channel_name", channel)

	req, err := http.NewRequest(http.MethodPost, s.opts.AuthEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("auth endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode auth response: %w", err)
	}
	if out.Auth == "" {
		return out, fmt.Errorf("auth response missing auth field")
	}
	return out, nil
}
