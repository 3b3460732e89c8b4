package boardclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"crmboard/internal/board/domain"
	"crmboard/internal/kanban"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Feed subscribes to the realtime websocket endpoint
type Feed struct {
	client *Client
	dialer *websocket.Dialer
	log    zerolog.Logger
}

var _ kanban.Feed = (*Feed)(nil)

func NewFeed(client *Client) *Feed {
	return &Feed{
		client: client,
		dialer: websocket.DefaultDialer,
		log:    client.log.With().Str("component", "feed").Logger(),
	}
}

func (f *Feed) endpoint(table, filter string) string {
	base := f.client.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{"table": {table}, "filter": {filter}}
	return base + "/api/realtime?" + q.Encode()
}

func (f *Feed) dial(ctx context.Context, table, filter string) (*websocket.Conn, error) {
	token := f.client.session.AccessToken()
	if token == "" {
		return nil, ErrNotSignedIn
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := f.dialer.DialContext(ctx, f.endpoint(table, filter), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, err
	}
	return conn, nil
}

// Subscribe implements kanban.Feed. A handshake rejected with 401 is retried
// once after refreshing the access token. The channel closes when the server
// drops the subscription, the connection fails or ctx ends.
func (f *Feed) Subscribe(ctx context.Context, table, filter string) (<-chan domain.ChangeEvent, error) {
	conn, err := f.dial(ctx, table, filter)
	if IsStatus(err, http.StatusUnauthorized) && f.client.session.RefreshToken() != "" {
		if rerr := f.client.Refresh(ctx); rerr != nil {
			f.log.Warn().Err(rerr).Msg("token refresh failed")
			return nil, err
		}
		conn, err = f.dial(ctx, table, filter)
	}
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ChangeEvent)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var ev domain.ChangeEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					f.log.Debug().Err(err).Str("table", table).Msg("subscription ended")
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
