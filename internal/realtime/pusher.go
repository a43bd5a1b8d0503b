package realtime

import (
	"context"
	"fmt"

	"github.com/pusher/pusher-http-go/v5"
)

// PusherPublisher publishes events through the Pusher Channels HTTP API.
type PusherPublisher struct {
	client pusher.Client
}

func NewPusherPublisher(appID, key, secret, cluster string) *PusherPublisher {
	return &PusherPublisher{
		client: pusher.Client{
			AppID:   appID,
			Key:     key,
			Secret:  secret,
			Cluster: cluster,
			Secure:  true,
		},
	}
}

var _ Publisher = (*PusherPublisher)(nil)

func (p *PusherPublisher) Publish(ctx context.Context, channel, event string, payload any) error {
	if err := p.client.Trigger(channel, event, payload); err != nil {
		return fmt.Errorf("pusher trigger %s/%s: %w", channel, event, err)
	}
	return nil
}

// AuthorizePrivateChannel signs a private-channel subscription request so
// the client SDK can complete it. body is the raw auth request body.
func (p *PusherPublisher) AuthorizePrivateChannel(body []byte) ([]byte, error) {
	return p.client.AuthorizePrivateChannel(body)
}
