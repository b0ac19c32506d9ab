package channel_test

import (
	"context"
	"net/http"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

// fakeAdapter satisfies channel.MessagingAdapter with no behaviour.
type fakeAdapter struct {
	key channel.ProviderKey
}

func (a *fakeAdapter) Type() channel.ProviderKey { return a.key }

func (a *fakeAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: a.key, DisplayName: string(a.key)}
}

func (a *fakeAdapter) Send(context.Context, channel.OutboundMessage) (channel.DeliveryReceipt, error) {
	return channel.DeliveryReceipt{Provider: a.key, MessageID: "out-1"}, nil
}

func (a *fakeAdapter) VerifyWebhook(http.Header, []byte) error { return nil }

func (a *fakeAdapter) ParseEvent(string, []byte, time.Time) (channel.InboundMessage, error) {
	return channel.InboundMessage{Provider: a.key}, nil
}
