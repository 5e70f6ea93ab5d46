package telemetry

import (
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmshutter/pkg/metrics"
	"mmshutter/pkg/mmdevice"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  interface{}
}

type fakeClient struct {
	token *fakeToken
	sent  []message
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, message{topic, retained, payload})
	return c.token
}

var _ mmdevice.ChangeListener = (*Publisher)(nil)

func TestPublish(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}}
	p := NewPublisher(client, "/lab/", nil)

	p.OnPropertyChanged("Shutter", "State", "1")

	require.Len(t, client.sent, 1)
	assert.Equal(t, message{"lab/Shutter/State", true, "1"}, client.sent[0])
}

func TestPublishFailures(t *testing.T) {
	tests := []struct {
		name  string
		token *fakeToken
	}{
		{"error", &fakeToken{err: errors.New("not connected")}},
		{"timeout", &fakeToken{timeout: true}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			counter := metrics.Errors.WithLabelValues(metrics.ErrMQTTPublish)
			before := testutil.ToFloat64(counter)

			p := NewPublisher(&fakeClient{token: tc.token}, "lab", nil)
			p.OnPropertyChanged("Shutter", "Delay", "20")

			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
}

func TestPropertiesNotifyPublisher(t *testing.T) {
	client := &fakeClient{token: &fakeToken{}}
	props := mmdevice.NewProperties("Shutter")
	props.AddListener(NewPublisher(client, "lab", nil))
	require.NoError(t, props.Create(mmdevice.KeywordDelay, "0", mmdevice.Float, false, nil, false))

	require.NoError(t, props.Set(mmdevice.KeywordDelay, "12.5"))
	assert.Error(t, props.Set(mmdevice.KeywordDelay, "abc"))

	require.Len(t, client.sent, 1)
	assert.Equal(t, "lab/Shutter/Delay", client.sent[0].topic)
	assert.Equal(t, "12.5", client.sent[0].payload)
}
