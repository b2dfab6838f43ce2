package items

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTopicPattern(t *testing.T) {
	tests := []struct {
		pattern string
		valid   bool
	}{
		{"openhab/out/%s/state", true},
		{"%s", true},
		{"home/%s", true},
		{"openhab/state", false},
		{"", false},
		{"%s/in/%s", false},
		{"openhab/%d/state", false},
		{"openhab/%s/%v", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidateTopicPattern(tt.pattern)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTopic)
			}
		})
	}
}

func TestNewMQTT_RejectsBadPatterns(t *testing.T) {
	_, err := NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883", StateTopic: "openhab/state"})
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883", CommandTopic: "openhab/cmd"})
	assert.ErrorIs(t, err, ErrInvalidTopic)
}

func TestMQTT_DefaultTopics(t *testing.T) {
	r, err := NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883"})
	require.NoError(t, err)

	assert.Equal(t, "openhab/out/+/state", r.stateWildcard())
	assert.Equal(t, "openhab/in/Desk/command", r.commandTopic("Desk"))
	assert.NotEmpty(t, r.cfg.ClientID)
}

func TestMQTT_ItemFromTopic(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		topic   string
		item    string
		ok      bool
	}{
		{"default", "", "openhab/out/Desk_Bri/state", "Desk_Bri", true},
		{"default_wrong_suffix", "", "openhab/out/Desk/command", "", false},
		{"default_empty_name", "", "openhab/out//state", "", false},
		{"other_prefix", "", "zigbee/out/Desk/state", "", false},
		{"trailing_placeholder", "home/%s", "home/Porch", "Porch", true},
		{"leading_placeholder", "%s/state", "Porch/state", "Porch", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883", StateTopic: tt.pattern})
			require.NoError(t, err)

			item, ok := r.itemFromTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.item, item)
		})
	}
}

func TestMQTT_StateUpdates(t *testing.T) {
	r, err := NewMQTT(MQTTConfig{Broker: "tcp://127.0.0.1:1883"})
	require.NoError(t, err)

	var changes [][3]string
	r.OnChange(func(name, previous, state string) {
		changes = append(changes, [3]string{name, previous, state})
	})

	ctx := context.Background()
	_, err = r.State(ctx, "Desk")
	assert.ErrorIs(t, err, ErrUnknownItem)

	r.update("Desk", On)
	r.update("Desk", On)
	r.update("Desk", Off)

	state, err := r.State(ctx, "Desk")
	require.NoError(t, err)
	assert.Equal(t, Off, state)
	assert.Equal(t, [][3]string{{"Desk", "", On}, {"Desk", On, Off}}, changes)
}
