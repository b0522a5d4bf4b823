package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	f := Fanout{rec, failing{}, Nop{}}

	err := f.Publish(context.Background(), New(BidAccepted, 4, map[string]uint{"bid_id": 9}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, uint(4), rec.Events()[0].AccountID)
	assert.Equal(t, []string{BidAccepted}, rec.Types())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "grub.red_flag_raised", Subject(DefaultSubjectPrefix, RedFlagRaised))
}
