package dispensing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
	"github.com/angelmondragon/vendcare-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vendcare-backend/pkg/errors"
)

func TestGenerateCodeShape(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.True(t, ValidCode(code), code)
		seen[code] = struct{}{}
	}
	assert.Greater(t, len(seen), 190)
}

func TestIssueSetsExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	code, err := Issue(now, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), code.ExpiresAt)

	code, err = Issue(now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), code.ExpiresAt)
}

func TestNormalizeAndValidCode(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeCode("  ab12cd "))
	assert.True(t, ValidCode("AB12CD"))
	assert.False(t, ValidCode("AB12C"))
	assert.False(t, ValidCode("ab12cd"))
	assert.False(t, ValidCode("AB-2CD"))
}

func TestSecondsRemaining(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, 900, SecondsRemaining(expires, expires.Add(-15*time.Minute)))
	assert.Equal(t, 0, SecondsRemaining(expires, expires.Add(-999*time.Millisecond)))
	assert.Equal(t, 1, SecondsRemaining(expires, expires.Add(-1500*time.Millisecond)))
	assert.Equal(t, 0, SecondsRemaining(expires, expires))
	assert.Equal(t, 0, SecondsRemaining(expires, expires.Add(time.Hour)))

	prev := SecondsRemaining(expires, expires.Add(-time.Minute))
	for step := time.Duration(0); step <= time.Minute; step += 250 * time.Millisecond {
		cur := SecondsRemaining(expires, expires.Add(-time.Minute+step))
		assert.LessOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "15:00", FormatRemaining(900))
	assert.Equal(t, "00:59", FormatRemaining(59))
	assert.Equal(t, "00:00", FormatRemaining(-3))
}

func TestIsExpired(t *testing.T) {
	expires := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	order := &models.Order{Status: enums.OrderStatusPaid, DispensingCodeExpiresAt: expires}

	assert.False(t, IsExpired(order, expires.Add(-time.Second)))
	assert.True(t, IsExpired(order, expires))

	order.Status = enums.OrderStatusExpired
	assert.True(t, IsExpired(order, expires.Add(-time.Hour)))

	order.Status = enums.OrderStatusDispensed
	assert.False(t, IsExpired(order, expires.Add(time.Hour)))
	assert.False(t, IsExpired(nil, expires))
}

func TestTransitions(t *testing.T) {
	allowed := [][2]enums.OrderStatus{
		{enums.OrderStatusPaid, enums.OrderStatusDispensed},
		{enums.OrderStatusDispensed, enums.OrderStatusCompleted},
		{enums.OrderStatusPaid, enums.OrderStatusFailed},
		{enums.OrderStatusPaid, enums.OrderStatusExpired},
	}
	for _, pair := range allowed {
		assert.NoError(t, Transition(pair[0], pair[1]), "%s->%s", pair[0], pair[1])
	}

	denied := [][2]enums.OrderStatus{
		{enums.OrderStatusPaid, enums.OrderStatusCompleted},
		{enums.OrderStatusDispensed, enums.OrderStatusPaid},
		{enums.OrderStatusExpired, enums.OrderStatusDispensed},
		{enums.OrderStatusCompleted, enums.OrderStatusDispensed},
		{enums.OrderStatusFailed, enums.OrderStatusPaid},
		{enums.OrderStatusDispensed, enums.OrderStatusExpired},
	}
	for _, pair := range denied {
		err := Transition(pair[0], pair[1])
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "%s->%s", pair[0], pair[1])
	}
}

func TestCountdownTicksToZero(t *testing.T) {
	start := time.Now()
	var calls int
	fake := func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * time.Second)
	}

	var got []int
	for v := range Countdown(context.Background(), start.Add(3*time.Second), time.Millisecond, fake) {
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 2, 1, 0}, got)
}

func TestCountdownStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Countdown(ctx, time.Now().Add(time.Hour), time.Hour, nil)

	first, ok := <-ch
	require.True(t, ok)
	assert.Greater(t, first, 3500)

	cancel()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("countdown did not stop after cancel")
	}
}
